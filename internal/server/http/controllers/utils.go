package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/auth"
	"github.com/rzbill/runq/internal/services/tasks"
)

// Helper functions for common HTTP responses

// writeError writes an ErrorResponse with the status matching the error's code.
func writeError(w http.ResponseWriter, err error) {
	code := tasks.Code(err)
	msg := err.Error()
	if code == apiv1.CodeInternal {
		msg = "internal error"
	}
	writeStatus(w, statusFor(code), apiv1.ErrorResponse{OK: false, Error: code, Message: msg})
}

// writeJSON writes a 200 JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	writeStatus(w, http.StatusOK, data)
}

func writeStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps a wire error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case apiv1.CodeUnauthorized:
		return http.StatusUnauthorized
	case apiv1.CodeBadRequest:
		return http.StatusBadRequest
	case apiv1.CodeInvalidLease:
		return http.StatusConflict
	case apiv1.CodeTaskNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// readBody reads at most auth.MaxBodyBytes of the request body. The auth
// middleware has usually buffered it already.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, auth.MaxBodyBytes))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, apiv1.ErrorResponse{
			OK:      false,
			Error:   apiv1.CodeBadRequest,
			Message: "read body: " + err.Error(),
		})
		return nil, false
	}
	return body, true
}

// decode reads the body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, ok := readBody(w, r)
	if !ok {
		return false
	}
	if err := tasks.Decode(body, v); err != nil {
		writeError(w, err)
		return false
	}
	return true
}
