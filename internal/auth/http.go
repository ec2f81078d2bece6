package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apiv1 "github.com/rzbill/runq/api/v1"
)

// MaxBodyBytes caps how much of a request body the middleware will buffer.
const MaxBodyBytes = 8 << 20

// Middleware rejects unsigned or badly signed requests with 401. The body is
// buffered for verification and handed to next unchanged.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v.Disabled() {
				next.ServeHTTP(w, r)
				return
			}
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, apiv1.CodeBadRequest, "request body too large")
					return
				}
				writeError(w, http.StatusBadRequest, apiv1.CodeBadRequest, "read body")
				return
			}
			_ = r.Body.Close()
			if err := v.Verify(r.Header.Get(HeaderTimestamp), r.Header.Get(HeaderSignature), body); err != nil {
				writeError(w, http.StatusUnauthorized, apiv1.CodeUnauthorized, err.Error())
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiv1.ErrorResponse{OK: false, Error: code, Message: msg})
}

// SignRequest sets the signature headers on an outgoing request for body.
func SignRequest(req *http.Request, secret string, body []byte) {
	ts, sig := SignNow(secret, body)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, sig)
}
