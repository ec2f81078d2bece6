package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header names carried on every signed request.
const (
	HeaderTimestamp = "x-timestamp"
	HeaderSignature = "x-signature"
)

// DefaultMaxSkew bounds how far a request timestamp may drift from the server clock.
const DefaultMaxSkew = 5 * time.Minute

// ErrUnauthorized is returned for every rejected request.
var ErrUnauthorized = errors.New("unauthorized")

// Rejection reasons passed to Options.OnReject.
const (
	ReasonMissingHeaders = "missing_headers"
	ReasonBadTimestamp   = "bad_timestamp"
	ReasonSkew           = "skew"
	ReasonBadSignature   = "bad_signature"
)

// Options configures a Verifier.
type Options struct {
	Secret  string
	MaxSkew time.Duration
	// Disabled accepts every request without checking headers.
	Disabled bool
	Now      func() time.Time
	// OnReject is called with a Reason* constant for each rejected request.
	OnReject func(reason string)
}

// Verifier checks request signatures against a shared secret.
type Verifier struct {
	secret   []byte
	maxSkew  time.Duration
	disabled bool
	now      func() time.Time
	onReject func(string)
}

// NewVerifier returns a Verifier. An empty secret is an error unless Disabled is set.
func NewVerifier(opts Options) (*Verifier, error) {
	if opts.Secret == "" && !opts.Disabled {
		return nil, errors.New("auth: secret is required")
	}
	if opts.MaxSkew <= 0 {
		opts.MaxSkew = DefaultMaxSkew
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnReject == nil {
		opts.OnReject = func(string) {}
	}
	return &Verifier{
		secret:   []byte(opts.Secret),
		maxSkew:  opts.MaxSkew,
		disabled: opts.Disabled,
		now:      opts.Now,
		onReject: opts.OnReject,
	}, nil
}

// Disabled reports whether checks are turned off.
func (v *Verifier) Disabled() bool { return v.disabled }

// Verify checks a timestamp/signature pair against the raw request body.
func (v *Verifier) Verify(timestamp, signature string, body []byte) error {
	if v.disabled {
		return nil
	}
	if timestamp == "" || signature == "" {
		return v.reject(ReasonMissingHeaders, "missing x-timestamp or x-signature")
	}
	ts, err := ParseTimestamp(timestamp)
	if err != nil {
		return v.reject(ReasonBadTimestamp, err.Error())
	}
	skew := v.now().Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return v.reject(ReasonSkew, "timestamp outside allowed window")
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return v.reject(ReasonBadSignature, "signature is not hex")
	}
	if !hmac.Equal(got, mac(v.secret, timestamp, body)) {
		return v.reject(ReasonBadSignature, "signature mismatch")
	}
	return nil
}

func (v *Verifier) reject(reason, msg string) error {
	v.onReject(reason)
	return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
}

// Sign returns the hex signature for body at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	return hex.EncodeToString(mac([]byte(secret), timestamp, body))
}

// SignNow returns an epoch-millisecond timestamp and its signature for body.
func SignNow(secret string, body []byte) (timestamp, signature string) {
	timestamp = strconv.FormatInt(time.Now().UnixMilli(), 10)
	return timestamp, Sign(secret, timestamp, body)
}

func mac(secret []byte, timestamp string, body []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(timestamp))
	h.Write([]byte{'.'})
	h.Write(body)
	return h.Sum(nil)
}

// ParseTimestamp accepts RFC3339 or an integer epoch. Integers above 1e12 are
// read as milliseconds, smaller ones as seconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1_000_000_000_000 {
			return time.UnixMilli(n), nil
		}
		return time.Unix(n, 0), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}
