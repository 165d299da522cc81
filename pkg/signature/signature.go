// Package signature verifies HMAC-SHA256 request signatures of the form
// base64(HMAC(secret, "timestamp.method.path.body")) with a freshness window.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strconv"
	"time"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"

	DefaultWindow = 5 * time.Minute
)

var (
	// ErrNotConfigured is returned when the verifier has no shared secret.
	ErrNotConfigured = errors.New("signature secret not configured")

	// ErrMissingHeaders is returned when the signature or timestamp is absent.
	ErrMissingHeaders = errors.New("missing security headers")

	// ErrStaleRequest is returned when the timestamp is unparsable or outside the window.
	ErrStaleRequest = errors.New("request timestamp expired or invalid")

	// ErrInvalidSignature is returned when the digest does not match.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Verifier checks signatures against one shared secret.
type Verifier struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

func NewVerifier(secret string, window time.Duration) *Verifier {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Verifier{
		secret: []byte(secret),
		window: window,
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Configured reports whether a secret is set.
func (v *Verifier) Configured() bool {
	return len(v.secret) > 0
}

// Verify checks sig for the tuple. timestamp is Unix milliseconds as sent in
// the X-Timestamp header.
func (v *Verifier) Verify(sig, timestamp string, body []byte, method, path string) error {
	if !v.Configured() {
		return ErrNotConfigured
	}
	if sig == "" || timestamp == "" {
		return ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrStaleRequest
	}
	age := v.now().Sub(time.UnixMilli(ts))
	if age > v.window || age < -v.window {
		return ErrStaleRequest
	}

	expected := compute(v.secret, timestamp, method, path, body)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces the signature a client sends for the tuple.
func Sign(secret, timestamp, method, path string, body []byte) string {
	return compute([]byte(secret), timestamp, method, path, body)
}

// Timestamp formats t the way Verify expects it.
func Timestamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func compute(secret []byte, timestamp, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write([]byte(method))
	mac.Write([]byte{'.'})
	mac.Write([]byte(path))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
