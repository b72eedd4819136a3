// Package signature signs and verifies ingest webhook bodies. A signature is
// the lowercase hex HMAC-SHA256 of "<timestamp>.<raw body>" keyed with the
// shared secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Header names carried by every signed ingest request.
const (
	HeaderKey       = "X-Ingest-Key"
	HeaderTimestamp = "X-Ingest-Timestamp"
	HeaderSignature = "X-Ingest-Signature"
)

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrInvalidTimestamp   = errors.New("invalid timestamp")
	ErrStaleTimestamp     = errors.New("timestamp outside allowed window")
)

// Sign returns the hex-encoded HMAC-SHA256 of timestamp + "." + body.
func Sign(secret []byte, timestamp string, body []byte) string {
	return hex.EncodeToString(compute(secret, timestamp, body))
}

// Verify recomputes the MAC and compares it with the received signature in
// constant time. Non-hex or wrong-length signatures yield
// ErrMalformedSignature instead of panicking.
func Verify(secret []byte, timestamp string, body []byte, received string) error {
	got, err := hex.DecodeString(received)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(got) != sha256.Size {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, sha256.Size, len(got))
	}
	if !hmac.Equal(got, compute(secret, timestamp, body)) {
		return ErrSignatureMismatch
	}
	return nil
}

// CheckTimestamp parses a Unix-seconds timestamp and rejects values further
// than window from now in either direction.
func CheckTimestamp(raw string, now time.Time, window time.Duration) error {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
	}
	// Compare bounds; now-ts can overflow.
	cur, w := now.Unix(), int64(window/time.Second)
	if ts < cur-w || ts > cur+w {
		return fmt.Errorf("%w: %d not within %ds of %d", ErrStaleTimestamp, ts, w, cur)
	}
	return nil
}

// Timestamp formats t as the header value expected by CheckTimestamp.
func Timestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// SetHeaders signs body at now and sets the three ingest headers on h.
func SetHeaders(h http.Header, keyID string, secret []byte, body []byte, now time.Time) {
	ts := Timestamp(now)
	h.Set(HeaderKey, keyID)
	h.Set(HeaderTimestamp, ts)
	h.Set(HeaderSignature, Sign(secret, ts, body))
}

func compute(secret []byte, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}
