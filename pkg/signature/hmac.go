package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// DefaultHeader carries the hex HMAC-SHA256 of the raw request body.
const DefaultHeader = "x-signature"

// Verifier authenticates a webhook delivery against its exact raw body.
type Verifier interface {
	Name() string
	Verify(r *http.Request, body []byte) bool
}

// Sign returns the lowercase hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether provided is the hex HMAC-SHA256 of body under
// secret. Comparison is constant time; an empty secret or signature never
// verifies.
func Verify(body []byte, provided string, secret []byte) bool {
	if len(secret) == 0 {
		return false
	}
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return false
	}
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(provided)))
}

// HMACVerifier checks a shared-secret signature carried in a request header.
type HMACVerifier struct {
	Header string
	Secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{Header: DefaultHeader, Secret: []byte(secret)}
}

func (v *HMACVerifier) Name() string { return "hmac" }

func (v *HMACVerifier) Verify(r *http.Request, body []byte) bool {
	if v == nil || r == nil {
		return false
	}
	header := v.Header
	if header == "" {
		header = DefaultHeader
	}
	return Verify(body, r.Header.Get(header), v.Secret)
}
