// Package signature signs and verifies delivery receipt bodies with
// HMAC-SHA256.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/oggyb/sms-gateway/internal/domain/message"
)

// Header carries the hex encoded HMAC of the raw request body.
const Header = "X-Provider-Signature"

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier checks signatures against a fixed shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify compares header with the expected signature of body in constant
// time. Failures are returned as *message.SignatureError.
func (v *Verifier) Verify(body []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return &message.SignatureError{Reason: "missing signature header"}
	}

	got, err := hex.DecodeString(header)
	if err != nil || len(got) != sha256.Size {
		return &message.SignatureError{Reason: "malformed signature header"}
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return &message.SignatureError{Reason: "signature mismatch"}
	}
	return nil
}
