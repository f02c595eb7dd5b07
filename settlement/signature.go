package settlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Verifier authenticates gateway webhooks with a shared-secret HMAC-SHA256.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("webhook secret must not be empty")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify checks signature (hex HMAC-SHA256) against the raw request body.
// The body must be the exact bytes received; re-encoded JSON will not match.
func (v *Verifier) Verify(body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(got, v.sum(body)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex signature for body. Used by replay tooling and tests.
func (v *Verifier) Sign(body []byte) string {
	return hex.EncodeToString(v.sum(body))
}

func (v *Verifier) sum(body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return mac.Sum(nil)
}
