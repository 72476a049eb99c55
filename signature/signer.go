// Package signature provides HMAC-SHA256 webhook signing and verification.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes HMAC-SHA256 signatures for webhook payloads.
type Signer struct{}

// NewSigner returns a new Signer.
func NewSigner() *Signer {
	return &Signer{}
}

// Sign generates the HMAC-SHA256 signature over the exact body bytes.
// Returns the header value in the format "sha256=<lowercase-hex>".
func (s *Signer) Sign(body []byte, secret string) string {
	return Sign(body, secret)
}

// Sign generates the HMAC-SHA256 signature over the exact body bytes.
// Returns the header value in the format "sha256=<lowercase-hex>".
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
