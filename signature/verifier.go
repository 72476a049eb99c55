package signature

import "crypto/hmac"

// Verify checks whether the given signature matches the expected HMAC-SHA256
// signature for the body and secret. Comparison is constant-time.
func (s *Signer) Verify(body []byte, secret, sig string) bool {
	return Verify(body, secret, sig)
}

// Verify checks whether the given signature matches the expected HMAC-SHA256
// signature for the body and secret. Comparison is constant-time.
func Verify(body []byte, secret, sig string) bool {
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(sig))
}
