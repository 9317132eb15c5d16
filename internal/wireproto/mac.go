package wireproto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
)

// Seal computes HMAC-SHA-256 over body keyed by key and truncates the
// result to MACSize bytes. crypto/hmac and crypto/sha256 are used
// directly here; there's no ecosystem "truncated keyed MAC" type that
// does anything these stdlib primitives don't already do correctly.
func Seal(key, body []byte) [MACSize]byte {
	h := hmac.New(sha256.New, key)
	h.Write(body)
	sum := h.Sum(nil)
	var out [MACSize]byte
	copy(out[:], sum[:MACSize])
	return out
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
