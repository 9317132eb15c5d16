package wireproto

import "crypto/rand"

// GenerateNonce produces 3 cryptographically random bytes for a newly
// originated envelope. Forwarders must never call this; they carry the
// received nonce forward unchanged (see Forward).
func GenerateNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return Nonce{}, err
	}
	return n, nil
}
