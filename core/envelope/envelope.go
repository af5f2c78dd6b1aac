// Package envelope decrypts the AES-256-GCM sealed request body carried
// by submit_request, using the session key negotiated by the handshake
// engine.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// Decrypt authenticates and decrypts ciphertext with the given 32-byte
// key, nonce, and detached auth tag. The reference implementation
// transmits ciphertext and tag as separate fields; Go's GCM expects them
// concatenated, so they are joined before Open.
func Decrypt(key, ciphertext, authTag, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("build aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("build gcm: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length: expected %d, got %d", gcm.NonceSize(), len(nonce))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(authTag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm open: %w", err)
	}
	return plaintext, nil
}
