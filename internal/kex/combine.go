package kex

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// pqxdhInfo is the HKDF info string for the hybrid suite, following the
// Signal PQXDH naming convention: protocol_curve_hash_pqkem.
const pqxdhInfo = "Self-PQXDH-1_X25519_SHA-256_ML-KEM-768"

// pqxdhSessionKeySize is the length of the derived AEAD key.
const pqxdhSessionKeySize = 32

// CombinePQXDHSecrets derives the final hybrid session key from the
// X25519 and ML-KEM-768 shared secrets per the Signal PQXDH construction:
// IKM is a 32-byte 0xFF prefix followed by the two shared secrets, the
// salt is 32 zero bytes, and the info string identifies the suite.
func CombinePQXDHSecrets(x25519Shared, kyberShared []byte) ([]byte, error) {
	fPrefix := make([]byte, 32)
	for i := range fPrefix {
		fPrefix[i] = 0xff
	}

	ikm := make([]byte, 0, len(fPrefix)+len(x25519Shared)+len(kyberShared))
	ikm = append(ikm, fPrefix...)
	ikm = append(ikm, x25519Shared...)
	ikm = append(ikm, kyberShared...)

	salt := make([]byte, sha256.Size)

	reader := hkdf.New(sha256.New, ikm, salt, []byte(pqxdhInfo))
	sessionKey := make([]byte, pqxdhSessionKeySize)
	if _, err := io.ReadFull(reader, sessionKey); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return sessionKey, nil
}
