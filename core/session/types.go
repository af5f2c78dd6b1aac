// Package session implements the bounded, LRU-evicting store that holds
// per-handshake key material between the hello and submit_request calls.
package session

import "time"

// Suite identifies which key-agreement path a session negotiated.
type Suite string

const (
	SuiteLegacy Suite = "legacy-p256"
	SuiteHybrid Suite = "hybrid-pqxdh"
)

// KeyMaterial is a tagged union over the three states a session's key
// material can be in. Exactly one of the embedded pointers is non-nil.
type KeyMaterial struct {
	LegacyComplete *LegacyComplete
	HybridPending  *HybridPending
	HybridComplete *HybridComplete
}

// LegacyComplete holds the raw P-256 ECDH output, used directly as the
// AEAD key with no further derivation.
type LegacyComplete struct {
	Key []byte
}

// HybridPending holds the state collected during hello, awaiting the
// client's KEM ciphertext in key_exchange before the combined session
// key can be derived: the already-computed X25519 shared secret, and the
// server's serialized ML-KEM-768 decapsulation key (not yet a shared
// secret — that only exists after decapsulation).
type HybridPending struct {
	X25519Shared        []byte
	KyberDecapsKeyBytes []byte
}

// HybridComplete holds the HKDF-combined hybrid session key.
type HybridComplete struct {
	Key []byte
}

// NewLegacyComplete builds a KeyMaterial in the LegacyComplete state.
func NewLegacyComplete(key []byte) KeyMaterial {
	return KeyMaterial{LegacyComplete: &LegacyComplete{Key: key}}
}

// NewHybridPending builds a KeyMaterial in the HybridPending state.
func NewHybridPending(x25519Shared, kyberDecapsKeyBytes []byte) KeyMaterial {
	return KeyMaterial{HybridPending: &HybridPending{X25519Shared: x25519Shared, KyberDecapsKeyBytes: kyberDecapsKeyBytes}}
}

// NewHybridComplete builds a KeyMaterial in the HybridComplete state.
func NewHybridComplete(key []byte) KeyMaterial {
	return KeyMaterial{HybridComplete: &HybridComplete{Key: key}}
}

// SharedSecret returns the usable AEAD key for this KeyMaterial, if any.
// HybridPending has no usable key yet and returns false.
func (km KeyMaterial) SharedSecret() ([]byte, bool) {
	switch {
	case km.LegacyComplete != nil:
		return km.LegacyComplete.Key, true
	case km.HybridComplete != nil:
		return km.HybridComplete.Key, true
	default:
		return nil, false
	}
}

// Session is a single entry in the store: the negotiated suite, its
// current key material, and bookkeeping timestamps.
type Session struct {
	ID          string
	Suite       Suite
	KeyMaterial KeyMaterial
	CreatedAt   time.Time
}
