// Package kex implements the elliptic-curve and post-quantum key
// agreement primitives used by the handshake engine: legacy P-256 ECDH
// and hybrid X25519 + ML-KEM-768 (PQXDH).
package kex

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// LegacyKeyPair is an ephemeral P-256 ECDH key pair used on the legacy suite.
type LegacyKeyPair struct {
	private *ecdh.PrivateKey
	public  *ecdh.PublicKey
}

// GenerateLegacyKeyPair creates a fresh ephemeral P-256 key pair, drawing
// randomness from rng. The caller supplies the enclave entropy source
// (wrapped via entropy.AsReader) in enclave mode, or the system CSPRNG
// otherwise; this package has no opinion on which.
func GenerateLegacyKeyPair(rng io.Reader) (*LegacyKeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rng)
	if err != nil {
		return nil, fmt.Errorf("generate p-256 key: %w", err)
	}
	return &LegacyKeyPair{private: priv, public: priv.PublicKey()}, nil
}

// PublicBytes returns the SEC1 compressed-point encoding of the public key
// (33 bytes), matching the reference server's P_s encoding.
func (kp *LegacyKeyPair) PublicBytes() []byte {
	uncompressed := kp.public.Bytes()
	x, y := elliptic.Unmarshal(elliptic.P256(), uncompressed)
	return elliptic.MarshalCompressed(elliptic.P256(), x, y)
}

// RawSharedSecret computes the raw X-coordinate ECDH output with the peer's
// SEC1 compressed-point public key. On the legacy suite this value IS the
// session key; no KDF is applied, matching the reference server.
// crypto/ecdh only accepts the uncompressed NIST-curve encoding, so the
// compressed point is decompressed first.
func (kp *LegacyKeyPair) RawSharedSecret(peerPubBytes []byte) ([]byte, error) {
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), peerPubBytes)
	if x == nil {
		return nil, fmt.Errorf("parse peer p-256 public key: invalid compressed point")
	}
	peerPub, err := ecdh.P256().NewPublicKey(elliptic.Marshal(elliptic.P256(), x, y))
	if err != nil {
		return nil, fmt.Errorf("parse peer p-256 public key: %w", err)
	}
	secret, err := kp.private.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("p-256 ecdh: %w", err)
	}
	return secret, nil
}

// HybridECDHKeyPair is the X25519 half of the PQXDH hybrid handshake.
type HybridECDHKeyPair struct {
	private *ecdh.PrivateKey
	public  *ecdh.PublicKey
}

// GenerateHybridECDHKeyPair creates a fresh ephemeral X25519 key pair.
// Per the reference server, PQXDH key material is always generated from
// the system CSPRNG, never from the enclave entropy source.
func GenerateHybridECDHKeyPair() (*HybridECDHKeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate x25519 key: %w", err)
	}
	return &HybridECDHKeyPair{private: priv, public: priv.PublicKey()}, nil
}

// PublicBytes returns the 32-byte X25519 public key.
func (kp *HybridECDHKeyPair) PublicBytes() []byte {
	return kp.public.Bytes()
}

// SharedSecret computes the raw 32-byte X25519 ECDH output with the peer's
// public key; this is combined with the KEM shared secret via HKDF before
// use, never used standalone.
func (kp *HybridECDHKeyPair) SharedSecret(peerPubBytes []byte) ([]byte, error) {
	peerPub, err := ecdh.X25519().NewPublicKey(peerPubBytes)
	if err != nil {
		return nil, fmt.Errorf("parse peer x25519 public key: %w", err)
	}
	secret, err := kp.private.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("x25519 ecdh: %w", err)
	}
	return secret, nil
}

// MLKEM768KeyPair is the post-quantum KEM half of the hybrid handshake.
type MLKEM768KeyPair struct {
	public  *mlkem768.PublicKey
	private *mlkem768.PrivateKey
}

// GenerateMLKEM768KeyPair creates a fresh ML-KEM-768 key pair from the
// system CSPRNG, matching the reference server's use of the default RNG
// (not the enclave entropy source) for this half of the hybrid suite.
func GenerateMLKEM768KeyPair() (*MLKEM768KeyPair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ml-kem-768 key: %w", err)
	}
	return &MLKEM768KeyPair{public: pub, private: priv}, nil
}

// PublicBytes returns the encapsulation key bytes.
func (kp *MLKEM768KeyPair) PublicBytes() []byte {
	b, _ := kp.public.MarshalBinary()
	return b
}

// PrivateBytes returns the decapsulation key bytes, suitable for storing
// in session.HybridPending until key_exchange arrives.
func (kp *MLKEM768KeyPair) PrivateBytes() []byte {
	b, _ := kp.private.MarshalBinary()
	return b
}

// DecapsulationKeyFromBytes reconstructs a decapsulation key previously
// produced by PrivateBytes.
func DecapsulationKeyFromBytes(data []byte) (*MLKEM768KeyPair, error) {
	priv := new(mlkem768.PrivateKey)
	if err := priv.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("unmarshal ml-kem-768 private key: %w", err)
	}
	return &MLKEM768KeyPair{private: priv}, nil
}

// Decapsulate recovers the KEM shared secret from a client-supplied
// ciphertext. CiphertextSize is the expected length (1088 bytes).
func (kp *MLKEM768KeyPair) Decapsulate(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != mlkem768.CiphertextSize {
		return nil, fmt.Errorf("invalid ml-kem-768 ciphertext length: expected %d, got %d",
			mlkem768.CiphertextSize, len(ciphertext))
	}
	shared := make([]byte, mlkem768.SharedKeySize)
	kp.private.DecapsulateTo(shared, ciphertext)
	return shared, nil
}

// CiphertextSize is the fixed ML-KEM-768 encapsulation ciphertext length.
const CiphertextSize = mlkem768.CiphertextSize
