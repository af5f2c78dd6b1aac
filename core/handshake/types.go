// Package handshake implements the cryptographic handshake engine: suite
// negotiation, the hello and key_exchange JSON-RPC methods, and the
// attestation binding that lets a client verify it is talking to the
// enclave it expects.
package handshake

import "encoding/json"

// Suite names as negotiated over the wire. These must match exactly what
// the reference client sends in HelloParams.SupportedSuites.
const (
	suiteHybrid = "Self-PQXDH-1"
	suiteLegacy = "legacy-p256"
)

const mlkem768CiphertextSize = 1088

// HelloParams is the request body of openpassport.hello.
type HelloParams struct {
	UserPubkey      []byte   `json:"user_pubkey"`
	UUID            string   `json:"uuid"`
	SupportedSuites []string `json:"supported_suites"`
}

// HelloResponse answers openpassport.hello with the negotiated suite, an
// attestation document binding the exchanged public keys, and the
// server's own public key material (only populated for the hybrid
// suite).
type HelloResponse struct {
	UUID          string `json:"uuid"`
	Attestation   []byte `json:"attestation"`
	SelectedSuite string `json:"selected_suite"`

	X25519Pubkey []byte `json:"x25519_pubkey,omitempty"`
	KyberPubkey  []byte `json:"kyber_pubkey,omitempty"`
}

// KeyExchangeParams is the request body of openpassport.key_exchange.
type KeyExchangeParams struct {
	UUID            string `json:"uuid"`
	KyberCiphertext []byte `json:"kyber_ciphertext"`
}

func unmarshalParams(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}
