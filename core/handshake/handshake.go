package handshake

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/selfxyz/tee-prover-server/core/session"
	"github.com/selfxyz/tee-prover-server/internal/attestation"
	"github.com/selfxyz/tee-prover-server/internal/entropy"
	"github.com/selfxyz/tee-prover-server/internal/kex"
	"github.com/selfxyz/tee-prover-server/internal/logger"
	"github.com/selfxyz/tee-prover-server/internal/metrics"
	"github.com/selfxyz/tee-prover-server/pkg/rpc"
)

// Engine implements the hello and key_exchange JSON-RPC methods against a
// session store, an attestation sidecar, and the entropy source backing
// the legacy suite's P-256 key generation.
type Engine struct {
	store    *session.Store
	attestor attestation.Attestor
	entropy  entropy.Source
	log      logger.Logger
}

// NewEngine builds a handshake engine backed by store, attestor, and
// entropy source.
func NewEngine(store *session.Store, attestor attestation.Attestor, src entropy.Source, log logger.Logger) *Engine {
	return &Engine{store: store, attestor: attestor, entropy: src, log: log}
}

// Register wires this engine's methods into a dispatcher.
func (e *Engine) Register(d *rpc.Dispatcher) {
	d.Handle("openpassport.hello", e.handleHello)
	d.Handle("openpassport.key_exchange", e.handleKeyExchange)
}

func (e *Engine) handleHello(raw json.RawMessage) (any, *rpc.Error) {
	var params HelloParams
	if err := unmarshalParams(raw, &params); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "malformed hello params: "+err.Error())
	}
	if _, err := uuid.Parse(params.UUID); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "uuid must be a valid UUID")
	}

	selected, ok := negotiateSuite(params.SupportedSuites)
	if !ok {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "No supported cryptographic suite found")
	}

	metrics.HandshakesInitiated.WithLabelValues("server").Inc()

	if selected == suiteHybrid {
		return e.helloHybrid(params)
	}
	return e.helloLegacy(params)
}

func (e *Engine) helloHybrid(params HelloParams) (any, *rpc.Error) {
	if len(params.UserPubkey) != 32 {
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "X25519 public key must be 32 bytes")
	}

	x25519Pair, err := kex.GenerateHybridECDHKeyPair()
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInternalError, "generate x25519 keypair: "+err.Error())
	}
	x25519Shared, err := x25519Pair.SharedSecret(params.UserPubkey)
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, err.Error())
	}

	kemPair, err := kex.GenerateMLKEM768KeyPair()
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInternalError, "generate ml-kem-768 keypair: "+err.Error())
	}

	km := session.NewHybridPending(x25519Shared, kemPair.PrivateBytes())
	if err := e.store.InsertNewAgreement(params.UUID, session.SuiteHybrid, km); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "UUID already exists")
	}

	x25519PubB64 := base64.StdEncoding.EncodeToString(x25519Pair.PublicBytes())
	kyberPubB64 := base64.StdEncoding.EncodeToString(kemPair.PublicBytes())

	doc, err := e.attestor.Attest(context.Background(), []string{x25519PubB64, kyberPubB64, suiteHybrid})
	if err != nil {
		e.store.RemoveAgreement(params.UUID)
		return nil, rpc.NewError(rpc.CodeInternalError, err.Error())
	}

	return HelloResponse{
		UUID:          params.UUID,
		Attestation:   doc,
		SelectedSuite: suiteHybrid,
		X25519Pubkey:  x25519Pair.PublicBytes(),
		KyberPubkey:   kemPair.PublicBytes(),
	}, nil
}

func (e *Engine) helloLegacy(params HelloParams) (any, *rpc.Error) {
	if len(params.UserPubkey) != 33 {
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "P-256 public key must be 33 bytes")
	}

	pair, err := kex.GenerateLegacyKeyPair(entropy.AsReader(e.entropy))
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInternalError, "generate p-256 keypair: "+err.Error())
	}
	shared, err := pair.RawSharedSecret(params.UserPubkey)
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, err.Error())
	}

	theirPubB64 := base64.StdEncoding.EncodeToString(params.UserPubkey)
	myPubB64 := base64.StdEncoding.EncodeToString(pair.PublicBytes())

	doc, err := e.attestor.Attest(context.Background(), []string{theirPubB64, myPubB64})
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInternalError, err.Error())
	}

	km := session.NewLegacyComplete(shared)
	if err := e.store.InsertNewAgreement(params.UUID, session.SuiteLegacy, km); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "UUID already exists")
	}

	return HelloResponse{
		UUID:          params.UUID,
		Attestation:   doc,
		SelectedSuite: suiteLegacy,
	}, nil
}

func (e *Engine) handleKeyExchange(raw json.RawMessage) (any, *rpc.Error) {
	var params KeyExchangeParams
	if err := unmarshalParams(raw, &params); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "malformed key_exchange params: "+err.Error())
	}

	if len(params.KyberCiphertext) != mlkem768CiphertextSize {
		return nil, rpc.NewError(rpc.CodeInvalidRequest, fmt.Sprintf("invalid kyber ciphertext length: expected %d, got %d",
			mlkem768CiphertextSize, len(params.KyberCiphertext)))
	}

	km, ok := e.store.GetKeyMaterial(params.UUID)
	if !ok {
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "UUID not found")
	}
	if km.HybridPending == nil {
		e.store.RemoveAgreement(params.UUID)
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "UUID is not in PQXDH pending state")
	}

	kemPair, err := kex.DecapsulationKeyFromBytes(km.HybridPending.KyberDecapsKeyBytes)
	if err != nil {
		e.store.RemoveAgreement(params.UUID)
		return nil, rpc.NewError(rpc.CodeInternalError, "invalid decapsulation key: "+err.Error())
	}
	kyberShared, err := kemPair.Decapsulate(params.KyberCiphertext)
	if err != nil {
		e.store.RemoveAgreement(params.UUID)
		return nil, rpc.NewError(rpc.CodeInternalError, "decapsulation failed: "+err.Error())
	}

	sessionKey, err := kex.CombinePQXDHSecrets(km.HybridPending.X25519Shared, kyberShared)
	if err != nil {
		e.store.RemoveAgreement(params.UUID)
		return nil, rpc.NewError(rpc.CodeInternalError, "hkdf expansion failed: "+err.Error())
	}

	if err := e.store.UpdateKeyMaterial(params.UUID, session.NewHybridComplete(sessionKey)); err != nil {
		e.store.RemoveAgreement(params.UUID)
		return nil, rpc.NewError(rpc.CodeInternalError, "failed to update key material: "+err.Error())
	}

	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	return "key_exchange_complete", nil
}
