package dispatch

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/selfxyz/tee-prover-server/config"
	"github.com/selfxyz/tee-prover-server/core/envelope"
	"github.com/selfxyz/tee-prover-server/core/session"
	"github.com/selfxyz/tee-prover-server/internal/logger"
	"github.com/selfxyz/tee-prover-server/internal/metrics"
	"github.com/selfxyz/tee-prover-server/pkg/rpc"
)

// Gate implements the submit_request JSON-RPC method: it recovers the
// negotiated session key, decrypts the payload, enforces deploy policy
// and circuit-catalog membership, and hands the request to the
// downstream queue. Every error path removes the session — it is
// single-use regardless of outcome.
type Gate struct {
	store   *session.Store
	catalog *Catalog
	queue   *Queue
	policy  config.DeployPolicy
	log     logger.Logger
}

// NewGate builds a payload gate bound to store, catalog, queue, and the
// deploy policy this instance enforces.
func NewGate(store *session.Store, catalog *Catalog, queue *Queue, policy config.DeployPolicy, log logger.Logger) *Gate {
	return &Gate{store: store, catalog: catalog, queue: queue, policy: policy, log: log}
}

// Register wires this gate's method into a dispatcher.
func (g *Gate) Register(d *rpc.Dispatcher) {
	d.Handle("openpassport.submit_request", g.handleSubmitRequest)
}

// submitParams is the wire shape of submit_request's params: the session
// id and the AES-256-GCM sealed payload, carried as separate
// ciphertext/auth-tag fields per the envelope decryptor's contract.
type submitParams struct {
	UUID       string `json:"uuid"`
	Nonce      []byte `json:"nonce"`
	CipherText []byte `json:"cipher_text"`
	AuthTag    []byte `json:"auth_tag"`
}

func (g *Gate) handleSubmitRequest(raw json.RawMessage) (any, *rpc.Error) {
	var params submitParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "malformed submit_request params: "+err.Error())
	}

	sessionKey, ok := g.store.GetSharedSecret(params.UUID)
	if !ok {
		g.store.RemoveAgreement(params.UUID)
		g.fail()
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "UUID not found")
	}

	plaintext, err := envelope.Decrypt(sessionKey, params.CipherText, params.AuthTag, params.Nonce)
	if err != nil || !utf8.Valid(plaintext) {
		g.store.RemoveAgreement(params.UUID)
		g.fail()
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "Failed to decrypt text")
	}

	var req SubmitRequest
	if jerr := json.Unmarshal(plaintext, &req); jerr != nil {
		g.store.RemoveAgreement(params.UUID)
		g.fail()
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "Failed to parse proof request")
	}

	family, known := req.Type.family()
	if !known {
		g.store.RemoveAgreement(params.UUID)
		g.fail()
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "Failed to parse proof request")
	}

	if g.policy != config.PolicyCherrypick && string(family) != string(g.policy) {
		g.store.RemoveAgreement(params.UUID)
		g.fail()
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "request family does not match deploy policy")
	}

	if !g.catalog.Has(req.Circuit.Name) {
		g.store.RemoveAgreement(params.UUID)
		g.fail()
		return nil, rpc.NewError(rpc.CodeInvalidRequest, "unknown circuit: "+req.Circuit.Name)
	}

	if err := g.queue.Send(context.Background(), Job{SessionID: params.UUID, Request: req}); err != nil {
		g.store.RemoveAgreement(params.UUID)
		g.fail()
		return nil, rpc.NewError(rpc.CodeInternalError, "failed to enqueue proof request: "+err.Error())
	}

	g.store.RemoveAgreement(params.UUID)
	metrics.MessagesProcessed.WithLabelValues("submit_request", "success").Inc()
	return params.UUID, nil
}

func (g *Gate) fail() {
	metrics.MessagesProcessed.WithLabelValues("submit_request", "failure").Inc()
}
