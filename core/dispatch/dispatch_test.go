package dispatch

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfxyz/tee-prover-server/config"
	"github.com/selfxyz/tee-prover-server/core/session"
	"github.com/selfxyz/tee-prover-server/internal/logger"
)

func seal(t *testing.T, key, nonce, plaintext []byte) (ciphertext, tag []byte) {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return sealed[:len(sealed)-gcm.Overhead()], sealed[len(sealed)-gcm.Overhead():]
}

func newTestGate(t *testing.T, policy config.DeployPolicy, circuits []string) (*Gate, *session.Store, *Queue) {
	t.Helper()
	store := session.NewStore(10)
	catalog := NewCatalog(circuits)
	queue := NewQueue(4, time.Second)
	gate := NewGate(store, catalog, queue, policy, logger.NewDefaultLogger())
	return gate, store, queue
}

func sealedParams(t *testing.T, key []byte, id string, body string) submitParams {
	t.Helper()
	nonce := make([]byte, 12)
	_, err := rand.Read(nonce)
	require.NoError(t, err)
	ct, tag := seal(t, key, nonce, []byte(body))
	return submitParams{UUID: id, Nonce: nonce, CipherText: ct, AuthTag: tag}
}

func TestGate_SuccessfulSubmit_RemovesSessionAndEnqueues(t *testing.T) {
	gate, store, queue := newTestGate(t, config.PolicyRegister, []string{"register_sha256_sha256_sha256_rsa_65537_4096"})

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	id := uuid.New().String()
	require.NoError(t, store.InsertNewAgreement(id, session.SuiteLegacy, session.NewLegacyComplete(key)))

	body := `{"onchain":false,"type":"register","circuit":{"name":"register_sha256_sha256_sha256_rsa_65537_4096"}}`
	params := sealedParams(t, key, id, body)
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	result, rpcErr := gate.handleSubmitRequest(raw)
	require.Nil(t, rpcErr)
	assert.Equal(t, id, result)

	_, ok := store.GetKeyMaterial(id)
	assert.False(t, ok, "session is single-use")

	select {
	case job := <-queue.Jobs():
		assert.Equal(t, id, job.SessionID)
		assert.Equal(t, TypeRegister, job.Request.Type)
	default:
		t.Fatal("expected exactly one queued job")
	}
}

func TestGate_RejectsUnknownUUID(t *testing.T) {
	gate, _, _ := newTestGate(t, config.PolicyCherrypick, nil)
	params := submitParams{UUID: uuid.New().String(), Nonce: make([]byte, 12), CipherText: []byte("x"), AuthTag: make([]byte, 16)}
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	_, rpcErr := gate.handleSubmitRequest(raw)
	require.NotNil(t, rpcErr)
}

func TestGate_RejectsDecryptFailure(t *testing.T) {
	gate, store, _ := newTestGate(t, config.PolicyCherrypick, nil)

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	id := uuid.New().String()
	require.NoError(t, store.InsertNewAgreement(id, session.SuiteLegacy, session.NewLegacyComplete(key)))

	wrongKey := make([]byte, 32)
	_, err = rand.Read(wrongKey)
	require.NoError(t, err)
	params := sealedParams(t, wrongKey, id, `{"type":"register"}`)
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	_, rpcErr := gate.handleSubmitRequest(raw)
	require.NotNil(t, rpcErr)

	_, ok := store.GetKeyMaterial(id)
	assert.False(t, ok, "session removed on decrypt failure")
}

func TestGate_RejectsUnknownCircuit(t *testing.T) {
	gate, store, _ := newTestGate(t, config.PolicyCherrypick, []string{"known_circuit"})

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	id := uuid.New().String()
	require.NoError(t, store.InsertNewAgreement(id, session.SuiteLegacy, session.NewLegacyComplete(key)))

	body := `{"onchain":false,"type":"register","circuit":{"name":"unknown_circuit"}}`
	params := sealedParams(t, key, id, body)
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	_, rpcErr := gate.handleSubmitRequest(raw)
	require.NotNil(t, rpcErr)
}

func TestGate_RejectsPolicyMismatch(t *testing.T) {
	gate, store, _ := newTestGate(t, config.PolicyDisclose, []string{"circuit_a"})

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	id := uuid.New().String()
	require.NoError(t, store.InsertNewAgreement(id, session.SuiteLegacy, session.NewLegacyComplete(key)))

	body := `{"onchain":false,"type":"register","circuit":{"name":"circuit_a"}}`
	params := sealedParams(t, key, id, body)
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	_, rpcErr := gate.handleSubmitRequest(raw)
	require.NotNil(t, rpcErr)
}

func TestGate_CherrypickAllowsAnyFamily(t *testing.T) {
	gate, store, _ := newTestGate(t, config.PolicyCherrypick, []string{"circuit_a"})

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	id := uuid.New().String()
	require.NoError(t, store.InsertNewAgreement(id, session.SuiteLegacy, session.NewLegacyComplete(key)))

	body := `{"onchain":true,"type":"disclose_aadhaar","circuit":{"name":"circuit_a"},"endpoint_type":"celo","version":2}`
	params := sealedParams(t, key, id, body)
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	result, rpcErr := gate.handleSubmitRequest(raw)
	require.Nil(t, rpcErr)
	assert.Equal(t, id, result)
}
