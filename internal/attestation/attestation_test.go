package attestation

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAttestor_ReturnsStructuredDocument(t *testing.T) {
	doc, err := MockAttestor{}.Attest(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(doc, &parsed))
	assert.Equal(t, "USER", parsed["audience"])
	assert.Equal(t, true, parsed["mock"])
}

func TestHTTPAttestor_CallsUnixSocket(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "teeserver.sock")

	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "USER", req.Audience)
		assert.Equal(t, []string{"n1", "n2"}, req.Nonces)
		w.Write([]byte("attestation-document"))
	})
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	defer srv.Close()

	a := NewHTTPAttestor(sockPath)
	doc, err := a.Attest(context.Background(), []string{"n1", "n2"})
	require.NoError(t, err)
	assert.Equal(t, "attestation-document", string(doc))
}

func TestHTTPAttestor_DefaultsSocketPath(t *testing.T) {
	a := NewHTTPAttestor("")
	assert.NotNil(t, a)
}
