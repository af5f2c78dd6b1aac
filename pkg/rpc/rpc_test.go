package rpc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_Success(t *testing.T) {
	d := NewDispatcher()
	d.Handle("openpassport.health", func(params json.RawMessage) (any, *Error) {
		return map[string]string{"status": "ok"}, nil
	})

	resp := d.Dispatch([]byte(`{"jsonrpc":"2.0","method":"openpassport.health","id":1}`))
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Result))
}

func TestDispatch_UnknownMethod(t *testing.T) {
	d := NewDispatcher()
	resp := d.Dispatch([]byte(`{"jsonrpc":"2.0","method":"nope","id":1}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestDispatch_MalformedJSON(t *testing.T) {
	d := NewDispatcher()
	resp := d.Dispatch([]byte(`not json`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestDispatch_MissingMethod(t *testing.T) {
	d := NewDispatcher()
	resp := d.Dispatch([]byte(`{"jsonrpc":"2.0","id":1}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestDispatch_HandlerError(t *testing.T) {
	d := NewDispatcher()
	d.Handle("fail", func(params json.RawMessage) (any, *Error) {
		return nil, NewError(CodeInvalidParams, "bad params")
	})

	resp := d.Dispatch([]byte(`{"jsonrpc":"2.0","method":"fail","id":1}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestServeStream_MultipleFrames(t *testing.T) {
	d := NewDispatcher()
	d.Handle("echo", func(params json.RawMessage) (any, *Error) {
		return "pong", nil
	})

	input := strings.Repeat(`{"jsonrpc":"2.0","method":"echo","id":1}`+"\n", 3)
	rw := &loopback{r: strings.NewReader(input)}

	err := d.ServeStream(rw)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(rw.written.String(), `"pong"`))
}

type loopback struct {
	r       *strings.Reader
	written strings.Builder
}

func (l *loopback) Read(p []byte) (int, error)  { return l.r.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.written.Write(p) }
