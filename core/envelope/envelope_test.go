package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestDecrypt_RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	nonce := make([]byte, 12)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	ciphertext, tag := seal(t, key, nonce, []byte(`{"hello":"world"}`))

	plaintext, err := Decrypt(key, ciphertext, tag, nonce)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(plaintext))
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	nonce := make([]byte, 12)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	ciphertext, tag := seal(t, key, nonce, []byte("secret"))

	wrongKey := make([]byte, 32)
	_, err = rand.Read(wrongKey)
	require.NoError(t, err)

	_, err = Decrypt(wrongKey, ciphertext, tag, nonce)
	assert.Error(t, err)
}

func TestDecrypt_WrongNonceLengthFails(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	_, err = Decrypt(key, []byte("x"), []byte("y"), []byte("short"))
	assert.Error(t, err)
}
