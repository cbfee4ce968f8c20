package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, KeySize)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte(`{"questions":[{"text":"what prints?","answer":2}]}`)

	env, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmAES256GCM, env.Algorithm)

	recovered, err := Decrypt(env, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestEncryptRejectsBadKeyLength(t *testing.T) {
	_, err := Encrypt([]byte("payload"), []byte("short"))
	assert.ErrorIs(t, err, ErrEncryption)
}

func TestEncryptGeneratesFreshIV(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("same payload")

	first, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	second, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	assert.NotEqual(t, first.IV, second.IV)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key := testKey(t)
	env, err := Encrypt([]byte("the answer is 3"), key)
	require.NoError(t, err)

	raw, err := hex.DecodeString(env.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0x01
	env.Ciphertext = hex.EncodeToString(raw)

	plaintext, err := Decrypt(env, key)
	assert.ErrorIs(t, err, ErrDecryption)
	assert.Nil(t, plaintext)
}

func TestDecryptRejectsTamperedTag(t *testing.T) {
	key := testKey(t)
	env, err := Encrypt([]byte("the answer is 3"), key)
	require.NoError(t, err)

	raw, err := hex.DecodeString(env.Tag)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x80
	env.Tag = hex.EncodeToString(raw)

	_, err = Decrypt(env, key)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	env, err := Encrypt([]byte("secret"), testKey(t))
	require.NoError(t, err)

	other := bytes.Repeat([]byte{0x24}, KeySize)
	_, err = Decrypt(env, other)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptRejectsUnknownAlgorithm(t *testing.T) {
	key := testKey(t)
	env, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	env.Algorithm = "aes-128-cbc"
	_, err = Decrypt(env, key)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptRejectsMalformedHex(t *testing.T) {
	key := testKey(t)
	env, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	env.IV = "not-hex"
	_, err = Decrypt(env, key)
	assert.ErrorIs(t, err, ErrDecryption)
}
