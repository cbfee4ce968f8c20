package archive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	mem := NewMemory()
	payload := []byte(`{"quizId":"abc","score":80}`)

	hash, err := mem.Put(context.Background(), "attempt.json", payload)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	stored, ok := mem.Get(hash)
	require.True(t, ok)
	assert.Equal(t, payload, stored)

	// Content addressing: same payload, same hash.
	again, err := mem.Put(context.Background(), "attempt-copy.json", payload)
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}

func TestPinClientPut(t *testing.T) {
	var gotAuth string
	var gotBody pinRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(pinResponse{IpfsHash: "QmTestHash"})
	}))
	defer srv.Close()

	client := NewPinClient(srv.URL, "secret-token")
	hash, err := client.Put(context.Background(), "quiz-attempt-1.json", []byte(`{"x":1}`))
	require.NoError(t, err)

	assert.Equal(t, "QmTestHash", hash)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "quiz-attempt-1.json", gotBody.Metadata.Name)
	assert.JSONEq(t, `{"x":1}`, string(gotBody.Content))
}

func TestPinClientUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewPinClient(srv.URL, "bad-token")
	_, err := client.Put(context.Background(), "x.json", []byte(`{}`))
	assert.Error(t, err)
}

func TestPinClientMissingHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewPinClient(srv.URL, "token")
	_, err := client.Put(context.Background(), "x.json", []byte(`{}`))
	assert.Error(t, err)
}
