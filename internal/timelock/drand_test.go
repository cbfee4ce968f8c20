package timelock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrandCurrentHeight(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"round":4837261,"randomness":"a3f1"}`))
	}))
	defer srv.Close()

	network := NewDrandNetwork(srv.URL, "52db9ba7")
	height, err := network.CurrentHeight(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(4837261), height)
	assert.Equal(t, "/52db9ba7/public/latest", gotPath)
}

func TestDrandCurrentHeightUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	network := NewDrandNetwork(srv.URL, "52db9ba7")
	_, err := network.CurrentHeight(context.Background())
	assert.Error(t, err)
}

func TestDrandCurrentHeightMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	network := NewDrandNetwork(srv.URL, "52db9ba7")
	_, err := network.CurrentHeight(context.Background())
	assert.Error(t, err)
}
