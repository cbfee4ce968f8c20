// Package archive anchors attempt payloads in content-addressed storage.
// The core only depends on the narrow Put contract; the production client
// talks to a Pinata-style IPFS pinning endpoint.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Archive stores a payload and returns its content hash.
type Archive interface {
	Put(ctx context.Context, name string, payload []byte) (string, error)
}

// HTTPDoer lets tests inject a mock HTTP client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// PinClient pins JSON payloads through an IPFS pinning service.
type PinClient struct {
	PinURL     string
	Token      string
	HTTPClient HTTPDoer
}

// NewPinClient builds a pinning client for the given endpoint and API token.
func NewPinClient(pinURL, token string) *PinClient {
	return &PinClient{PinURL: pinURL, Token: token, HTTPClient: http.DefaultClient}
}

type pinRequest struct {
	Content  json.RawMessage `json:"pinataContent"`
	Metadata pinMetadata     `json:"pinataMetadata"`
}

type pinMetadata struct {
	Name string `json:"name"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Put pins the payload and returns the IPFS content hash.
func (c *PinClient) Put(ctx context.Context, name string, payload []byte) (string, error) {
	body, err := json.Marshal(pinRequest{
		Content:  json.RawMessage(payload),
		Metadata: pinMetadata{Name: name},
	})
	if err != nil {
		return "", fmt.Errorf("encode pin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.PinURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pin request failed: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var pinned pinResponse
	if err := json.Unmarshal(raw, &pinned); err != nil {
		return "", fmt.Errorf("decode pin response: %w", err)
	}
	if pinned.IpfsHash == "" {
		return "", fmt.Errorf("pin response missing hash")
	}
	return pinned.IpfsHash, nil
}

// Memory is an in-process archive keyed by content digest, for tests and
// local development without a pinning account.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemory builds an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, name string, payload []byte) (string, error) {
	digest := sha256.Sum256(payload)
	hash := hex.EncodeToString(digest[:])
	m.mu.Lock()
	m.blobs[hash] = append([]byte(nil), payload...)
	m.mu.Unlock()
	return hash, nil
}

// Get returns a stored payload by hash.
func (m *Memory) Get(hash string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[hash]
	return blob, ok
}
