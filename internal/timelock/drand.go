package timelock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/drand/tlock"
	thttp "github.com/drand/tlock/networks/http"
	"github.com/google/uuid"
)

// HTTPDoer lets tests inject a mock HTTP client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// DrandNetwork implements HeightOracle and Primitive over a drand randomness
// beacon. A "height" is a beacon round number: strictly increasing, one round
// per beacon period, which satisfies the monotonic-oracle contract. Beacon
// decryption needs no funded transaction, so the generated request id is a
// purely opaque audit handle.
type DrandNetwork struct {
	BaseURL    string
	ChainHash  string
	HTTPClient HTTPDoer
}

// NewDrandNetwork builds a drand-backed network client.
func NewDrandNetwork(baseURL, chainHash string) *DrandNetwork {
	return &DrandNetwork{
		BaseURL:    baseURL,
		ChainHash:  chainHash,
		HTTPClient: http.DefaultClient,
	}
}

type drandPublicResponse struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
}

// CurrentHeight fetches the latest published beacon round.
func (d *DrandNetwork) CurrentHeight(ctx context.Context) (uint64, error) {
	url := fmt.Sprintf("%s/%s/public/latest", d.BaseURL, d.ChainHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("drand latest round request failed: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var public drandPublicResponse
	if err := json.Unmarshal(body, &public); err != nil {
		return 0, err
	}
	return public.Round, nil
}

// EncryptForHeight time-locks payload to the target round.
func (d *DrandNetwork) EncryptForHeight(ctx context.Context, payload []byte, targetHeight uint64) ([]byte, string, error) {
	network, err := thttp.NewNetwork(d.BaseURL, d.ChainHash)
	if err != nil {
		return nil, "", fmt.Errorf("create tlock network: %w", err)
	}

	var ciphertext bytes.Buffer
	if err := tlock.New(network).Encrypt(&ciphertext, bytes.NewReader(payload), targetHeight); err != nil {
		return nil, "", fmt.Errorf("tlock encrypt: %w", err)
	}
	return ciphertext.Bytes(), uuid.NewString(), nil
}

// TryDecrypt recovers the payload once the target round's beacon signature
// has been published. Before that, tlock reports the round as too early,
// which maps to the retryable not-ready error.
func (d *DrandNetwork) TryDecrypt(ctx context.Context, requestID string, ciphertext []byte) ([]byte, error) {
	network, err := thttp.NewNetwork(d.BaseURL, d.ChainHash)
	if err != nil {
		return nil, fmt.Errorf("create tlock network: %w", err)
	}

	var payload bytes.Buffer
	if err := tlock.New(network).Decrypt(&payload, bytes.NewReader(ciphertext)); err != nil {
		if errors.Is(err, tlock.ErrTooEarly) {
			return nil, fmt.Errorf("%w: %v", ErrReleaseNotReady, err)
		}
		return nil, err
	}
	return payload.Bytes(), nil
}
