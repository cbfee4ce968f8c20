package timelock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// MaxPayloadSize bounds what may be time-lock encrypted. Callers lock a
// fixed-size key-wrapping value, never full quiz content.
const MaxPayloadSize = 256

var (
	// ErrOracleUnavailable signals a transport failure talking to the height
	// oracle. Retryable with backoff; never interpreted as "height is zero".
	ErrOracleUnavailable = errors.New("height oracle unavailable")
	// ErrInvalidSchedule is returned for release times at or before now.
	ErrInvalidSchedule = errors.New("release time must be in the future")
	// ErrPayloadTooLarge is returned when the payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("time-lock payload exceeds size bound")
	// ErrReleaseNotReady means the decryption key has not been delivered yet.
	// Retryable: expected until the target height is reached.
	ErrReleaseNotReady = errors.New("release height not reached")
	// ErrDecryptionFailed is permanent: malformed request or lost key
	// delivery. The lifecycle layer degrades to its fallback path on it.
	ErrDecryptionFailed = errors.New("time-lock decryption failed")
)

// HeightOracle reports the current height of the release-condition ledger.
// Heights are monotonically non-decreasing across calls on one chain.
type HeightOracle interface {
	CurrentHeight(ctx context.Context) (uint64, error)
}

// Primitive is the capability interface over a time-lock encryption scheme.
// TryDecrypt receives both the request id and the bound ciphertext so that
// beacon-based schemes (which decrypt locally from the ciphertext) and
// ledger-callback schemes (which resolve by request id) both fit.
type Primitive interface {
	EncryptForHeight(ctx context.Context, payload []byte, targetHeight uint64) (ciphertext []byte, requestID string, err error)
	TryDecrypt(ctx context.Context, requestID string, ciphertext []byte) ([]byte, error)
}

// Options tunes gateway behavior.
type Options struct {
	// SecondsPerHeight converts wall-clock lead time to height units.
	SecondsPerHeight int
	// OracleTimeout bounds every oracle and primitive call so a hung ledger
	// cannot stall unrelated quiz operations.
	OracleTimeout time.Duration
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Gateway bridges wall-clock scheduling to the time-lock primitive and its
// height oracle.
type Gateway struct {
	oracle           HeightOracle
	primitive        Primitive
	secondsPerHeight int
	timeout          time.Duration
	now              func() time.Time
	logger           zerolog.Logger
}

// NewGateway constructs a gateway over the given oracle and primitive.
func NewGateway(oracle HeightOracle, primitive Primitive, opts Options, logger zerolog.Logger) *Gateway {
	if opts.SecondsPerHeight <= 0 {
		opts.SecondsPerHeight = 1
	}
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gateway{
		oracle:           oracle,
		primitive:        primitive,
		secondsPerHeight: opts.SecondsPerHeight,
		timeout:          opts.OracleTimeout,
		now:              opts.Now,
		logger:           logger.With().Str("component", "timelock_gateway").Logger(),
	}
}

// CurrentHeight queries the oracle with a bounded timeout.
func (g *Gateway) CurrentHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	height, err := g.oracle.CurrentHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return height, nil
}

// ComputeTargetHeight maps a wall-clock release instant onto the ledger:
// current height plus the ceiling of the remaining seconds over the height
// period. Lead-time minimums are the caller's responsibility; anything at or
// before now is rejected here.
func (g *Gateway) ComputeTargetHeight(ctx context.Context, releaseAt time.Time) (uint64, error) {
	now := g.now()
	if !releaseAt.After(now) {
		return 0, fmt.Errorf("%w: releaseAt=%s now=%s", ErrInvalidSchedule, releaseAt.Format(time.RFC3339), now.Format(time.RFC3339))
	}

	current, err := g.CurrentHeight(ctx)
	if err != nil {
		return 0, err
	}

	lead := releaseAt.Sub(now).Seconds()
	units := uint64(math.Ceil(lead / float64(g.secondsPerHeight)))
	return current + units, nil
}

// EncryptUntil time-lock encrypts payload against targetHeight.
func (g *Gateway) EncryptUntil(ctx context.Context, payload []byte, targetHeight uint64) (ciphertext []byte, requestID string, err error) {
	if len(payload) > MaxPayloadSize {
		return nil, "", fmt.Errorf("%w: %d bytes, bound is %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ciphertext, requestID, err = g.primitive.EncryptForHeight(ctx, payload, targetHeight)
	if err != nil {
		return nil, "", err
	}
	g.logger.Info().Str("request_id", requestID).Uint64("target_height", targetHeight).Msg("payload time-lock encrypted")
	return ciphertext, requestID, nil
}

// IsReleased reports whether the ledger has reached targetHeight. Always a
// live oracle read: released is a monotonic predicate, so a stale "not ready"
// is safe but a cached "ready" is not.
func (g *Gateway) IsReleased(ctx context.Context, targetHeight uint64) (bool, error) {
	current, err := g.CurrentHeight(ctx)
	if err != nil {
		return false, err
	}
	return current >= targetHeight, nil
}

// Decrypt attempts to recover the time-lock protected payload. Returns
// ErrReleaseNotReady while the condition is unsatisfied and
// ErrDecryptionFailed for permanent failures.
func (g *Gateway) Decrypt(ctx context.Context, requestID string, ciphertext []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	payload, err := g.primitive.TryDecrypt(ctx, requestID, ciphertext)
	if err != nil {
		if errors.Is(err, ErrReleaseNotReady) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return payload, nil
}
