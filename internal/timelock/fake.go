package timelock

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// FakeOracle is a deterministic height oracle for tests. Height moves only
// through Advance/SetHeight, mirroring a real chain's monotonic growth.
type FakeOracle struct {
	mu     sync.Mutex
	height uint64

	// Err, when set, simulates oracle transport failure.
	Err error
}

// NewFakeOracle starts the fake chain at the given height.
func NewFakeOracle(height uint64) *FakeOracle {
	return &FakeOracle{height: height}
}

func (f *FakeOracle) CurrentHeight(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	return f.height, nil
}

// Advance moves the chain forward by delta heights.
func (f *FakeOracle) Advance(delta uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.height += delta
}

// SetHeight jumps the chain to an absolute height.
func (f *FakeOracle) SetHeight(height uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.height = height
}

// FakePrimitive simulates a time-lock scheme by embedding the target height
// in the ciphertext and releasing the payload once its oracle has passed it.
type FakePrimitive struct {
	Oracle *FakeOracle

	// EncryptErr and DecryptErr simulate primitive failures.
	EncryptErr error
	DecryptErr error

	mu      sync.Mutex
	counter int
}

const fakePrefix = "FAKETLOCK"

func (f *FakePrimitive) EncryptForHeight(ctx context.Context, payload []byte, targetHeight uint64) ([]byte, string, error) {
	if f.EncryptErr != nil {
		return nil, "", f.EncryptErr
	}
	f.mu.Lock()
	f.counter++
	requestID := fmt.Sprintf("fake-req-%d", f.counter)
	f.mu.Unlock()

	ciphertext := fmt.Sprintf("%s:%d:%s", fakePrefix, targetHeight, base64.StdEncoding.EncodeToString(payload))
	return []byte(ciphertext), requestID, nil
}

func (f *FakePrimitive) TryDecrypt(ctx context.Context, requestID string, ciphertext []byte) ([]byte, error) {
	if f.DecryptErr != nil {
		return nil, f.DecryptErr
	}

	parts := strings.SplitN(string(ciphertext), ":", 3)
	if len(parts) != 3 || parts[0] != fakePrefix {
		return nil, fmt.Errorf("invalid fake tlock ciphertext")
	}
	target, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid fake tlock target: %w", err)
	}

	current, err := f.Oracle.CurrentHeight(ctx)
	if err != nil {
		return nil, err
	}
	if current < target {
		return nil, fmt.Errorf("%w: current=%d target=%d", ErrReleaseNotReady, current, target)
	}
	return base64.StdEncoding.DecodeString(parts[2])
}
