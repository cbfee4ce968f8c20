package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// NewQuizID returns a fresh 256-bit identifier, hex-encoded. The id is the
// quiz's public handle; the cipher key is derived from it, never used raw.
func NewQuizID() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generate quiz id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DeriveQuizKey expands a quiz id into the symmetric key for its sensitive
// set via HKDF-SHA256 with a server-side salt. The id alone (if logged or
// leaked before the time-lock is bound) cannot reconstruct the key.
func DeriveQuizKey(quizID string, salt []byte) ([]byte, error) {
	idBytes, err := hex.DecodeString(quizID)
	if err != nil {
		return nil, fmt.Errorf("derive quiz key: malformed quiz id: %w", err)
	}
	key := make([]byte, KeySize)
	reader := hkdf.New(sha256.New, idBytes, salt, []byte("chainquiz sensitive-set key v1"))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive quiz key: %w", err)
	}
	return key, nil
}
