package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// AlgorithmAES256GCM is the only algorithm the envelope format supports.
	AlgorithmAES256GCM = "aes-256-gcm"

	// KeySize is the required symmetric key length in bytes.
	KeySize = 32
	// NonceSize is the IV length in bytes. Generated fresh inside Encrypt on
	// every call; callers cannot supply one, so a nonce is never reused for a
	// given key.
	NonceSize = 16
)

var (
	// ErrEncryption wraps failures of the underlying cipher primitive.
	ErrEncryption = errors.New("encryption failed")
	// ErrDecryption covers unknown algorithm ids, wrong key lengths and
	// authentication-tag mismatches. No partial plaintext is ever returned.
	ErrDecryption = errors.New("decryption failed")
)

// Envelope carries one encryption result with independently recoverable
// fields, all hex-encoded.
type Envelope struct {
	Ciphertext string `json:"encrypted"`
	IV         string `json:"iv"`
	Tag        string `json:"tag"`
	Algorithm  string `json:"algorithm"`
}

// Encrypt seals plaintext under a 256-bit key with AES-256-GCM.
func Encrypt(plaintext, key []byte) (Envelope, error) {
	if len(key) != KeySize {
		return Envelope{}, fmt.Errorf("%w: key must be %d bytes, got %d", ErrEncryption, KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	iv := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()

	return Envelope{
		Ciphertext: hex.EncodeToString(sealed[:tagStart]),
		IV:         hex.EncodeToString(iv),
		Tag:        hex.EncodeToString(sealed[tagStart:]),
		Algorithm:  AlgorithmAES256GCM,
	}, nil
}

// Decrypt opens an envelope with the given key. Any tamper with ciphertext,
// IV or tag fails tag verification and returns ErrDecryption.
func Decrypt(env Envelope, key []byte) ([]byte, error) {
	if env.Algorithm != AlgorithmAES256GCM {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrDecryption, env.Algorithm)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrDecryption, KeySize, len(key))
	}

	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ciphertext: %v", ErrDecryption, err)
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed iv: %v", ErrDecryption, err)
	}
	tag, err := hex.DecodeString(env.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed tag: %v", ErrDecryption, err)
	}
	if len(iv) != NonceSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrDecryption, NonceSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryption)
	}
	return plaintext, nil
}
