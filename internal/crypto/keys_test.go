package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQuizIDShapeAndUniqueness(t *testing.T) {
	first, err := NewQuizID()
	require.NoError(t, err)
	second, err := NewQuizID()
	require.NoError(t, err)

	assert.Len(t, first, 64)
	assert.NotEqual(t, first, second)
}

func TestDeriveQuizKeyDeterministic(t *testing.T) {
	id, err := NewQuizID()
	require.NoError(t, err)
	salt := []byte("server salt")

	first, err := DeriveQuizKey(id, salt)
	require.NoError(t, err)
	second, err := DeriveQuizKey(id, salt)
	require.NoError(t, err)

	assert.Len(t, first, KeySize)
	assert.Equal(t, first, second)
}

func TestDeriveQuizKeySaltSeparation(t *testing.T) {
	id, err := NewQuizID()
	require.NoError(t, err)

	withSaltA, err := DeriveQuizKey(id, []byte("salt-a"))
	require.NoError(t, err)
	withSaltB, err := DeriveQuizKey(id, []byte("salt-b"))
	require.NoError(t, err)

	assert.NotEqual(t, withSaltA, withSaltB)
}

func TestDeriveQuizKeyRejectsMalformedID(t *testing.T) {
	_, err := DeriveQuizKey("not hex at all", []byte("salt"))
	assert.Error(t, err)
}
