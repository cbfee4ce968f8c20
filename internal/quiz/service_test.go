package quiz

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainquiz/chainquiz/internal/archive"
	"github.com/chainquiz/chainquiz/internal/timelock"
)

type memoryStore struct {
	quizzes  map[string]Quiz
	attempts []AttemptRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{quizzes: map[string]Quiz{}}
}

func (s *memoryStore) CreateQuiz(_ context.Context, q Quiz) error {
	s.quizzes[q.ID] = q
	return nil
}

func (s *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	q, ok := s.quizzes[id]
	if !ok {
		return Quiz{}, fmt.Errorf("%w: quiz %s", ErrNotFound, id)
	}
	return q, nil
}

func (s *memoryStore) BindTimelock(_ context.Context, id, requestID, ciphertext string, targetHeight uint64) error {
	q, ok := s.quizzes[id]
	if !ok {
		return fmt.Errorf("%w: quiz %s", ErrNotFound, id)
	}
	if q.TimelockRequestID != "" {
		return fmt.Errorf("%w: quiz %s", ErrAlreadyBound, id)
	}
	q.TimelockRequestID = requestID
	q.TimelockCiphertext = ciphertext
	q.TargetHeight = targetHeight
	s.quizzes[id] = q
	return nil
}

func (s *memoryStore) InsertAttempt(_ context.Context, rec AttemptRecord) error {
	s.attempts = append(s.attempts, rec)
	return nil
}

func (s *memoryStore) ListAttempts(_ context.Context, quizID string) ([]AttemptRecord, error) {
	var out []AttemptRecord
	for _, rec := range s.attempts {
		if rec.QuizID == quizID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memoryStore) ListByCreator(_ context.Context, creator string) ([]Metadata, error) {
	var out []Metadata
	for _, q := range s.quizzes {
		if q.Creator == creator {
			out = append(out, toMetadata(q))
		}
	}
	return out, nil
}

func (s *memoryStore) ListAll(_ context.Context) ([]Metadata, error) {
	var out []Metadata
	for _, q := range s.quizzes {
		out = append(out, toMetadata(q))
	}
	return out, nil
}

type memorySensitiveCache struct {
	store map[string]SensitiveSet
}

func newMemorySensitiveCache() *memorySensitiveCache {
	return &memorySensitiveCache{store: map[string]SensitiveSet{}}
}

func (c *memorySensitiveCache) Get(_ context.Context, quizID string) (*SensitiveSet, error) {
	if set, ok := c.store[quizID]; ok {
		return &set, nil
	}
	return nil, nil
}

func (c *memorySensitiveCache) Set(_ context.Context, quizID string, set SensitiveSet) error {
	c.store[quizID] = set
	return nil
}

type fixture struct {
	svc       *Service
	store     *memoryStore
	cache     *memorySensitiveCache
	archive   *archive.Memory
	oracle    *timelock.FakeOracle
	primitive *timelock.FakePrimitive
	gateway   *timelock.Gateway
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	oracle := timelock.NewFakeOracle(1000)
	primitive := &timelock.FakePrimitive{Oracle: oracle}
	gateway := timelock.NewGateway(oracle, primitive, timelock.Options{
		SecondsPerHeight: 3,
		OracleTimeout:    time.Second,
		Now:              func() time.Time { return now },
	}, zerolog.Nop())

	store := newMemoryStore()
	cache := newMemorySensitiveCache()
	arch := archive.NewMemory()

	svc := NewService(store, gateway, cache, arch, ServiceOptions{
		KeySalt:     []byte("test salt"),
		SubsetNames: []string{"A", "B", "C", "D", "E", "F", "G"},
		SubsetSize:  10,
		MinLeadTime: 5 * time.Minute,
		Now:         func() time.Time { return now },
	}, zerolog.Nop())

	return &fixture{
		svc:       svc,
		store:     store,
		cache:     cache,
		archive:   arch,
		oracle:    oracle,
		primitive: primitive,
		gateway:   gateway,
		now:       now,
	}
}

func makeQuestions(n int) []Question {
	questions := make([]Question, n)
	for i := range questions {
		questions[i] = Question{
			Text:    fmt.Sprintf("question %d", i),
			Options: []string{"a", "b", "c", "d"},
			Answer:  i % 4,
		}
	}
	return questions
}

// createAndBind walks the two-step lifecycle: create, then time-lock the
// returned key material and bind the result, the way a creator client would.
func (f *fixture) createAndBind(t *testing.T, questionCount int) CreateResult {
	t.Helper()

	result, err := f.svc.CreateQuiz(context.Background(), CreateRequest{
		Questions: makeQuestions(questionCount),
		Creator:   "0xabc",
		Title:     "go basics",
		StartAt:   f.now.Add(10 * time.Minute),
		Duration:  30 * time.Minute,
	})
	require.NoError(t, err)

	key, err := hex.DecodeString(result.KeyMaterial)
	require.NoError(t, err)

	ciphertext, requestID, err := f.gateway.EncryptUntil(context.Background(), key, result.TargetHeight)
	require.NoError(t, err)

	err = f.svc.BindTimeLock(context.Background(), result.QuizID,
		requestID, base64.StdEncoding.EncodeToString(ciphertext), result.TargetHeight)
	require.NoError(t, err)

	return result
}

func TestCreateQuiz(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.CreateQuiz(context.Background(), CreateRequest{
		Questions: makeQuestions(20),
		Creator:   "0xabc",
		Title:     "go basics",
		StartAt:   f.now.Add(10 * time.Minute),
	})
	require.NoError(t, err)

	assert.Len(t, result.QuizID, 64)
	assert.Len(t, result.KeyMaterial, 64)
	// 10 minutes at 3 s/height from height 1000.
	assert.Equal(t, uint64(1200), result.TargetHeight)
	assert.NotEmpty(t, result.Sensitive.Ciphertext)

	stored, err := f.store.GetQuiz(context.Background(), result.QuizID)
	require.NoError(t, err)
	assert.False(t, stored.Bound())
	assert.Len(t, stored.SafeQuestions, 20)
	assert.Len(t, stored.SubsetMap, 7)
	for name, indices := range stored.SubsetMap {
		assert.Len(t, indices, 10, "subset %s", name)
		assert.True(t, sort.IntsAreSorted(indices), "subset %s", name)
	}
}

func TestCreateQuizRejectsShortLeadTime(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateQuiz(context.Background(), CreateRequest{
		Questions: makeQuestions(20),
		Creator:   "0xabc",
		Title:     "too soon",
		StartAt:   f.now.Add(time.Minute),
	})
	assert.ErrorIs(t, err, timelock.ErrInvalidSchedule)
	// Rejected schedules leave no quiz row behind.
	assert.Empty(t, f.store.quizzes)
}

func TestCreateQuizRejectsSmallPool(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateQuiz(context.Background(), CreateRequest{
		Questions: makeQuestions(5),
		Creator:   "0xabc",
		Title:     "tiny",
		StartAt:   f.now.Add(10 * time.Minute),
	})
	assert.ErrorIs(t, err, ErrInsufficientQuestions)
}

func TestCreateQuizRejectsBadQuestions(t *testing.T) {
	f := newFixture(t)
	questions := makeQuestions(20)
	questions[3].Answer = 9

	_, err := f.svc.CreateQuiz(context.Background(), CreateRequest{
		Questions: questions,
		Creator:   "0xabc",
		Title:     "broken answer index",
		StartAt:   f.now.Add(10 * time.Minute),
	})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestBindTimeLockExactlyOnce(t *testing.T) {
	f := newFixture(t)
	result := f.createAndBind(t, 20)

	bound, err := f.store.GetQuiz(context.Background(), result.QuizID)
	require.NoError(t, err)
	require.True(t, bound.Bound())
	firstRequestID := bound.TimelockRequestID

	err = f.svc.BindTimeLock(context.Background(), result.QuizID,
		"second-request", base64.StdEncoding.EncodeToString([]byte("other")), result.TargetHeight)
	assert.ErrorIs(t, err, ErrAlreadyBound)

	// The original binding survives untouched.
	after, err := f.store.GetQuiz(context.Background(), result.QuizID)
	require.NoError(t, err)
	assert.Equal(t, firstRequestID, after.TimelockRequestID)
}

func TestBindTimeLockValidation(t *testing.T) {
	f := newFixture(t)

	err := f.svc.BindTimeLock(context.Background(), "some-id", "req", "not base64!!!", 1200)
	assert.ErrorIs(t, err, ErrConfiguration)

	err = f.svc.BindTimeLock(context.Background(), "some-id", "", "", 1200)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestAttemptUnboundQuiz(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.CreateQuiz(context.Background(), CreateRequest{
		Questions: makeQuestions(20),
		Creator:   "0xabc",
		Title:     "go basics",
		StartAt:   f.now.Add(10 * time.Minute),
	})
	require.NoError(t, err)

	_, err = f.svc.AttemptQuiz(context.Background(), result.QuizID, "A")
	assert.ErrorIs(t, err, ErrNotYetEncrypted)
}

func TestAttemptBeforeRelease(t *testing.T) {
	f := newFixture(t)
	result := f.createAndBind(t, 20)

	_, err := f.svc.AttemptQuiz(context.Background(), result.QuizID, "A")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestAttemptRealPath(t *testing.T) {
	f := newFixture(t)
	result := f.createAndBind(t, 20)
	f.oracle.SetHeight(result.TargetHeight)

	set, err := f.svc.AttemptQuiz(context.Background(), result.QuizID, "C")
	require.NoError(t, err)

	assert.Equal(t, MethodReal, set.Method)
	assert.Equal(t, "C", set.SubsetName)
	assert.Empty(t, set.Reason)
	assert.Len(t, set.Questions, 10)
	assert.Len(t, set.AnswerKey, 10)
	for _, key := range set.AnswerKey {
		assert.GreaterOrEqual(t, key, 0)
		assert.Less(t, key, 4)
	}

	// A successful recovery lands in the cache for later attempts.
	cached, err := f.cache.Get(context.Background(), result.QuizID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Len(t, cached.Questions, 20)
}

func TestAttemptRealPathUnknownSubset(t *testing.T) {
	f := newFixture(t)
	result := f.createAndBind(t, 20)
	f.oracle.SetHeight(result.TargetHeight)

	_, err := f.svc.AttemptQuiz(context.Background(), result.QuizID, "Z")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestAttemptFallbackOnRecoveryFailure(t *testing.T) {
	f := newFixture(t)
	result := f.createAndBind(t, 20)
	f.oracle.SetHeight(result.TargetHeight)
	f.primitive.DecryptErr = errors.New("key delivery lost")

	set, err := f.svc.AttemptQuiz(context.Background(), result.QuizID, "B")
	require.NoError(t, err)

	assert.Equal(t, MethodFallback, set.Method)
	assert.Equal(t, "B", set.SubsetName)
	assert.NotEmpty(t, set.Reason)
	assert.Len(t, set.Questions, 10)
	assert.Nil(t, set.AnswerKey)
}

func TestAttemptFallbackUnknownSubsetDegradesToRandom(t *testing.T) {
	f := newFixture(t)
	result := f.createAndBind(t, 20)
	f.oracle.SetHeight(result.TargetHeight)
	f.primitive.DecryptErr = errors.New("key delivery lost")

	set, err := f.svc.AttemptQuiz(context.Background(), result.QuizID, "Z")
	require.NoError(t, err)

	assert.Equal(t, MethodFallback, set.Method)
	assert.Contains(t, []string{"A", "B", "C", "D", "E", "F", "G"}, set.SubsetName)
	assert.Len(t, set.Questions, 10)
}

func TestSubmitAttemptVerifiedScoring(t *testing.T) {
	f := newFixture(t)
	result := f.createAndBind(t, 20)
	f.oracle.SetHeight(result.TargetHeight)

	set, err := f.svc.AttemptQuiz(context.Background(), result.QuizID, "D")
	require.NoError(t, err)

	record, err := f.svc.SubmitAttempt(context.Background(), SubmitRequest{
		QuizID:      result.QuizID,
		SubsetName:  "D",
		Participant: "0xplayer",
		Answers:     set.AnswerKey,
	})
	require.NoError(t, err)

	assert.Equal(t, 100, record.Score)
	assert.True(t, record.Verified)
	assert.Equal(t, MethodReal, record.Method)
	assert.NotEmpty(t, record.ArchiveHash)

	payload, ok := f.archive.Get(record.ArchiveHash)
	assert.True(t, ok)
	assert.NotEmpty(t, payload)

	stored, err := f.svc.ListAttempts(context.Background(), result.QuizID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, record.ID, stored[0].ID)
}

func TestSubmitAttemptPartialScore(t *testing.T) {
	f := newFixture(t)
	result := f.createAndBind(t, 20)
	f.oracle.SetHeight(result.TargetHeight)

	set, err := f.svc.AttemptQuiz(context.Background(), result.QuizID, "D")
	require.NoError(t, err)

	// Miss every answer by shifting each index by one option.
	wrong := make([]int, len(set.AnswerKey))
	for i, key := range set.AnswerKey {
		wrong[i] = (key + 1) % 4
	}

	record, err := f.svc.SubmitAttempt(context.Background(), SubmitRequest{
		QuizID:      result.QuizID,
		SubsetName:  "D",
		Participant: "0xplayer",
		Answers:     wrong,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, record.Score)
	assert.True(t, record.Verified)
}

func TestSubmitAttemptFallbackUnverified(t *testing.T) {
	f := newFixture(t)
	result := f.createAndBind(t, 20)
	f.oracle.SetHeight(result.TargetHeight)
	f.primitive.DecryptErr = errors.New("key delivery lost")

	record, err := f.svc.SubmitAttempt(context.Background(), SubmitRequest{
		QuizID:      result.QuizID,
		SubsetName:  "A",
		Participant: "0xplayer",
		Answers:     []int{0, 1, 2, 3, 0, 1, 2, 3, 0, 1},
	})
	require.NoError(t, err)

	assert.False(t, record.Verified)
	assert.Equal(t, 0, record.Score)
	assert.Equal(t, MethodFallback, record.Method)
}

func TestAttemptOracleDownSurfacesError(t *testing.T) {
	f := newFixture(t)
	result := f.createAndBind(t, 20)
	f.oracle.Err = errors.New("connection refused")

	_, err := f.svc.AttemptQuiz(context.Background(), result.QuizID, "A")
	assert.ErrorIs(t, err, timelock.ErrOracleUnavailable)
}

func TestMetadataNeverLeaksAnswers(t *testing.T) {
	f := newFixture(t)
	result := f.createAndBind(t, 20)

	meta, err := f.svc.Metadata(context.Background(), result.QuizID)
	require.NoError(t, err)
	assert.Equal(t, result.QuizID, meta.ID)
	assert.Equal(t, 20, meta.QuestionCount)
	assert.True(t, meta.Bound)
	assert.Equal(t, result.TargetHeight, meta.TargetHeight)
}

func TestListAttemptsUnknownQuiz(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListAttempts(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
