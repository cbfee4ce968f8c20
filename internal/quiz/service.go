package quiz

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chainquiz/chainquiz/internal/archive"
	"github.com/chainquiz/chainquiz/internal/crypto"
	"github.com/chainquiz/chainquiz/internal/timelock"
)

// Store is the persistence contract for quizzes and attempt records.
// BindTimelock must be an atomic compare-and-set on the quiz row: two
// concurrent binding attempts for the same quiz must not both succeed.
type Store interface {
	CreateQuiz(ctx context.Context, q Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	BindTimelock(ctx context.Context, id, requestID, ciphertext string, targetHeight uint64) error
	InsertAttempt(ctx context.Context, rec AttemptRecord) error
	ListAttempts(ctx context.Context, quizID string) ([]AttemptRecord, error)
	ListByCreator(ctx context.Context, creator string) ([]Metadata, error)
	ListAll(ctx context.Context) ([]Metadata, error)
}

// Gateway is the slice of the time-lock gateway the lifecycle needs.
type Gateway interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	ComputeTargetHeight(ctx context.Context, releaseAt time.Time) (uint64, error)
	IsReleased(ctx context.Context, targetHeight uint64) (bool, error)
	Decrypt(ctx context.Context, requestID string, ciphertext []byte) ([]byte, error)
}

// SensitiveCache holds recovered sensitive sets. Only ever written after a
// successful post-release recovery, at which point the content is public by
// definition. Release status itself is never cached.
type SensitiveCache interface {
	Get(ctx context.Context, quizID string) (*SensitiveSet, error)
	Set(ctx context.Context, quizID string, set SensitiveSet) error
}

// ServiceOptions configures the lifecycle service.
type ServiceOptions struct {
	// KeySalt is the server-side HKDF salt for per-quiz cipher keys.
	KeySalt []byte
	// SubsetNames is the fixed alphabet of subset names.
	SubsetNames []string
	// SubsetSize is the question count every subset carries.
	SubsetSize int
	// MinLeadTime is the minimum gap between creation and release; the
	// time-lock transaction itself needs time to confirm.
	MinLeadTime time.Duration
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Service orchestrates quiz creation, time-lock binding and
// decryption-with-fallback.
type Service struct {
	store   Store
	gateway Gateway
	cache   SensitiveCache
	archive archive.Archive
	opts    ServiceOptions
	now     func() time.Time
	logger  zerolog.Logger
}

// NewService wires the lifecycle service. cache and archive may be nil.
func NewService(store Store, gateway Gateway, cache SensitiveCache, arch archive.Archive, opts ServiceOptions, logger zerolog.Logger) *Service {
	if len(opts.SubsetNames) == 0 {
		opts.SubsetNames = []string{"A", "B", "C", "D", "E", "F", "G"}
	}
	if opts.SubsetSize <= 0 {
		opts.SubsetSize = 10
	}
	if opts.MinLeadTime <= 0 {
		opts.MinLeadTime = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:   store,
		gateway: gateway,
		cache:   cache,
		archive: arch,
		opts:    opts,
		now:     opts.Now,
		logger:  logger.With().Str("component", "quiz_service").Logger(),
	}
}

// CreateRequest carries creator-supplied quiz content.
type CreateRequest struct {
	Questions []Question
	Creator   string
	Title     string
	StartAt   time.Time
	Duration  time.Duration
}

// CreateResult is returned to the creator, who drives the second step:
// KeyMaterial must be time-lock encrypted with the creator's own credentials
// and then discarded. The service never holds funds or signing keys.
type CreateResult struct {
	QuizID       string          `json:"quizId"`
	Sensitive    crypto.Envelope `json:"sensitiveCiphertext"`
	KeyMaterial  string          `json:"keyMaterial"`
	TargetHeight uint64          `json:"targetHeight"`
}

// CreateQuiz validates and persists a new quiz in the TimeLockPending state.
func (s *Service) CreateQuiz(ctx context.Context, req CreateRequest) (CreateResult, error) {
	questions, err := normalizeQuestions(req.Questions)
	if err != nil {
		return CreateResult{}, err
	}
	if len(questions) < s.opts.SubsetSize {
		return CreateResult{}, fmt.Errorf("%w: have %d questions, subsets need %d", ErrInsufficientQuestions, len(questions), s.opts.SubsetSize)
	}

	// Lead-time check happens before any persistence so a rejected schedule
	// leaves no quiz row behind.
	now := s.now()
	if req.StartAt.Before(now.Add(s.opts.MinLeadTime)) {
		return CreateResult{}, fmt.Errorf("%w: start must be at least %s from now", timelock.ErrInvalidSchedule, s.opts.MinLeadTime)
	}

	quizID, err := crypto.NewQuizID()
	if err != nil {
		return CreateResult{}, err
	}
	key, err := crypto.DeriveQuizKey(quizID, s.opts.KeySalt)
	if err != nil {
		return CreateResult{}, err
	}

	subsetMap, err := Partition(len(questions), s.opts.SubsetNames, s.opts.SubsetSize)
	if err != nil {
		return CreateResult{}, err
	}

	sensitive := SensitiveSet{Questions: questions, SubsetMap: subsetMap}
	plaintext, err := json.Marshal(sensitive)
	if err != nil {
		return CreateResult{}, fmt.Errorf("encode sensitive set: %w", err)
	}
	envelope, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return CreateResult{}, err
	}

	targetHeight, err := s.gateway.ComputeTargetHeight(ctx, req.StartAt)
	if err != nil {
		s.countOracleError(err)
		return CreateResult{}, err
	}

	q := Quiz{
		ID:            quizID,
		Creator:       req.Creator,
		Title:         req.Title,
		StartAt:       req.StartAt,
		Duration:      req.Duration,
		TargetHeight:  targetHeight,
		Sensitive:     envelope,
		SafeQuestions: Strip(questions),
		SubsetMap:     subsetMap,
		CreatedAt:     now,
	}
	if err := s.store.CreateQuiz(ctx, q); err != nil {
		return CreateResult{}, fmt.Errorf("persist quiz: %w", err)
	}

	s.logger.Info().
		Str("quiz_id", quizID).
		Uint64("target_height", targetHeight).
		Int("questions", len(questions)).
		Msg("quiz created, awaiting time-lock binding")

	return CreateResult{
		QuizID:       quizID,
		Sensitive:    envelope,
		KeyMaterial:  hex.EncodeToString(key),
		TargetHeight: targetHeight,
	}, nil
}

// BindTimeLock persists the creator's time-lock encryption result onto the
// quiz row. Exactly-once: a second call fails with ErrAlreadyBound and never
// overwrites the first binding.
func (s *Service) BindTimeLock(ctx context.Context, quizID, requestID, ciphertext string, targetHeight uint64) error {
	if quizID == "" || requestID == "" || ciphertext == "" {
		return fmt.Errorf("%w: quiz id, request id and ciphertext are required", ErrConfiguration)
	}
	if _, err := base64.StdEncoding.DecodeString(ciphertext); err != nil {
		return fmt.Errorf("%w: ciphertext must be base64", ErrConfiguration)
	}

	if err := s.store.BindTimelock(ctx, quizID, requestID, ciphertext, targetHeight); err != nil {
		return err
	}
	s.logger.Info().
		Str("quiz_id", quizID).
		Str("request_id", requestID).
		Uint64("target_height", targetHeight).
		Msg("time-lock bound")
	return nil
}

// AttemptQuiz serves the questions for one subset of a released quiz. The
// result is an explicit recovery outcome: method "real" when the time-lock
// unwound, "fallback" (with the triggering error) when it did not.
func (s *Service) AttemptQuiz(ctx context.Context, quizID, subsetName string) (AttemptSet, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return AttemptSet{}, err
	}
	if !q.Bound() {
		return AttemptSet{}, fmt.Errorf("%w: quiz %s", ErrNotYetEncrypted, quizID)
	}

	// Live release check on every call. Height only grows, so a stale
	// "not ready" is safe; a cached "ready" would not be.
	released, err := s.gateway.IsReleased(ctx, q.TargetHeight)
	if err != nil {
		s.countOracleError(err)
		return AttemptSet{}, err
	}
	if !released {
		return AttemptSet{}, fmt.Errorf("%w: target height %d", ErrNotReady, q.TargetHeight)
	}

	sensitive, recoverErr := s.recoverSensitive(ctx, q)
	if recoverErr == nil {
		set, err := s.realSet(q, sensitive, subsetName)
		if err != nil {
			return AttemptSet{}, err
		}
		attemptsTotal.WithLabelValues(string(MethodReal)).Inc()
		return set, nil
	}

	recoveryFailures.Inc()
	s.logger.Warn().
		Err(recoverErr).
		Str("quiz_id", quizID).
		Str("subset", subsetName).
		Msg("time-lock recovery failed, serving fallback questions")

	set, err := s.fallbackSet(q, subsetName, recoverErr)
	if err != nil {
		return AttemptSet{}, err
	}
	attemptsTotal.WithLabelValues(string(MethodFallback)).Inc()
	return set, nil
}

func (s *Service) recoverSensitive(ctx context.Context, q Quiz) (*SensitiveSet, error) {
	if s.cache != nil {
		if set, err := s.cache.Get(ctx, q.ID); err == nil && set != nil {
			return set, nil
		}
	}

	ciphertext, err := base64.StdEncoding.DecodeString(q.TimelockCiphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: stored ciphertext corrupt: %v", timelock.ErrDecryptionFailed, err)
	}

	key, err := s.gateway.Decrypt(ctx, q.TimelockRequestID, ciphertext)
	if err != nil {
		return nil, err
	}

	plaintext, err := crypto.Decrypt(q.Sensitive, key)
	if err != nil {
		return nil, err
	}

	var set SensitiveSet
	if err := json.Unmarshal(plaintext, &set); err != nil {
		return nil, fmt.Errorf("decode sensitive set: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, q.ID, set); err != nil {
			s.logger.Warn().Err(err).Str("quiz_id", q.ID).Msg("sensitive set cache write failed")
		}
	}
	return &set, nil
}

func (s *Service) realSet(q Quiz, sensitive *SensitiveSet, subsetName string) (AttemptSet, error) {
	indices, ok := sensitive.SubsetMap[subsetName]
	if !ok {
		return AttemptSet{}, fmt.Errorf("%w: unknown subset %q, available: %s", ErrConfiguration, subsetName, strings.Join(s.opts.SubsetNames, ","))
	}
	if len(indices) != s.opts.SubsetSize {
		return AttemptSet{}, fmt.Errorf("%w: subset %q has %d indices, want %d", ErrInsufficientQuestions, subsetName, len(indices), s.opts.SubsetSize)
	}

	questions := make([]SafeQuestion, 0, len(indices))
	answerKey := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(sensitive.Questions) {
			return AttemptSet{}, fmt.Errorf("%w: subset index %d out of range", ErrInsufficientQuestions, idx)
		}
		full := sensitive.Questions[idx]
		questions = append(questions, SafeQuestion{Text: full.Text, Code: full.Code, Options: full.Options})
		answerKey = append(answerKey, full.Answer)
	}

	return AttemptSet{
		QuizID:     q.ID,
		SubsetName: subsetName,
		Method:     MethodReal,
		Questions:  questions,
		AnswerKey:  answerKey,
	}, nil
}

// fallbackSet serves answer-free questions from the cleartext safe set. The
// stored subset map is preferred; an unknown subset name degrades to a
// uniformly random name and sample, mirroring the availability-over-
// consistency choice of the recovery design.
func (s *Service) fallbackSet(q Quiz, subsetName string, cause error) (AttemptSet, error) {
	if len(q.SafeQuestions) < s.opts.SubsetSize {
		return AttemptSet{}, fmt.Errorf("%w: safe set has %d questions, subsets need %d", ErrInsufficientQuestions, len(q.SafeQuestions), s.opts.SubsetSize)
	}

	served := subsetName
	indices, ok := q.SubsetMap[subsetName]
	if !ok || len(indices) != s.opts.SubsetSize {
		served = RandomSubsetName(s.opts.SubsetNames)
		sample, err := RandomSample(len(q.SafeQuestions), s.opts.SubsetSize)
		if err != nil {
			return AttemptSet{}, err
		}
		indices = sample
	}

	questions := make([]SafeQuestion, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(q.SafeQuestions) {
			return AttemptSet{}, fmt.Errorf("%w: fallback index %d out of range", ErrInsufficientQuestions, idx)
		}
		questions = append(questions, q.SafeQuestions[idx])
	}

	return AttemptSet{
		QuizID:     q.ID,
		SubsetName: served,
		Method:     MethodFallback,
		Reason:     cause.Error(),
		Questions:  questions,
	}, nil
}

// SubmitRequest carries a completed participant attempt.
type SubmitRequest struct {
	QuizID      string
	SubsetName  string
	Participant string
	Answers     []int
}

// SubmitAttempt scores and records a completed attempt. Scoring runs against
// the recovered answer key; attempts served through the fallback path carry
// no key and are stored unverified. The full payload is anchored in the
// content-addressed archive and its hash persisted with the record.
func (s *Service) SubmitAttempt(ctx context.Context, req SubmitRequest) (AttemptRecord, error) {
	set, err := s.AttemptQuiz(ctx, req.QuizID, req.SubsetName)
	if err != nil {
		return AttemptRecord{}, err
	}

	score, verified := 0, false
	if set.Method == MethodReal {
		verified = true
		correct := 0
		for i, key := range set.AnswerKey {
			if i < len(req.Answers) && req.Answers[i] == key {
				correct++
			}
		}
		score = correct * 100 / len(set.AnswerKey)
	}

	record := AttemptRecord{
		ID:          uuid.New(),
		QuizID:      req.QuizID,
		SubsetName:  set.SubsetName,
		Participant: req.Participant,
		Answers:     req.Answers,
		Score:       score,
		Verified:    verified,
		Method:      set.Method,
		CreatedAt:   s.now(),
	}

	if s.archive != nil {
		record.ArchiveHash = s.archiveAttempt(ctx, record, set)
	}

	if err := s.store.InsertAttempt(ctx, record); err != nil {
		return AttemptRecord{}, fmt.Errorf("persist attempt: %w", err)
	}
	return record, nil
}

func (s *Service) archiveAttempt(ctx context.Context, record AttemptRecord, set AttemptSet) string {
	payload, err := json.Marshal(struct {
		AttemptRecord
		Questions []SafeQuestion `json:"questions"`
	}{record, set.Questions})
	if err != nil {
		s.logger.Warn().Err(err).Str("quiz_id", record.QuizID).Msg("attempt payload encode failed")
		return ""
	}

	name := fmt.Sprintf("quiz-attempt-%s-%d.json", record.QuizID, record.CreatedAt.Unix())
	hash, err := s.archive.Put(ctx, name, payload)
	if err != nil {
		// Archival is best-effort; the attempt record still lands in the
		// store without an anchor.
		s.logger.Warn().Err(err).Str("quiz_id", record.QuizID).Msg("attempt archive failed")
		return ""
	}
	return hash
}

// Metadata returns the answer-free projection of one quiz.
func (s *Service) Metadata(ctx context.Context, quizID string) (Metadata, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Metadata{}, err
	}
	return toMetadata(q), nil
}

// GetQuiz exposes the stored row to trusted callers (the status stream needs
// the target height).
func (s *Service) GetQuiz(ctx context.Context, quizID string) (Quiz, error) {
	return s.store.GetQuiz(ctx, quizID)
}

// ReleaseHeight reports the live chain height, for countdown displays.
func (s *Service) ReleaseHeight(ctx context.Context) (uint64, error) {
	height, err := s.gateway.CurrentHeight(ctx)
	if err != nil {
		s.countOracleError(err)
	}
	return height, err
}

// ListAll returns metadata for every quiz, newest start first.
func (s *Service) ListAll(ctx context.Context) ([]Metadata, error) {
	return s.store.ListAll(ctx)
}

// ListByCreator returns metadata for one creator's quizzes.
func (s *Service) ListByCreator(ctx context.Context, creator string) ([]Metadata, error) {
	return s.store.ListByCreator(ctx, creator)
}

// ListAttempts returns the attempt history of one quiz for audit views.
func (s *Service) ListAttempts(ctx context.Context, quizID string) ([]AttemptRecord, error) {
	if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, quizID)
}

func (s *Service) countOracleError(err error) {
	if err != nil {
		oracleErrors.Inc()
	}
}

func toMetadata(q Quiz) Metadata {
	return Metadata{
		ID:            q.ID,
		Creator:       q.Creator,
		Title:         q.Title,
		StartAt:       q.StartAt,
		TargetHeight:  q.TargetHeight,
		QuestionCount: len(q.SafeQuestions),
		Bound:         q.Bound(),
		CreatedAt:     q.CreatedAt,
	}
}

func normalizeQuestions(questions []Question) ([]Question, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrConfiguration)
	}
	normalized := make([]Question, len(questions))
	for i, q := range questions {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" {
			return nil, fmt.Errorf("%w: question %d has no text", ErrConfiguration, i)
		}
		if len(q.Options) < 2 {
			return nil, fmt.Errorf("%w: question %d needs at least 2 options", ErrConfiguration, i)
		}
		if q.Answer < 0 || q.Answer >= len(q.Options) {
			return nil, fmt.Errorf("%w: question %d answer index %d out of range", ErrConfiguration, i, q.Answer)
		}
		normalized[i] = q
	}
	return normalized, nil
}
