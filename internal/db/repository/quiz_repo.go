package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainquiz/chainquiz/internal/quiz"
)

// QuizRepository persists quiz rows in Postgres. All mutation is single-row,
// keyed by quiz id.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository wraps a pgx pool.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// CreateQuiz inserts a new quiz row with empty time-lock fields.
func (r *QuizRepository) CreateQuiz(ctx context.Context, q quiz.Quiz) error {
	sensitive, err := json.Marshal(q.Sensitive)
	if err != nil {
		return fmt.Errorf("encode sensitive envelope: %w", err)
	}
	safeQuestions, err := json.Marshal(q.SafeQuestions)
	if err != nil {
		return fmt.Errorf("encode safe questions: %w", err)
	}
	subsetMap, err := json.Marshal(q.SubsetMap)
	if err != nil {
		return fmt.Errorf("encode subset map: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO quizzes (
			quiz_id, creator, title, start_at, duration_seconds, target_height,
			sensitive, safe_questions, subset_map,
			timelock_ciphertext, timelock_request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', '', $10)`,
		q.ID, q.Creator, q.Title, q.StartAt, int64(q.Duration.Seconds()), int64(q.TargetHeight),
		sensitive, safeQuestions, subsetMap, q.CreatedAt,
	)
	return err
}

// GetQuiz loads one quiz row.
func (r *QuizRepository) GetQuiz(ctx context.Context, id string) (quiz.Quiz, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT quiz_id, creator, title, start_at, duration_seconds, target_height,
		       sensitive, safe_questions, subset_map,
		       timelock_ciphertext, timelock_request_id, created_at
		FROM quizzes WHERE quiz_id = $1`, id)

	var (
		q               quiz.Quiz
		durationSeconds int64
		targetHeight    int64
		sensitive       []byte
		safeQuestions   []byte
		subsetMap       []byte
	)
	err := row.Scan(
		&q.ID, &q.Creator, &q.Title, &q.StartAt, &durationSeconds, &targetHeight,
		&sensitive, &safeQuestions, &subsetMap,
		&q.TimelockCiphertext, &q.TimelockRequestID, &q.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return quiz.Quiz{}, fmt.Errorf("%w: %s", quiz.ErrNotFound, id)
		}
		return quiz.Quiz{}, err
	}

	q.Duration = time.Duration(durationSeconds) * time.Second
	q.TargetHeight = uint64(targetHeight)
	if err := json.Unmarshal(sensitive, &q.Sensitive); err != nil {
		return quiz.Quiz{}, fmt.Errorf("decode sensitive envelope: %w", err)
	}
	if err := json.Unmarshal(safeQuestions, &q.SafeQuestions); err != nil {
		return quiz.Quiz{}, fmt.Errorf("decode safe questions: %w", err)
	}
	if err := json.Unmarshal(subsetMap, &q.SubsetMap); err != nil {
		return quiz.Quiz{}, fmt.Errorf("decode subset map: %w", err)
	}
	return q, nil
}

// BindTimelock sets the time-lock fields exactly once. The WHERE clause is
// the compare-and-set: a row that is already bound matches zero rows, so two
// concurrent bindings cannot both succeed.
func (r *QuizRepository) BindTimelock(ctx context.Context, id, requestID, ciphertext string, targetHeight uint64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE quizzes
		SET timelock_request_id = $2, timelock_ciphertext = $3, target_height = $4
		WHERE quiz_id = $1 AND timelock_request_id = ''`,
		id, requestID, ciphertext, int64(targetHeight),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Zero rows: either the quiz does not exist or it is already bound.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM quizzes WHERE quiz_id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", quiz.ErrNotFound, id)
	}
	return fmt.Errorf("%w: %s", quiz.ErrAlreadyBound, id)
}

// ListAll returns metadata for every quiz, newest start first.
func (r *QuizRepository) ListAll(ctx context.Context) ([]quiz.Metadata, error) {
	rows, err := r.pool.Query(ctx, metadataSelect+` ORDER BY start_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMetadata(rows)
}

// ListByCreator returns metadata for one creator's quizzes.
func (r *QuizRepository) ListByCreator(ctx context.Context, creator string) ([]quiz.Metadata, error) {
	rows, err := r.pool.Query(ctx, metadataSelect+` WHERE creator = $1 ORDER BY start_at DESC`, creator)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMetadata(rows)
}

const metadataSelect = `
	SELECT quiz_id, creator, title, start_at, target_height,
	       jsonb_array_length(safe_questions), timelock_request_id <> '', created_at
	FROM quizzes`

func scanMetadata(rows pgx.Rows) ([]quiz.Metadata, error) {
	var out []quiz.Metadata
	for rows.Next() {
		var (
			m            quiz.Metadata
			targetHeight int64
		)
		if err := rows.Scan(&m.ID, &m.Creator, &m.Title, &m.StartAt, &targetHeight, &m.QuestionCount, &m.Bound, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.TargetHeight = uint64(targetHeight)
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ quiz.Store = (*Store)(nil)

// Store combines the quiz and attempt repositories into the lifecycle
// service's persistence contract.
type Store struct {
	*QuizRepository
	*AttemptRepository
}

// NewStore builds the combined store over one pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		QuizRepository:    NewQuizRepository(pool),
		AttemptRepository: NewAttemptRepository(pool),
	}
}
