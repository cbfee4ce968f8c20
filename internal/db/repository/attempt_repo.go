package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainquiz/chainquiz/internal/quiz"
)

// AttemptRepository persists append-only attempt records.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository wraps a pgx pool.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// InsertAttempt appends one attempt record. Records are never updated.
func (r *AttemptRepository) InsertAttempt(ctx context.Context, rec quiz.AttemptRecord) error {
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO attempts (
			attempt_id, quiz_id, subset_name, participant, answers,
			score, verified, method, archive_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.QuizID, rec.SubsetName, rec.Participant, answers,
		rec.Score, rec.Verified, string(rec.Method), rec.ArchiveHash, rec.CreatedAt,
	)
	return err
}

// ListAttempts returns every attempt for one quiz, oldest first.
func (r *AttemptRepository) ListAttempts(ctx context.Context, quizID string) ([]quiz.AttemptRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT attempt_id, quiz_id, subset_name, participant, answers,
		       score, verified, method, archive_hash, created_at
		FROM attempts WHERE quiz_id = $1 ORDER BY created_at`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []quiz.AttemptRecord
	for rows.Next() {
		var (
			rec     quiz.AttemptRecord
			answers []byte
			method  string
		)
		if err := rows.Scan(&rec.ID, &rec.QuizID, &rec.SubsetName, &rec.Participant, &answers,
			&rec.Score, &rec.Verified, &method, &rec.ArchiveHash, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answers, &rec.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
		rec.Method = quiz.RecoveryMethod(method)
		out = append(out, rec)
	}
	return out, rows.Err()
}
