package quiz

import (
	"time"

	"github.com/google/uuid"

	"github.com/chainquiz/chainquiz/internal/crypto"
)

// Question is the normalized ingestion form. Source payloads sometimes carry
// a bare prompt string and sometimes a {text, code} object; both collapse
// into this shape at the API boundary so internal logic never branches on
// runtime shape.
type Question struct {
	Text    string   `json:"text"`
	Code    string   `json:"code,omitempty"`
	Options []string `json:"options"`
	// Answer is the index of the correct option. Present only inside the
	// sensitive set; stripped everywhere else.
	Answer int `json:"answer"`
}

// SafeQuestion is a question with the correct-answer index stripped. Safe to
// persist and serve in the clear.
type SafeQuestion struct {
	Text    string   `json:"text"`
	Code    string   `json:"code,omitempty"`
	Options []string `json:"options"`
}

// Strip removes answer indices from a question list.
func Strip(questions []Question) []SafeQuestion {
	safe := make([]SafeQuestion, len(questions))
	for i, q := range questions {
		safe[i] = SafeQuestion{Text: q.Text, Code: q.Code, Options: q.Options}
	}
	return safe
}

// SensitiveSet is the payload that must remain secret until release:
// full questions with answers plus the subset map.
type SensitiveSet struct {
	Questions []Question       `json:"questions"`
	SubsetMap map[string][]int `json:"questionSets"`
}

// Quiz mirrors one persisted quiz row.
type Quiz struct {
	ID           string
	Creator      string
	Title        string
	StartAt      time.Time
	Duration     time.Duration
	TargetHeight uint64

	Sensitive     crypto.Envelope
	SafeQuestions []SafeQuestion
	SubsetMap     map[string][]int

	// TimelockCiphertext and TimelockRequestID stay empty between creation
	// and the creator-driven binding step.
	TimelockCiphertext string
	TimelockRequestID  string

	CreatedAt time.Time
}

// Bound reports whether the time-lock binding step has completed.
func (q Quiz) Bound() bool {
	return q.TimelockRequestID != "" && q.TimelockCiphertext != ""
}

// Metadata is the answer-free projection served on dashboards and listings.
type Metadata struct {
	ID            string    `json:"id"`
	Creator       string    `json:"creator"`
	Title         string    `json:"title"`
	StartAt       time.Time `json:"startAt"`
	TargetHeight  uint64    `json:"targetHeight"`
	QuestionCount int       `json:"questionCount"`
	Bound         bool      `json:"bound"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RecoveryMethod tags how an attempt set was produced.
type RecoveryMethod string

const (
	// MethodReal means the time-lock unwound and the sensitive set was
	// decrypted.
	MethodReal RecoveryMethod = "real"
	// MethodFallback means recovery failed after release and the answer-free
	// safe set was served instead.
	MethodFallback RecoveryMethod = "fallback"
)

// AttemptSet is the outcome of AttemptQuiz. Both branches carry exactly the
// configured subset size of questions; AnswerKey is nil on the fallback path
// because safe questions are inherently answer-free.
type AttemptSet struct {
	QuizID     string         `json:"quizId"`
	SubsetName string         `json:"subsetName"`
	Method     RecoveryMethod `json:"method"`
	// Reason carries the triggering error when Method is fallback.
	Reason    string         `json:"reason,omitempty"`
	Questions []SafeQuestion `json:"questions"`
	AnswerKey []int          `json:"-"`
}

// AttemptRecord is one immutable participant attempt.
type AttemptRecord struct {
	ID          uuid.UUID      `json:"id"`
	QuizID      string         `json:"quizId"`
	SubsetName  string         `json:"subsetName"`
	Participant string         `json:"participant"`
	Answers     []int          `json:"answers"`
	Score       int            `json:"score"`
	Verified    bool           `json:"verified"`
	Method      RecoveryMethod `json:"method"`
	ArchiveHash string         `json:"archiveHash,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}
