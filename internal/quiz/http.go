package quiz

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainquiz/chainquiz/internal/auth"
	"github.com/chainquiz/chainquiz/internal/timelock"
	httperrors "github.com/chainquiz/chainquiz/pkg/http/errors"
)

// HTTPHandler exposes the quiz lifecycle over REST.
type HTTPHandler struct {
	svc    *Service
	logger zerolog.Logger
}

// NewHTTPHandler constructs the quiz HTTP handler.
func NewHTTPHandler(svc *Service, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:    svc,
		logger: logger.With().Str("component", "quiz_http").Logger(),
	}
}

// createQuestionDTO tolerates the two prompt shapes seen in the wild: a bare
// "question" string or a {text, code} pair.
type createQuestionDTO struct {
	Text     string   `json:"text"`
	Question string   `json:"question"`
	Code     string   `json:"code"`
	Options  []string `json:"options"`
	Answer   int      `json:"answer"`
}

func (d createQuestionDTO) normalize() Question {
	text := d.Text
	if text == "" {
		text = d.Question
	}
	return Question{Text: text, Code: d.Code, Options: d.Options, Answer: d.Answer}
}

type createRequestDTO struct {
	Title           string              `json:"title"`
	StartAt         time.Time           `json:"startAt"`
	DurationMinutes int                 `json:"duration"`
	Questions       []createQuestionDTO `json:"questions"`
}

// HandleCreate serves POST /v1/quizzes.
func (h *HTTPHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var dto createRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Malformed JSON body")
		return
	}
	if dto.Title == "" || dto.StartAt.IsZero() || len(dto.Questions) == 0 {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeMissingField, "title, startAt and questions are required")
		return
	}

	questions := make([]Question, len(dto.Questions))
	for i, q := range dto.Questions {
		questions[i] = q.normalize()
	}

	result, err := h.svc.CreateQuiz(r.Context(), CreateRequest{
		Questions: questions,
		Creator:   claims.WalletAddress,
		Title:     dto.Title,
		StartAt:   dto.StartAt,
		Duration:  time.Duration(dto.DurationMinutes) * time.Minute,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type bindRequestDTO struct {
	RequestID    string `json:"requestId"`
	Ciphertext   string `json:"ciphertext"`
	TargetHeight uint64 `json:"targetHeight"`
}

// HandleBind serves POST /v1/quizzes/{id}/timelock.
func (h *HTTPHandler) HandleBind(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")

	var dto bindRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Malformed JSON body")
		return
	}

	if err := h.svc.BindTimeLock(r.Context(), quizID, dto.RequestID, dto.Ciphertext, dto.TargetHeight); err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quizId":       quizID,
		"requestId":    dto.RequestID,
		"targetHeight": dto.TargetHeight,
	})
}

type attemptRequestDTO struct {
	SubsetName string `json:"subsetName"`
}

// HandleAttempt serves POST /v1/quizzes/{id}/attempt. The response carries
// answer-free questions; the answer key never leaves the service boundary.
func (h *HTTPHandler) HandleAttempt(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")

	var dto attemptRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Malformed JSON body")
		return
	}
	if dto.SubsetName == "" {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeMissingField, "subsetName is required")
		return
	}

	set, err := h.svc.AttemptQuiz(r.Context(), quizID, dto.SubsetName)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

type submitRequestDTO struct {
	SubsetName string `json:"subsetName"`
	Answers    []int  `json:"answers"`
}

// HandleSubmit serves POST /v1/quizzes/{id}/attempts.
func (h *HTTPHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}
	quizID := r.PathValue("id")

	var dto submitRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Malformed JSON body")
		return
	}
	if dto.SubsetName == "" {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeMissingField, "subsetName is required")
		return
	}

	record, err := h.svc.SubmitAttempt(r.Context(), SubmitRequest{
		QuizID:      quizID,
		SubsetName:  dto.SubsetName,
		Participant: claims.WalletAddress,
		Answers:     dto.Answers,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// HandleGet serves GET /v1/quizzes/{id}.
func (h *HTTPHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	meta, err := h.svc.Metadata(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// HandleList serves GET /v1/quizzes, optionally filtered by ?creator=.
func (h *HTTPHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var (
		quizzes []Metadata
		err     error
	)
	if creator := r.URL.Query().Get("creator"); creator != "" {
		quizzes, err = h.svc.ListByCreator(r.Context(), creator)
	} else {
		quizzes, err = h.svc.ListAll(r.Context())
	}
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quizzes": quizzes})
}

// HandleMyQuizzes serves GET /v1/users/me/quizzes.
func (h *HTTPHandler) HandleMyQuizzes(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}
	quizzes, err := h.svc.ListByCreator(r.Context(), claims.WalletAddress)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quizzes": quizzes})
}

// HandleAttemptList serves GET /v1/quizzes/{id}/attempts.
func (h *HTTPHandler) HandleAttemptList(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.ListAttempts(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": records})
}

func (h *HTTPHandler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeQuizNotFound, err.Error())
	case errors.Is(err, ErrAlreadyBound):
		httperrors.RespondConflict(w, httperrors.ErrCodeAlreadyBound, err.Error())
	case errors.Is(err, ErrNotYetEncrypted):
		httperrors.RespondConflict(w, httperrors.ErrCodeNotYetEncrypted, err.Error())
	case errors.Is(err, ErrNotReady):
		httperrors.RespondConflict(w, httperrors.ErrCodeReleaseNotReady, err.Error())
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrInsufficientQuestions):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeValidationFailed, err.Error())
	case errors.Is(err, timelock.ErrInvalidSchedule):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidSchedule, err.Error())
	case errors.Is(err, timelock.ErrPayloadTooLarge):
		httperrors.RespondBadRequest(w, httperrors.ErrCodePayloadTooLarge, err.Error())
	case errors.Is(err, timelock.ErrOracleUnavailable):
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeOracleUnavailable, err.Error())
	default:
		h.logger.Error().Err(err).Msg("unhandled service error")
		httperrors.RespondInternalError(w, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
