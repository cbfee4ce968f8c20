package timelock

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	httperrors "github.com/chainquiz/chainquiz/pkg/http/errors"
)

// HTTPHandler exposes the time-lock gateway for callers who cannot run the
// encryption client-side. The server pays for the beacon round, so this is a
// convenience path; self-funded creators bind their own ciphertext instead.
type HTTPHandler struct {
	gateway *Gateway
	logger  zerolog.Logger
}

// NewHTTPHandler constructs the time-lock HTTP handler.
func NewHTTPHandler(gateway *Gateway, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		gateway: gateway,
		logger:  logger.With().Str("component", "timelock_http").Logger(),
	}
}

type encryptRequestDTO struct {
	Payload      string    `json:"payload"`
	TargetHeight uint64    `json:"targetHeight"`
	ReleaseAt    time.Time `json:"releaseAt"`
}

type encryptResponseDTO struct {
	Ciphertext   string `json:"ciphertext"`
	RequestID    string `json:"requestId"`
	TargetHeight uint64 `json:"targetHeight"`
}

// HandleEncrypt serves POST /v1/timelock/encrypt. The payload is base64; the
// caller supplies either a target height or a wall-clock release instant.
func (h *HTTPHandler) HandleEncrypt(w http.ResponseWriter, r *http.Request) {
	var dto encryptRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Malformed JSON body")
		return
	}
	if dto.Payload == "" {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeMissingField, "payload is required")
		return
	}

	payload, err := base64.StdEncoding.DecodeString(dto.Payload)
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "payload must be base64")
		return
	}

	targetHeight := dto.TargetHeight
	if targetHeight == 0 {
		if dto.ReleaseAt.IsZero() {
			httperrors.RespondBadRequest(w, httperrors.ErrCodeMissingField, "targetHeight or releaseAt is required")
			return
		}
		targetHeight, err = h.gateway.ComputeTargetHeight(r.Context(), dto.ReleaseAt)
		if err != nil {
			h.respondError(w, err)
			return
		}
	}

	ciphertext, requestID, err := h.gateway.EncryptUntil(r.Context(), payload, targetHeight)
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(encryptResponseDTO{
		Ciphertext:   base64.StdEncoding.EncodeToString(ciphertext),
		RequestID:    requestID,
		TargetHeight: targetHeight,
	})
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidSchedule):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidSchedule, err.Error())
	case errors.Is(err, ErrPayloadTooLarge):
		httperrors.RespondBadRequest(w, httperrors.ErrCodePayloadTooLarge, err.Error())
	case errors.Is(err, ErrOracleUnavailable):
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeOracleUnavailable, err.Error())
	default:
		h.logger.Error().Err(err).Msg("time-lock encrypt failed")
		httperrors.RespondInternalError(w, "internal error")
	}
}
