package quiz

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	httperrors "github.com/chainquiz/chainquiz/pkg/http/errors"
)

const (
	statusPushInterval = 3 * time.Second
	wsWriteTimeout     = 10 * time.Second
)

// ReleaseStatus is one frame of the countdown stream.
type ReleaseStatus struct {
	QuizID        string `json:"quizId"`
	CurrentHeight uint64 `json:"currentHeight"`
	TargetHeight  uint64 `json:"targetHeight"`
	Released      bool   `json:"released"`
}

// ReleaseStream pushes live release status over a WebSocket so clients can
// render a countdown without polling the height oracle through us.
type ReleaseStream struct {
	svc      *Service
	upgrader websocket.Upgrader
	interval time.Duration
	logger   zerolog.Logger
}

// NewReleaseStream constructs the status stream handler.
func NewReleaseStream(svc *Service, logger zerolog.Logger) *ReleaseStream {
	return &ReleaseStream{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		interval: statusPushInterval,
		logger:   logger.With().Str("component", "release_stream").Logger(),
	}
}

// ServeHTTP serves GET /ws/quizzes/{id}/status. The stream closes itself once
// the release condition is met; the final frame carries released=true.
func (s *ReleaseStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")

	q, err := s.svc.GetQuiz(r.Context(), quizID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httperrors.RespondNotFound(w, httperrors.ErrCodeQuizNotFound, err.Error())
			return
		}
		httperrors.RespondInternalError(w, "internal error")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("quiz_id", quizID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain the read side so client close frames end the stream promptly.
	go func() {
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		released, err := s.push(ctx, conn, q)
		if err != nil || released {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *ReleaseStream) push(ctx context.Context, conn *websocket.Conn, q Quiz) (bool, error) {
	height, err := s.svc.ReleaseHeight(ctx)
	if err != nil {
		// Oracle hiccups are transient; skip this tick rather than drop the
		// connection.
		s.logger.Warn().Err(err).Str("quiz_id", q.ID).Msg("height read failed, skipping status push")
		return false, nil
	}

	status := ReleaseStatus{
		QuizID:        q.ID,
		CurrentHeight: height,
		TargetHeight:  q.TargetHeight,
		Released:      height >= q.TargetHeight,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(status); err != nil {
		return false, err
	}
	return status.Released, nil
}
