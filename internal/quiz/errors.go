package quiz

import "errors"

var (
	// ErrConfiguration is returned when caller-supplied quiz parameters are
	// invalid (bad answer index, subset size larger than the pool).
	ErrConfiguration = errors.New("invalid quiz configuration")
	// ErrNotFound indicates the quiz id is unknown.
	ErrNotFound = errors.New("quiz not found")
	// ErrAlreadyBound indicates the time-lock binding already happened; the
	// transition is exactly-once.
	ErrAlreadyBound = errors.New("quiz time-lock already bound")
	// ErrNotYetEncrypted indicates creation succeeded but the creator never
	// completed the binding step. Distinct from "not ready yet".
	ErrNotYetEncrypted = errors.New("quiz time-lock binding not completed")
	// ErrNotReady indicates the release height has not been reached.
	ErrNotReady = errors.New("quiz release height not reached")
	// ErrInsufficientQuestions indicates the question pool cannot fill a
	// subset. This is a configuration bug, never silently tolerated.
	ErrInsufficientQuestions = errors.New("question pool smaller than subset size")
)
