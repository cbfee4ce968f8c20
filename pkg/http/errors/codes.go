package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeAuthenticationRequired = "authentication_required"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeMissingField     = "missing_field"
	ErrCodeValidationFailed = "validation_failed"

	// Quiz lifecycle errors
	ErrCodeQuizNotFound          = "quiz_not_found"
	ErrCodeAlreadyBound          = "timelock_already_bound"
	ErrCodeNotYetEncrypted       = "timelock_not_bound"
	ErrCodeReleaseNotReady       = "release_not_ready"
	ErrCodeInvalidSchedule       = "invalid_schedule"
	ErrCodeInsufficientQuestions = "insufficient_questions"

	// Time-lock errors
	ErrCodePayloadTooLarge   = "payload_too_large"
	ErrCodeOracleUnavailable = "oracle_unavailable"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
)
