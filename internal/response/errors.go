package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrAdminAccessOnly ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Quiz-specific ─────────────────────────────────────────────────
	ErrQuizNotFound       ErrCode = "QUIZ_NOT_FOUND"
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"
	ErrSessionNotOpen     ErrCode = "SESSION_NOT_OPEN"
	ErrSessionNotReady    ErrCode = "SESSION_NOT_READY"
	ErrQuizSubmitted      ErrCode = "QUIZ_ALREADY_SUBMITTED"
	ErrSubmitInProgress   ErrCode = "SUBMISSION_IN_PROGRESS"
	ErrSessionReadOnly    ErrCode = "SESSION_READ_ONLY"
	ErrTimeUp             ErrCode = "TIME_UP"
	ErrIndexOutOfRange    ErrCode = "INDEX_OUT_OF_RANGE"
	ErrSubmissionFailed   ErrCode = "SUBMISSION_FAILED"
	ErrSubmitRejected     ErrCode = "SUBMISSION_REJECTED"
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Sign in to continue."
	case ErrTokenExpired:
		return "Your session has expired. Please sign in again; quiz progress is kept."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrAdminAccessOnly:
		return "This action is limited to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrActionForbidden:
		return "This action is not allowed."

	// ─── Quiz-specific ─────────────────────────────────────────────────
	case ErrQuizNotFound:
		return "Quiz not found in this course."
	case ErrNoQuestions:
		return "This quiz has no questions."
	case ErrSessionNotOpen:
		return "This quiz is not open."
	case ErrSessionNotReady:
		return "Saved progress is still loading. Please try again."
	case ErrQuizSubmitted:
		return "This quiz has already been submitted."
	case ErrSubmitInProgress:
		return "Submission is already in progress."
	case ErrSessionReadOnly:
		return "This quiz is read-only."
	case ErrTimeUp:
		return "Time is up for this quiz."
	case ErrIndexOutOfRange:
		return "Question or option does not exist."
	case ErrSubmissionFailed:
		return "Failed to submit quiz. Your answers are saved; please try again."
	case ErrSubmitRejected:
		return "The server did not accept the submission. Your answers are saved; please try again."
	case ErrBackendUnavailable:
		return "Cannot reach the server. Please check your connection."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
