package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden        ErrCode = "FORBIDDEN"
	ErrPermissionDenied ErrCode = "PERMISSION_DENIED"
	ErrNotSessionOwner  ErrCode = "NOT_SESSION_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Quiz ──────────────────────────────────────────────────────────
	ErrQuizNotFound     ErrCode = "QUIZ_NOT_FOUND"
	ErrQuizNotPublished ErrCode = "QUIZ_NOT_PUBLISHED"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"

	// ─── Session ───────────────────────────────────────────────────────
	ErrSessionNotFound      ErrCode = "SESSION_NOT_FOUND"
	ErrSessionClosed        ErrCode = "SESSION_CLOSED"
	ErrPhase                ErrCode = "PHASE_ERROR"
	ErrAttemptLimitExceeded ErrCode = "ATTEMPT_LIMIT_EXCEEDED"
	ErrUnknownQuestion      ErrCode = "UNKNOWN_QUESTION"
	ErrUnknownOption        ErrCode = "UNKNOWN_OPTION"
	ErrResultNotReady       ErrCode = "RESULT_NOT_READY"

	// ─── Import ────────────────────────────────────────────────────────
	ErrFileRequired      ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFormat ErrCode = "UNSUPPORTED_FORMAT"
	ErrNoValidQuestions  ErrCode = "NO_VALID_QUESTIONS"
	ErrFileTooLarge      ErrCode = "FILE_TOO_LARGE"

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
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You are not allowed to access this resource."
	case ErrPermissionDenied:
		return "Permission denied."
	case ErrNotSessionOwner:
		return "This session belongs to another respondent."

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
	case ErrConflict:
		return "Resource already exists."

	// ─── Quiz ──────────────────────────────────────────────────────────
	case ErrQuizNotFound:
		return "Quiz not found."
	case ErrQuizNotPublished:
		return "This quiz is not published yet."
	case ErrNoQuestions:
		return "This quiz has no questions."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Session not found or expired."
	case ErrSessionClosed:
		return "Session has been closed."
	case ErrPhase:
		return "This action is not available at the current stage of the quiz."
	case ErrAttemptLimitExceeded:
		return "You have used all attempts allowed for this quiz."
	case ErrUnknownQuestion:
		return "Question is not part of this session."
	case ErrUnknownOption:
		return "Answer option does not exist for this question."
	case ErrResultNotReady:
		return "The quiz has not been submitted yet."

	// ─── Import ────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "A question file upload is required."
	case ErrUnsupportedFormat:
		return "Unsupported question file format. Use .csv, .txt or .xlsx."
	case ErrNoValidQuestions:
		return "No valid questions were found in the file."
	case ErrFileTooLarge:
		return "File exceeds the upload size limit."

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
