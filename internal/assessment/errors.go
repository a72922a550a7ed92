package assessment

import "errors"

// Session errors. They are local guards: the session state is left untouched
// whenever one is returned.
var (
	ErrPhase                = errors.New("operation not allowed in current phase")
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	ErrUnknownQuestion      = errors.New("question is not part of this session")
	ErrUnknownOption        = errors.New("option label does not exist for question")
	ErrInvalidQuestion      = errors.New("invalid question")
	ErrSessionClosed        = errors.New("session is closed")
)
