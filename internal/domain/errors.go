package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches the id or join code.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionNotActive is returned when a submission arrives outside ACTIVE.
	ErrSessionNotActive = errors.New("quiz session is not active")
	// ErrSessionArchived is returned when the session was archived, including mid-flight.
	ErrSessionArchived = errors.New("quiz session is archived")
	// ErrParticipantNotFound is returned when a participant id is unknown or belongs to another session.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrUnknownQuestion indicates a submitted question id is not part of the quiz.
	ErrUnknownQuestion = errors.New("question does not belong to quiz")
	// ErrStaleQuestion is returned in LIVE mode when the question is not the current one.
	ErrStaleQuestion = errors.New("question is not the current question")
	// ErrWindowClosed is returned in HOMEWORK mode outside the submission window.
	ErrWindowClosed = errors.New("homework window is closed")
	// ErrInvalidTransition is returned for an illegal lifecycle move.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrConflict signals an optimistic concurrency version mismatch.
	ErrConflict = errors.New("session version conflict")
	// ErrForbidden is returned when a non-host issues a host command.
	ErrForbidden = errors.New("host role required")
	// ErrValidation indicates a malformed answer or request.
	ErrValidation = errors.New("validation error")
	// ErrAttemptLimitReached is returned once the configured attempts per question are used.
	ErrAttemptLimitReached = errors.New("attempt limit reached")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrStoreUnavailable is returned after store retries are exhausted.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrJoinCodeTaken is used between the app and its stores when a generated
	// join code collides; callers never see it.
	ErrJoinCodeTaken = errors.New("join code already in use")
	// ErrExternalIDTaken is returned by stores when another participant of the
	// session already claimed the external student id; the registry resumes it.
	ErrExternalIDTaken = errors.New("external student id already joined")
)

var callerFacing = []error{
	ErrSessionNotFound,
	ErrSessionNotActive,
	ErrSessionArchived,
	ErrParticipantNotFound,
	ErrUnknownQuestion,
	ErrStaleQuestion,
	ErrWindowClosed,
	ErrInvalidTransition,
	ErrConflict,
	ErrForbidden,
	ErrValidation,
	ErrAttemptLimitReached,
	ErrQuizNotFound,
	ErrJoinCodeTaken,
	ErrExternalIDTaken,
}

// IsCallerFacing reports whether err belongs to the recoverable taxonomy that is
// surfaced to clients as-is. Anything else is a store fault and may be retried.
func IsCallerFacing(err error) bool {
	for _, target := range callerFacing {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrSessionNotFound, "SESSION_NOT_FOUND"},
	{ErrSessionNotActive, "SESSION_NOT_ACTIVE"},
	{ErrSessionArchived, "SESSION_ARCHIVED"},
	{ErrParticipantNotFound, "PARTICIPANT_NOT_FOUND"},
	{ErrUnknownQuestion, "UNKNOWN_QUESTION"},
	{ErrStaleQuestion, "STALE_QUESTION"},
	{ErrWindowClosed, "WINDOW_CLOSED"},
	{ErrInvalidTransition, "INVALID_TRANSITION"},
	{ErrConflict, "CONFLICT"},
	{ErrForbidden, "FORBIDDEN"},
	{ErrValidation, "VALIDATION_ERROR"},
	{ErrAttemptLimitReached, "ATTEMPT_LIMIT_REACHED"},
	{ErrQuizNotFound, "QUIZ_NOT_FOUND"},
	{ErrStoreUnavailable, "STORE_UNAVAILABLE"},
}

// ErrorCode returns the stable client-facing code for err, "OK" for nil and
// "INTERNAL" for anything outside the taxonomy.
func ErrorCode(err error) string {
	if err == nil {
		return "OK"
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "INTERNAL"
}
