package app

import (
	"context"
	"time"

	"live-assessment-service/internal/domain"
)

// SessionRepository stores session records. UpdateSession must write s only if
// the stored version still equals expectedVersion, returning domain.ErrConflict
// otherwise.
type SessionRepository interface {
	CreateSession(ctx context.Context, s domain.QuizSession) error
	GetSession(ctx context.Context, id string) (domain.QuizSession, error)
	GetSessionByCode(ctx context.Context, code string) (domain.QuizSession, error)
	UpdateSession(ctx context.Context, s domain.QuizSession, expectedVersion int64) error
}

// ParticipantRepository stores participant identities and aggregates.
type ParticipantRepository interface {
	CreateParticipant(ctx context.Context, p domain.Participant) error
	GetParticipant(ctx context.Context, id string) (domain.Participant, error)
	FindParticipantByExternalID(ctx context.Context, sessionID, externalID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	TouchParticipant(ctx context.Context, id string, at time.Time) error
}

// ResponseRepository stores the append-only attempt log.
//
// CommitSubmission is the single atomic write of a submission: it re-checks that
// the session is ACTIVE (domain.ErrSessionArchived / domain.ErrSessionNotActive
// otherwise), that the latest attempt for the pair is still
// c.PreviousAttempt (domain.ErrConflict otherwise), appends the response and
// applies c.Delta to the participant, returning the updated participant.
type ResponseRepository interface {
	LatestResponse(ctx context.Context, participantID, questionID string) (domain.Response, bool, error)
	ListResponses(ctx context.Context, participantID string) ([]domain.Response, error)
	CommitSubmission(ctx context.Context, c domain.SubmissionCommit) (domain.Participant, error)
}

// Store is the durable collaborator behind the engine (in-memory, Redis, Postgres).
type Store interface {
	SessionRepository
	ParticipantRepository
	ResponseRepository
}

// QuizRepository loads immutable quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}
