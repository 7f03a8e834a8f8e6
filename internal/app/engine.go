package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"live-assessment-service/internal/domain"
	"live-assessment-service/internal/metrics"
)

const maxJoinCodeAttempts = 8

// Engine owns the session state machine, participant registry and submission
// processing on top of a Store.
type Engine struct {
	store   Store
	quizzes QuizRepository
	policy  Policy
	now     func() time.Time
	newCode func() string

	pairs   *keyedMutex
	joins   *keyedMutex
	advance *autoAdvancer
}

func NewEngine(store Store, quizzes QuizRepository, policy Policy) *Engine {
	e := &Engine{
		store:   store,
		quizzes: quizzes,
		policy:  policy,
		now:     time.Now,
		newCode: newJoinCode,
		pairs:   newKeyedMutex(),
		joins:   newKeyedMutex(),
	}
	e.advance = newAutoAdvancer(e.autoAdvance)
	return e
}

// WithClock swaps the time source; tests use it for deterministic timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Policy returns the engine's active policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Close stops pending auto-advance timers.
func (e *Engine) Close() {
	e.advance.stop()
}

// CreateSessionRequest describes a new session owned by a host.
type CreateSessionRequest struct {
	QuizID      string
	Mode        domain.Mode
	WindowStart *time.Time
	WindowEnd   *time.Time
}

// CreateSession allocates a DRAFT session with a fresh join code.
func (e *Engine) CreateSession(ctx context.Context, hostID string, req CreateSessionRequest) (domain.QuizSession, error) {
	switch req.Mode {
	case domain.ModeLive:
		req.WindowStart, req.WindowEnd = nil, nil
	case domain.ModeHomework:
		if req.WindowStart != nil && req.WindowEnd != nil && !req.WindowStart.Before(*req.WindowEnd) {
			return domain.QuizSession{}, fmt.Errorf("%w: homework window must end after it starts", domain.ErrValidation)
		}
	default:
		return domain.QuizSession{}, fmt.Errorf("%w: unknown mode %q", domain.ErrValidation, req.Mode)
	}
	if _, err := e.quiz(ctx, req.QuizID); err != nil {
		return domain.QuizSession{}, err
	}

	session := domain.QuizSession{
		ID:          uuid.NewString(),
		QuizID:      req.QuizID,
		HostID:      hostID,
		Mode:        req.Mode,
		Status:      domain.StatusDraft,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		Version:     1,
		CreatedAt:   e.now(),
	}
	for i := 0; i < maxJoinCodeAttempts; i++ {
		session.Code = e.newCode()
		err := storeExec(ctx, e.policy.StoreRetries, func() error {
			return e.store.CreateSession(ctx, session)
		})
		if errors.Is(err, domain.ErrJoinCodeTaken) {
			continue
		}
		if err != nil {
			return domain.QuizSession{}, err
		}
		return session, nil
	}
	return domain.QuizSession{}, fmt.Errorf("%w: could not allocate a unique join code", domain.ErrStoreUnavailable)
}

// Session loads a session by id.
func (e *Engine) Session(ctx context.Context, id string) (domain.QuizSession, error) {
	return storeCall(ctx, e.policy.StoreRetries, func() (domain.QuizSession, error) {
		return e.store.GetSession(ctx, id)
	})
}

// SessionByCode resolves a join code, ignoring case and surrounding spaces.
func (e *Engine) SessionByCode(ctx context.Context, code string) (domain.QuizSession, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	return storeCall(ctx, e.policy.StoreRetries, func() (domain.QuizSession, error) {
		return e.store.GetSessionByCode(ctx, code)
	})
}

// Apply runs a host command under optimistic concurrency. With an
// expectedVersion the command fails with domain.ErrConflict unless the session
// is still at that version; without one the engine re-reads and retries a
// bounded number of times when it loses a race, except for advanceQuestion,
// whose retry would move the pointer a second time.
func (e *Engine) Apply(ctx context.Context, sessionID string, cmd Command, expectedVersion *int64) (domain.QuizSession, error) {
	session, err := e.apply(ctx, sessionID, cmd, expectedVersion)
	metrics.ObserveCommand(string(cmd), err)
	return session, err
}

func (e *Engine) apply(ctx context.Context, sessionID string, cmd Command, expectedVersion *int64) (domain.QuizSession, error) {
	for attempt := 0; ; attempt++ {
		current, err := e.Session(ctx, sessionID)
		if err != nil {
			return domain.QuizSession{}, err
		}
		if expectedVersion != nil && current.Version != *expectedVersion {
			return domain.QuizSession{}, fmt.Errorf("%w: expected version %d, session is at %d", domain.ErrConflict, *expectedVersion, current.Version)
		}
		quiz, err := e.quiz(ctx, current.QuizID)
		if err != nil {
			return domain.QuizSession{}, err
		}

		next, err := Transition(current, quiz, cmd, e.now())
		if err != nil {
			return domain.QuizSession{}, err
		}
		next.Version = current.Version + 1

		err = storeExec(ctx, e.policy.StoreRetries, func() error {
			return e.store.UpdateSession(ctx, next, current.Version)
		})
		if errors.Is(err, domain.ErrConflict) && expectedVersion == nil && retriable(cmd) && attempt < e.policy.CommandRetries {
			continue
		}
		if err != nil {
			return domain.QuizSession{}, err
		}
		e.scheduleAutoAdvance(next, quiz)
		return next, nil
	}
}

// retriable reports whether cmd may be re-applied to a session that changed
// under it. Re-applying the other commands either lands on the same state or
// fails with ErrInvalidTransition.
func retriable(cmd Command) bool {
	return cmd != CmdAdvance
}

func (e *Engine) quiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return storeCall(ctx, e.policy.StoreRetries, func() (domain.Quiz, error) {
		return e.quizzes.GetQuiz(ctx, quizID)
	})
}
