package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"live-assessment-service/internal/domain"
)

// autoAdvancer keeps one timer per LIVE session. When it fires it advances the
// session at the version it observed, so a host that moved first wins and the
// timer's write fails with domain.ErrConflict.
type autoAdvancer struct {
	fire func(sessionID string, version int64)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newAutoAdvancer(fire func(sessionID string, version int64)) *autoAdvancer {
	return &autoAdvancer{fire: fire, timers: make(map[string]*time.Timer)}
}

func (a *autoAdvancer) schedule(sessionID string, version int64, after time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if t, ok := a.timers[sessionID]; ok {
		t.Stop()
	}
	if after < 0 {
		after = 0
	}
	// The callback takes a.mu, so it cannot observe t before it is assigned.
	var t *time.Timer
	t = time.AfterFunc(after, func() {
		a.mu.Lock()
		if a.timers[sessionID] == t {
			delete(a.timers, sessionID)
		}
		a.mu.Unlock()
		a.fire(sessionID, version)
	})
	a.timers[sessionID] = t
}

func (a *autoAdvancer) cancel(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.timers[sessionID]; ok {
		t.Stop()
		delete(a.timers, sessionID)
	}
}

func (a *autoAdvancer) pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers)
}

func (a *autoAdvancer) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for id, t := range a.timers {
		t.Stop()
		delete(a.timers, id)
	}
}

func (e *Engine) scheduleAutoAdvance(s domain.QuizSession, quiz domain.Quiz) {
	if !e.policy.AutoAdvance {
		return
	}
	if s.Mode != domain.ModeLive || s.Status != domain.StatusActive || s.CurrentQuestionStartedAt == nil {
		e.advance.cancel(s.ID)
		return
	}
	question, ok := quiz.Question(s.CurrentQuestionID)
	if !ok {
		e.advance.cancel(s.ID)
		return
	}
	limit := quiz.TimeLimitFor(question)
	if limit <= 0 {
		e.advance.cancel(s.ID)
		return
	}
	elapsed := e.now().Sub(*s.CurrentQuestionStartedAt)
	e.advance.schedule(s.ID, s.Version, limit-elapsed+e.policy.AutoAdvanceGrace)
}

func (e *Engine) autoAdvance(sessionID string, version int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := e.Apply(ctx, sessionID, CmdAdvance, &version)
	switch {
	case err == nil:
		log.Printf("auto-advanced session %s from version %d", sessionID, version)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition):
		// the host moved first
	default:
		log.Printf("auto-advance session %s failed: %v", sessionID, err)
	}
}
