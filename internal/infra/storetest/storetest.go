// Package storetest holds the behaviour every app.Store implementation must
// share. Store packages call Run from their own tests.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"live-assessment-service/internal/app"
	"live-assessment-service/internal/domain"
)

// Run exercises s against the store contract. newStore must return an empty,
// isolated store on every call.
func Run(t *testing.T, newStore func(t *testing.T) app.Store) {
	t.Run("sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("session version check", func(t *testing.T) { testSessionVersion(t, newStore(t)) })
	t.Run("participants", func(t *testing.T) { testParticipants(t, newStore(t)) })
	t.Run("commit submission", func(t *testing.T) { testCommit(t, newStore(t)) })
	t.Run("commit rejects inactive session", func(t *testing.T) { testCommitStatus(t, newStore(t)) })
	t.Run("commit rejects moved question", func(t *testing.T) { testCommitCurrentQuestion(t, newStore(t)) })
	t.Run("external id claimed once", func(t *testing.T) { testExternalIDClaim(t, newStore(t)) })
	t.Run("concurrent commits", func(t *testing.T) { testConcurrentCommits(t, newStore(t)) })
}

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// NewSession returns an ACTIVE LIVE session with a random id and code.
func NewSession() domain.QuizSession {
	id := uuid.NewString()
	return domain.QuizSession{
		ID:                id,
		Code:              "C" + id[:5],
		QuizID:            "quiz-1",
		HostID:            "host-1",
		Mode:              domain.ModeLive,
		Status:            domain.StatusActive,
		CurrentQuestionID: "q1",
		Version:           1,
		CreatedAt:         base,
	}
}

// NewParticipant returns a participant of sessionID.
func NewParticipant(sessionID, name string) domain.Participant {
	return domain.Participant{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		DisplayName: name,
		JoinedAt:    base,
		LastSeenAt:  base,
	}
}

func testSessions(t *testing.T, s app.Store) {
	ctx := context.Background()
	session := NewSession()
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Code != session.Code || got.Status != domain.StatusActive || got.Version != 1 {
		t.Fatalf("unexpected session %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Fatalf("createdAt not preserved: %v", got.CreatedAt)
	}

	byCode, err := s.GetSessionByCode(ctx, session.Code)
	if err != nil || byCode.ID != session.ID {
		t.Fatalf("get by code: %v %+v", err, byCode)
	}

	dup := NewSession()
	dup.Code = session.Code
	if err := s.CreateSession(ctx, dup); !errors.Is(err, domain.ErrJoinCodeTaken) {
		t.Fatalf("expected ErrJoinCodeTaken, got %v", err)
	}

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := s.GetSessionByCode(ctx, "NOPE00"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound by code, got %v", err)
	}
}

func testSessionVersion(t *testing.T, s app.Store) {
	ctx := context.Background()
	session := NewSession()
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	next := session
	next.Status = domain.StatusPaused
	paused := base.Add(time.Minute)
	next.PausedAt = &paused
	next.Version = 2
	if err := s.UpdateSession(ctx, next, 1); err != nil {
		t.Fatalf("update: %v", err)
	}

	stale := session
	stale.Status = domain.StatusCompleted
	stale.Version = 2
	if err := s.UpdateSession(ctx, stale, 1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, _ := s.GetSession(ctx, session.ID)
	if got.Status != domain.StatusPaused || got.Version != 2 || got.PausedAt == nil || !got.PausedAt.Equal(paused) {
		t.Fatalf("unexpected session after update %+v", got)
	}

	ghost := NewSession()
	if err := s.UpdateSession(ctx, ghost, 1); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testParticipants(t *testing.T, s app.Store) {
	ctx := context.Background()
	session := NewSession()
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	ada := NewParticipant(session.ID, "Ada")
	ada.ExternalStudentID = "stu-42"
	bob := NewParticipant(session.ID, "Bob")
	for _, p := range []domain.Participant{ada, bob} {
		if err := s.CreateParticipant(ctx, p); err != nil {
			t.Fatalf("create participant: %v", err)
		}
	}

	got, err := s.GetParticipant(ctx, ada.ID)
	if err != nil || got.DisplayName != "Ada" || got.SessionID != session.ID {
		t.Fatalf("get participant: %v %+v", err, got)
	}
	found, err := s.FindParticipantByExternalID(ctx, session.ID, "stu-42")
	if err != nil || found.ID != ada.ID {
		t.Fatalf("find by external id: %v %+v", err, found)
	}
	if _, err := s.FindParticipantByExternalID(ctx, session.ID, "stu-0"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	if _, err := s.GetParticipant(ctx, "missing"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}

	list, err := s.ListParticipants(ctx, session.ID)
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %v %d", err, len(list))
	}

	later := base.Add(5 * time.Minute)
	if err := s.TouchParticipant(ctx, bob.ID, later); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := s.TouchParticipant(ctx, bob.ID, base.Add(time.Minute)); err != nil {
		t.Fatalf("touch earlier: %v", err)
	}
	got, _ = s.GetParticipant(ctx, bob.ID)
	if !got.LastSeenAt.Equal(later) {
		t.Fatalf("lastSeenAt should only move forward, got %v", got.LastSeenAt)
	}
	if err := s.TouchParticipant(ctx, "missing", later); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound on touch, got %v", err)
	}
}

func response(session domain.QuizSession, p domain.Participant, question string, attempt int, score float64, correct bool, at time.Time) domain.Response {
	return domain.Response{
		ID:            uuid.NewString(),
		SessionID:     session.ID,
		ParticipantID: p.ID,
		QuestionID:    question,
		Attempt:       attempt,
		Answer:        json.RawMessage(`"o2"`),
		Score:         score,
		MaxScore:      10,
		IsCorrect:     &correct,
		SubmittedAt:   at,
	}
}

func testCommit(t *testing.T, s app.Store) {
	ctx := context.Background()
	session := NewSession()
	p := NewParticipant(session.ID, "Ada")
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.CreateParticipant(ctx, p); err != nil {
		t.Fatalf("create participant: %v", err)
	}

	if _, ok, err := s.LatestResponse(ctx, p.ID, "q1"); err != nil || ok {
		t.Fatalf("expected no latest response, ok=%v err=%v", ok, err)
	}

	first := response(session, p, "q1", 1, 0, false, base.Add(time.Second))
	updated, err := s.CommitSubmission(ctx, domain.SubmissionCommit{
		Response:        first,
		PreviousAttempt: 0,
		Delta:           domain.AggregateDelta{Score: 0, Responded: 1},
	})
	if err != nil {
		t.Fatalf("commit first: %v", err)
	}
	if updated.ResponseCount != 1 || updated.CorrectCount != 0 || updated.Score != 0 {
		t.Fatalf("unexpected aggregates after first %+v", updated)
	}

	second := response(session, p, "q1", 2, 7.5, true, base.Add(2*time.Second))
	updated, err = s.CommitSubmission(ctx, domain.SubmissionCommit{
		Response:        second,
		PreviousAttempt: 1,
		Delta:           domain.AggregateDelta{Score: 7.5, Correct: 1},
	})
	if err != nil {
		t.Fatalf("commit second: %v", err)
	}
	if updated.ResponseCount != 1 || updated.CorrectCount != 1 || updated.Score != 7.5 {
		t.Fatalf("unexpected aggregates after second %+v", updated)
	}

	stale := response(session, p, "q1", 2, 10, true, base.Add(3*time.Second))
	if _, err := s.CommitSubmission(ctx, domain.SubmissionCommit{
		Response:        stale,
		PreviousAttempt: 1,
		Delta:           domain.AggregateDelta{Score: 2.5},
	}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale attempt, got %v", err)
	}

	latest, ok, err := s.LatestResponse(ctx, p.ID, "q1")
	if err != nil || !ok || latest.ID != second.ID || latest.Attempt != 2 || !latest.Correct() {
		t.Fatalf("unexpected latest %+v ok=%v err=%v", latest, ok, err)
	}
	if string(latest.Answer) != `"o2"` {
		t.Fatalf("answer not preserved: %s", latest.Answer)
	}

	all, err := s.ListResponses(ctx, p.ID)
	if err != nil || len(all) != 2 || all[0].ID != first.ID || all[1].ID != second.ID {
		t.Fatalf("expected both attempts in order, got %d err=%v", len(all), err)
	}

	got, _ := s.GetParticipant(ctx, p.ID)
	if got.Score != 7.5 || !got.LastSeenAt.Equal(second.SubmittedAt) {
		t.Fatalf("participant not persisted: %+v", got)
	}

	other := NewParticipant(NewSession().ID, "Eve")
	if _, err := s.CommitSubmission(ctx, domain.SubmissionCommit{
		Response: response(session, other, "q1", 1, 0, false, base),
		Delta:    domain.AggregateDelta{Responded: 1},
	}); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func testCommitStatus(t *testing.T, s app.Store) {
	ctx := context.Background()
	cases := []struct {
		status domain.Status
		want   error
	}{
		{domain.StatusPaused, domain.ErrSessionNotActive},
		{domain.StatusCompleted, domain.ErrSessionNotActive},
		{domain.StatusArchived, domain.ErrSessionArchived},
	}
	for _, tc := range cases {
		session := NewSession()
		session.Status = tc.status
		p := NewParticipant(session.ID, "Ada")
		if err := s.CreateSession(ctx, session); err != nil {
			t.Fatalf("create session: %v", err)
		}
		if err := s.CreateParticipant(ctx, p); err != nil {
			t.Fatalf("create participant: %v", err)
		}
		_, err := s.CommitSubmission(ctx, domain.SubmissionCommit{
			Response: response(session, p, "q1", 1, 10, true, base),
			Delta:    domain.AggregateDelta{Score: 10, Responded: 1, Correct: 1},
		})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.status, tc.want, err)
		}
		if _, ok, _ := s.LatestResponse(ctx, p.ID, "q1"); ok {
			t.Fatalf("%s: nothing should be written", tc.status)
		}
		got, _ := s.GetParticipant(ctx, p.ID)
		if got.Score != 0 || got.ResponseCount != 0 {
			t.Fatalf("%s: aggregates changed: %+v", tc.status, got)
		}
	}
}

func testCommitCurrentQuestion(t *testing.T, s app.Store) {
	ctx := context.Background()
	session := NewSession()
	p := NewParticipant(session.ID, "Ada")
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.CreateParticipant(ctx, p); err != nil {
		t.Fatalf("create participant: %v", err)
	}

	advanced := session
	advanced.CurrentQuestionID = "q2"
	advanced.Version = 2
	if err := s.UpdateSession(ctx, advanced, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}

	_, err := s.CommitSubmission(ctx, domain.SubmissionCommit{
		Response: response(session, p, "q1", 1, 10, true, base),
		Delta:    domain.AggregateDelta{Score: 10, Responded: 1, Correct: 1},
	})
	if !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected ErrStaleQuestion, got %v", err)
	}
	if _, ok, _ := s.LatestResponse(ctx, p.ID, "q1"); ok {
		t.Fatalf("nothing should be written for the previous question")
	}

	updated, err := s.CommitSubmission(ctx, domain.SubmissionCommit{
		Response: response(session, p, "q2", 1, 10, true, base),
		Delta:    domain.AggregateDelta{Score: 10, Responded: 1, Correct: 1},
	})
	if err != nil {
		t.Fatalf("commit current question: %v", err)
	}
	if updated.Score != 10 || updated.ResponseCount != 1 {
		t.Fatalf("unexpected aggregates %+v", updated)
	}

	homework := NewSession()
	homework.Mode = domain.ModeHomework
	homework.CurrentQuestionID = ""
	student := NewParticipant(homework.ID, "Bob")
	if err := s.CreateSession(ctx, homework); err != nil {
		t.Fatalf("create homework session: %v", err)
	}
	if err := s.CreateParticipant(ctx, student); err != nil {
		t.Fatalf("create homework participant: %v", err)
	}
	if _, err := s.CommitSubmission(ctx, domain.SubmissionCommit{
		Response: response(homework, student, "q3", 1, 10, true, base),
		Delta:    domain.AggregateDelta{Score: 10, Responded: 1, Correct: 1},
	}); err != nil {
		t.Fatalf("homework commit has no pointer gate: %v", err)
	}
}

func testExternalIDClaim(t *testing.T, s app.Store) {
	ctx := context.Background()
	session := NewSession()
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	first := NewParticipant(session.ID, "Ada")
	first.ExternalStudentID = "stu-7"
	second := NewParticipant(session.ID, "Ada again")
	second.ExternalStudentID = "stu-7"
	if err := s.CreateParticipant(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if err := s.CreateParticipant(ctx, second); !errors.Is(err, domain.ErrExternalIDTaken) {
		t.Fatalf("expected ErrExternalIDTaken, got %v", err)
	}

	found, err := s.FindParticipantByExternalID(ctx, session.ID, "stu-7")
	if err != nil || found.ID != first.ID {
		t.Fatalf("external id should still resolve to the first participant: %v %+v", err, found)
	}
	list, err := s.ListParticipants(ctx, session.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one participant, got %d err=%v", len(list), err)
	}
	if _, err := s.GetParticipant(ctx, second.ID); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("losing participant must not be stored, got %v", err)
	}

	other := NewSession()
	if err := s.CreateSession(ctx, other); err != nil {
		t.Fatalf("create other session: %v", err)
	}
	elsewhere := NewParticipant(other.ID, "Ada")
	elsewhere.ExternalStudentID = "stu-7"
	if err := s.CreateParticipant(ctx, elsewhere); err != nil {
		t.Fatalf("external ids are scoped per session: %v", err)
	}
}

func testConcurrentCommits(t *testing.T, s app.Store) {
	ctx := context.Background()
	session := NewSession()
	p := NewParticipant(session.ID, "Ada")
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.CreateParticipant(ctx, p); err != nil {
		t.Fatalf("create participant: %v", err)
	}

	const writers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CommitSubmission(ctx, domain.SubmissionCommit{
				Response: response(session, p, "q1", 1, 10, true, base.Add(time.Duration(i)*time.Millisecond)),
				Delta:    domain.AggregateDelta{Score: 10, Responded: 1, Correct: 1},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, domain.ErrConflict):
				failures = append(failures, fmt.Errorf("writer %d: %w", i, err))
			}
		}(i)
	}
	wg.Wait()

	if len(failures) > 0 {
		t.Fatalf("unexpected errors: %v", failures)
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one winning commit, got %d", succeeded)
	}
	got, _ := s.GetParticipant(ctx, p.ID)
	if got.Score != 10 || got.ResponseCount != 1 || got.CorrectCount != 1 {
		t.Fatalf("aggregates double counted: %+v", got)
	}
}
