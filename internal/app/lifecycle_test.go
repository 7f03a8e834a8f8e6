package app

import (
	"errors"
	"testing"
	"time"

	"live-assessment-service/internal/domain"
)

func TestTransitionTable(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	quiz := domain.Quiz{ID: "quiz", Questions: []domain.Question{{ID: "a", Order: 1}, {ID: "b", Order: 2}}}

	cases := []struct {
		from domain.Status
		mode domain.Mode
		cmd  Command
		want domain.Status
	}{
		{domain.StatusDraft, domain.ModeLive, CmdSchedule, domain.StatusScheduled},
		{domain.StatusDraft, domain.ModeLive, CmdStart, domain.StatusActive},
		{domain.StatusScheduled, domain.ModeHomework, CmdStart, domain.StatusActive},
		{domain.StatusActive, domain.ModeLive, CmdAdvance, domain.StatusActive},
		{domain.StatusActive, domain.ModeLive, CmdPause, domain.StatusPaused},
		{domain.StatusPaused, domain.ModeLive, CmdResume, domain.StatusActive},
		{domain.StatusPaused, domain.ModeLive, CmdComplete, domain.StatusCompleted},
		{domain.StatusDraft, domain.ModeHomework, CmdComplete, domain.StatusCompleted},
		{domain.StatusCompleted, domain.ModeLive, CmdArchive, domain.StatusArchived},
		{domain.StatusScheduled, domain.ModeLive, CmdSchedule, ""},
		{domain.StatusActive, domain.ModeLive, CmdStart, ""},
		{domain.StatusPaused, domain.ModeLive, CmdAdvance, ""},
		{domain.StatusActive, domain.ModeHomework, CmdAdvance, ""},
		{domain.StatusDraft, domain.ModeLive, CmdPause, ""},
		{domain.StatusActive, domain.ModeLive, CmdResume, ""},
		{domain.StatusCompleted, domain.ModeLive, CmdComplete, ""},
		{domain.StatusArchived, domain.ModeLive, CmdComplete, ""},
		{domain.StatusActive, domain.ModeLive, CmdArchive, ""},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.mode)+"/"+string(tc.cmd), func(t *testing.T) {
			session := domain.QuizSession{ID: "s", Mode: tc.mode, Status: tc.from}
			if tc.from == domain.StatusActive || tc.from == domain.StatusPaused {
				session.CurrentQuestionID = "a"
				session.CurrentQuestionStartedAt = timePtr(now.Add(-time.Minute))
			}
			next, err := Transition(session, quiz, tc.cmd, now)
			if tc.want == "" {
				if !errors.Is(err, domain.ErrInvalidTransition) {
					t.Fatalf("expected invalid transition, got %v", err)
				}
				if next.Status != tc.from {
					t.Fatalf("rejected transition changed status to %s", next.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if next.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, next.Status)
			}
		})
	}
}

func TestTransitionStartAndAdvanceStampClock(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	quiz := domain.Quiz{ID: "quiz", Questions: []domain.Question{{ID: "a", Order: 1}, {ID: "b", Order: 2}}}

	live, err := Transition(domain.QuizSession{Mode: domain.ModeLive, Status: domain.StatusDraft}, quiz, CmdStart, now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if live.CurrentQuestionID != "a" || !live.CurrentQuestionStartedAt.Equal(now) || !live.StartedAt.Equal(now) {
		t.Fatalf("unexpected live start %+v", live)
	}

	later := now.Add(time.Minute)
	next, err := Transition(live, quiz, CmdAdvance, later)
	if err != nil || next.CurrentQuestionID != "b" || !next.CurrentQuestionStartedAt.Equal(later) {
		t.Fatalf("unexpected advance %+v %v", next, err)
	}
	if !live.CurrentQuestionStartedAt.Equal(now) {
		t.Fatalf("transition must not mutate its input")
	}

	homework, err := Transition(domain.QuizSession{Mode: domain.ModeHomework, Status: domain.StatusDraft}, quiz, CmdStart, now)
	if err != nil || homework.CurrentQuestionID != "" {
		t.Fatalf("homework start must not pick a question, got %+v %v", homework, err)
	}

	if _, err := Transition(domain.QuizSession{Mode: domain.ModeLive, Status: domain.StatusDraft}, domain.Quiz{ID: "empty"}, CmdStart, now); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected empty quiz to be unstartable, got %v", err)
	}
}

func TestParseCommand(t *testing.T) {
	for _, raw := range []string{"start", "ADVANCE", "advanceQuestion", "Pause"} {
		if _, err := ParseCommand(raw); err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
	}
	if _, err := ParseCommand("explode"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
