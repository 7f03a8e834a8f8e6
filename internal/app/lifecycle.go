package app

import (
	"fmt"
	"strings"
	"time"

	"live-assessment-service/internal/domain"
)

// Command is a host-issued lifecycle input.
type Command string

const (
	CmdSchedule Command = "schedule"
	CmdStart    Command = "start"
	CmdAdvance  Command = "advanceQuestion"
	CmdPause    Command = "pause"
	CmdResume   Command = "resume"
	CmdComplete Command = "complete"
	CmdArchive  Command = "archive"
)

var commands = []Command{CmdSchedule, CmdStart, CmdAdvance, CmdPause, CmdResume, CmdComplete, CmdArchive}

// ParseCommand accepts a command name case-insensitively ("advance" is an alias
// for advanceQuestion).
func ParseCommand(raw string) (Command, error) {
	if strings.EqualFold(raw, "advance") {
		return CmdAdvance, nil
	}
	for _, cmd := range commands {
		if strings.EqualFold(raw, string(cmd)) {
			return cmd, nil
		}
	}
	return "", fmt.Errorf("%w: unknown command %q", domain.ErrValidation, raw)
}

// Transition computes the session state after cmd. It is pure: Version and
// persistence are the caller's concern.
//
//	DRAFT -> SCHEDULED -> ACTIVE <-> PAUSED -> COMPLETED -> ARCHIVED
func Transition(s domain.QuizSession, quiz domain.Quiz, cmd Command, now time.Time) (domain.QuizSession, error) {
	next := s
	switch cmd {
	case CmdSchedule:
		if s.Status != domain.StatusDraft {
			return s, invalid(cmd, s)
		}
		next.Status = domain.StatusScheduled

	case CmdStart:
		if s.Status != domain.StatusDraft && s.Status != domain.StatusScheduled {
			return s, invalid(cmd, s)
		}
		next.Status = domain.StatusActive
		next.StartedAt = timePtr(now)
		if s.Mode == domain.ModeLive {
			first, ok := quiz.First()
			if !ok {
				return s, fmt.Errorf("%w: quiz %s has no questions", domain.ErrInvalidTransition, quiz.ID)
			}
			next.CurrentQuestionID = first.ID
			next.CurrentQuestionStartedAt = timePtr(now)
		}

	case CmdAdvance:
		if s.Mode != domain.ModeLive || s.Status != domain.StatusActive {
			return s, invalid(cmd, s)
		}
		following, ok := quiz.Next(s.CurrentQuestionID)
		if !ok {
			return complete(next, now), nil
		}
		next.CurrentQuestionID = following.ID
		next.CurrentQuestionStartedAt = timePtr(now)

	case CmdPause:
		if s.Status != domain.StatusActive {
			return s, invalid(cmd, s)
		}
		next.Status = domain.StatusPaused
		next.PausedAt = timePtr(now)

	case CmdResume:
		if s.Status != domain.StatusPaused {
			return s, invalid(cmd, s)
		}
		next.Status = domain.StatusActive
		if s.CurrentQuestionStartedAt != nil && s.PausedAt != nil {
			// Shift the question clock so the remaining time is preserved.
			next.CurrentQuestionStartedAt = timePtr(s.CurrentQuestionStartedAt.Add(now.Sub(*s.PausedAt)))
		}
		next.PausedAt = nil

	case CmdComplete:
		if s.Status.Terminal() {
			return s, invalid(cmd, s)
		}
		return complete(next, now), nil

	case CmdArchive:
		if s.Status != domain.StatusCompleted {
			return s, invalid(cmd, s)
		}
		next.Status = domain.StatusArchived

	default:
		return s, fmt.Errorf("%w: unknown command %q", domain.ErrValidation, cmd)
	}
	return next, nil
}

func complete(s domain.QuizSession, now time.Time) domain.QuizSession {
	s.Status = domain.StatusCompleted
	s.CurrentQuestionID = ""
	s.CurrentQuestionStartedAt = nil
	s.PausedAt = nil
	s.FinishedAt = timePtr(now)
	return s
}

func invalid(cmd Command, s domain.QuizSession) error {
	return fmt.Errorf("%w: cannot %s a %s %s session", domain.ErrInvalidTransition, cmd, s.Status, s.Mode)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
