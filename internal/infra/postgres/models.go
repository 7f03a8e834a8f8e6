package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"live-assessment-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:quiz_sessions"`

	ID                       string     `bun:"id,pk"`
	Code                     string     `bun:"code,notnull"`
	QuizID                   string     `bun:"quiz_id,notnull"`
	HostID                   string     `bun:"host_id,notnull"`
	Mode                     string     `bun:"mode,notnull"`
	Status                   string     `bun:"status,notnull"`
	CurrentQuestionID        string     `bun:"current_question_id,nullzero"`
	CurrentQuestionStartedAt *time.Time `bun:"current_question_started_at"`
	PausedAt                 *time.Time `bun:"paused_at"`
	StartedAt                *time.Time `bun:"started_at"`
	FinishedAt               *time.Time `bun:"finished_at"`
	WindowStart              *time.Time `bun:"window_start"`
	WindowEnd                *time.Time `bun:"window_end"`
	Version                  int64      `bun:"version,notnull"`
	CreatedAt                time.Time  `bun:"created_at,notnull"`
}

func toSessionRow(s domain.QuizSession) sessionRow {
	return sessionRow{
		ID:                       s.ID,
		Code:                     s.Code,
		QuizID:                   s.QuizID,
		HostID:                   s.HostID,
		Mode:                     string(s.Mode),
		Status:                   string(s.Status),
		CurrentQuestionID:        s.CurrentQuestionID,
		CurrentQuestionStartedAt: s.CurrentQuestionStartedAt,
		PausedAt:                 s.PausedAt,
		StartedAt:                s.StartedAt,
		FinishedAt:               s.FinishedAt,
		WindowStart:              s.WindowStart,
		WindowEnd:                s.WindowEnd,
		Version:                  s.Version,
		CreatedAt:                s.CreatedAt,
	}
}

func (r sessionRow) toDomain() domain.QuizSession {
	return domain.QuizSession{
		ID:                       r.ID,
		Code:                     r.Code,
		QuizID:                   r.QuizID,
		HostID:                   r.HostID,
		Mode:                     domain.Mode(r.Mode),
		Status:                   domain.Status(r.Status),
		CurrentQuestionID:        r.CurrentQuestionID,
		CurrentQuestionStartedAt: r.CurrentQuestionStartedAt,
		PausedAt:                 r.PausedAt,
		StartedAt:                r.StartedAt,
		FinishedAt:               r.FinishedAt,
		WindowStart:              r.WindowStart,
		WindowEnd:                r.WindowEnd,
		Version:                  r.Version,
		CreatedAt:                r.CreatedAt,
	}
}

type participantRow struct {
	bun.BaseModel `bun:"table:participants"`

	ID                string    `bun:"id,pk"`
	SessionID         string    `bun:"session_id,notnull"`
	DisplayName       string    `bun:"display_name,notnull"`
	ExternalStudentID string    `bun:"external_student_id,nullzero"`
	JoinedAt          time.Time `bun:"joined_at,notnull"`
	LastSeenAt        time.Time `bun:"last_seen_at,notnull"`
	Score             float64   `bun:"score,notnull"`
	ResponseCount     int       `bun:"response_count,notnull"`
	CorrectCount      int       `bun:"correct_count,notnull"`
}

func toParticipantRow(p domain.Participant) participantRow {
	return participantRow{
		ID:                p.ID,
		SessionID:         p.SessionID,
		DisplayName:       p.DisplayName,
		ExternalStudentID: p.ExternalStudentID,
		JoinedAt:          p.JoinedAt,
		LastSeenAt:        p.LastSeenAt,
		Score:             p.Score,
		ResponseCount:     p.ResponseCount,
		CorrectCount:      p.CorrectCount,
	}
}

func (r participantRow) toDomain() domain.Participant {
	return domain.Participant{
		ID:                r.ID,
		SessionID:         r.SessionID,
		DisplayName:       r.DisplayName,
		ExternalStudentID: r.ExternalStudentID,
		JoinedAt:          r.JoinedAt,
		LastSeenAt:        r.LastSeenAt,
		Score:             r.Score,
		ResponseCount:     r.ResponseCount,
		CorrectCount:      r.CorrectCount,
	}
}

type responseRow struct {
	bun.BaseModel `bun:"table:responses"`

	ID            string    `bun:"id,pk"`
	SessionID     string    `bun:"session_id,notnull"`
	ParticipantID string    `bun:"participant_id,notnull"`
	QuestionID    string    `bun:"question_id,notnull"`
	Attempt       int       `bun:"attempt,notnull"`
	Answer        string    `bun:"answer,type:jsonb,nullzero"`
	Score         float64   `bun:"score,notnull"`
	MaxScore      float64   `bun:"max_score,notnull"`
	IsCorrect     *bool     `bun:"is_correct"`
	LatencyMs     *int64    `bun:"latency_ms"`
	SubmittedAt   time.Time `bun:"submitted_at,notnull"`
}

func toResponseRow(r domain.Response) responseRow {
	return responseRow{
		ID:            r.ID,
		SessionID:     r.SessionID,
		ParticipantID: r.ParticipantID,
		QuestionID:    r.QuestionID,
		Attempt:       r.Attempt,
		Answer:        string(r.Answer),
		Score:         r.Score,
		MaxScore:      r.MaxScore,
		IsCorrect:     r.IsCorrect,
		LatencyMs:     r.LatencyMs,
		SubmittedAt:   r.SubmittedAt,
	}
}

func (r responseRow) toDomain() domain.Response {
	var answer domain.Answer
	if r.Answer != "" {
		answer = domain.Answer(r.Answer)
	}
	return domain.Response{
		ID:            r.ID,
		SessionID:     r.SessionID,
		ParticipantID: r.ParticipantID,
		QuestionID:    r.QuestionID,
		Attempt:       r.Attempt,
		Answer:        answer,
		Score:         r.Score,
		MaxScore:      r.MaxScore,
		IsCorrect:     r.IsCorrect,
		LatencyMs:     r.LatencyMs,
		SubmittedAt:   r.SubmittedAt,
	}
}
