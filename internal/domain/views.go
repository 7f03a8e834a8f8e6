package domain

import "time"

// QuestionView is the participant-safe projection of a Question. It has no
// field able to carry canonical answer data.
type QuestionView struct {
	ID               string       `json:"id"`
	Order            int          `json:"order"`
	Type             QuestionType `json:"type"`
	Prompt           string       `json:"prompt"`
	Options          []Option     `json:"options,omitempty"`
	Points           int          `json:"points"`
	TimeLimitSeconds int          `json:"timeLimitSeconds,omitempty"`
	MediaURL         string       `json:"mediaUrl,omitempty"`
}

// QuizView is the redacted quiz catalog.
type QuizView struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Questions   []QuestionView `json:"questions"`
}

// SessionView is session metadata exposed to clients.
type SessionView struct {
	ID                       string     `json:"id"`
	Code                     string     `json:"code"`
	QuizID                   string     `json:"quizId"`
	Mode                     Mode       `json:"mode"`
	Status                   Status     `json:"status"`
	CurrentQuestionID        string     `json:"currentQuestionId,omitempty"`
	CurrentQuestionStartedAt *time.Time `json:"currentQuestionStartedAt,omitempty"`
	StartedAt                *time.Time `json:"startedAt,omitempty"`
	FinishedAt               *time.Time `json:"finishedAt,omitempty"`
	WindowStart              *time.Time `json:"windowStart,omitempty"`
	WindowEnd                *time.Time `json:"windowEnd,omitempty"`
	Version                  int64      `json:"version"`
}

// Snapshot is the full pull-based read of a session.
type Snapshot struct {
	Session           SessionView        `json:"session"`
	Quiz              QuizView           `json:"quiz"`
	CurrentQuestion   *QuestionView      `json:"currentQuestion,omitempty"`
	TimeRemainingMs   *int64             `json:"timeRemainingMs,omitempty"`
	Leaderboard       []LeaderboardEntry `json:"leaderboard"`
	LeaderboardHidden bool               `json:"leaderboardHidden,omitempty"`
	ServerTime        time.Time          `json:"serverTime"`
}

// Verdict is the Grading Engine output. IsCorrect is nil when RequiresManual.
type Verdict struct {
	Score          float64 `json:"score"`
	MaxScore       float64 `json:"maxScore"`
	IsCorrect      *bool   `json:"isCorrect"`
	RequiresManual bool    `json:"requiresManual"`
}

// ResponseView summarizes the recorded attempt.
type ResponseView struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"maxScore"`
	IsCorrect *bool   `json:"isCorrect"`
	Attempt   int     `json:"attempt"`
}

// ParticipantView summarizes participant aggregates after a submission.
type ParticipantView struct {
	ID            string  `json:"id"`
	Score         float64 `json:"score"`
	ResponseCount int     `json:"responseCount"`
	Accuracy      float64 `json:"accuracy"`
}

// SubmitResult is returned by a successful submission.
type SubmitResult struct {
	Response    ResponseView    `json:"response"`
	Participant ParticipantView `json:"participant"`
	Grade       Verdict         `json:"grade"`
}

// JoinResult is the identity token handed to a participant. Clients persist
// ParticipantID and replay it on reconnect.
type JoinResult struct {
	ParticipantID string    `json:"participantId"`
	DisplayName   string    `json:"displayName"`
	SessionID     string    `json:"sessionId"`
	JoinedAt      time.Time `json:"joinedAt"`
	Resumed       bool      `json:"resumed"`
}

// Role is the caller-asserted role flag.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// Actor is the trusted identity assertion supplied by the boundary.
type Actor struct {
	ID   string
	Role Role
}

// IsHost reports whether the actor carries the host role flag.
func (a Actor) IsHost() bool {
	return a.Role == RoleHost
}
