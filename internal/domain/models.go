package domain

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// QuestionType enumerates the gradable question kinds.
type QuestionType string

const (
	MultipleChoice QuestionType = "MULTIPLE_CHOICE"
	MultiSelect    QuestionType = "MULTI_SELECT"
	TrueFalse      QuestionType = "TRUE_FALSE"
	ShortAnswer    QuestionType = "SHORT_ANSWER"
	Numeric        QuestionType = "NUMERIC"
	Scale          QuestionType = "SCALE"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, MultiSelect, TrueFalse, ShortAnswer, Numeric, Scale:
		return true
	}
	return false
}

// Option represents a selectable choice for choice-type questions.
type Option struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// AnswerKey holds the canonical answer data. It never leaves the server.
//
// Values carries the single correct option (MULTIPLE_CHOICE), the correct set
// (MULTI_SELECT) or the list of acceptable strings (SHORT_ANSWER). Bool is used by
// TRUE_FALSE, Number and Tolerance by NUMERIC.
type AnswerKey struct {
	Values    []string `json:"values,omitempty" yaml:"values,omitempty"`
	Bool      *bool    `json:"bool,omitempty" yaml:"bool,omitempty"`
	Number    *float64 `json:"number,omitempty" yaml:"number,omitempty"`
	Tolerance float64  `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
}

// Question is one immutable catalog item.
type Question struct {
	ID               string       `json:"id" yaml:"id"`
	Order            int          `json:"order" yaml:"order"`
	Type             QuestionType `json:"type" yaml:"type"`
	Prompt           string       `json:"prompt" yaml:"prompt"`
	Options          []Option     `json:"options,omitempty" yaml:"options,omitempty"`
	Answer           AnswerKey    `json:"answer" yaml:"answer"`
	Points           int          `json:"points,omitempty" yaml:"points,omitempty"`
	TimeLimitSeconds int          `json:"timeLimitSeconds,omitempty" yaml:"timeLimitSeconds,omitempty"`
	MediaURL         string       `json:"mediaUrl,omitempty" yaml:"mediaUrl,omitempty"`
}

// Quiz is an ordered question catalog. Questions are kept sorted by Order.
type Quiz struct {
	ID                      string     `json:"id" yaml:"id"`
	Title                   string     `json:"title" yaml:"title"`
	Description             string     `json:"description,omitempty" yaml:"description,omitempty"`
	DefaultPoints           int        `json:"defaultPoints,omitempty" yaml:"defaultPoints,omitempty"`
	DefaultTimeLimitSeconds int        `json:"defaultTimeLimitSeconds,omitempty" yaml:"defaultTimeLimitSeconds,omitempty"`
	Questions               []Question `json:"questions" yaml:"questions"`
}

// Sorted returns a copy of q with questions in Order. Ties keep catalog order.
func (q Quiz) Sorted() Quiz {
	questions := make([]Question, len(q.Questions))
	copy(questions, q.Questions)
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Order < questions[j].Order
	})
	q.Questions = questions
	return q
}

// Question returns the question with the given id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// First returns the first question in catalog order.
func (q Quiz) First() (Question, bool) {
	if len(q.Questions) == 0 {
		return Question{}, false
	}
	return q.Questions[0], true
}

// Next returns the question after id, or false when id is the last one.
func (q Quiz) Next(id string) (Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == id && i+1 < len(q.Questions) {
			return q.Questions[i+1], true
		}
	}
	return Question{}, false
}

// PointsFor resolves the point value of a question, falling back to the quiz
// default and finally to 1.
func (q Quiz) PointsFor(question Question) int {
	if question.Points > 0 {
		return question.Points
	}
	if q.DefaultPoints > 0 {
		return q.DefaultPoints
	}
	return 1
}

// TimeLimitFor resolves the effective time limit; zero means untimed.
func (q Quiz) TimeLimitFor(question Question) time.Duration {
	if question.TimeLimitSeconds > 0 {
		return time.Duration(question.TimeLimitSeconds) * time.Second
	}
	return time.Duration(q.DefaultTimeLimitSeconds) * time.Second
}

// Mode selects host-paced or self-paced play.
type Mode string

const (
	ModeLive     Mode = "LIVE"
	ModeHomework Mode = "HOMEWORK"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusScheduled Status = "SCHEDULED"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusArchived  Status = "ARCHIVED"
)

// Terminal reports whether gameplay is over.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusArchived
}

// QuizSession is one run of a quiz. Version increments on every host transition.
type QuizSession struct {
	ID                       string     `json:"id"`
	Code                     string     `json:"code"`
	QuizID                   string     `json:"quizId"`
	HostID                   string     `json:"hostId"`
	Mode                     Mode       `json:"mode"`
	Status                   Status     `json:"status"`
	CurrentQuestionID        string     `json:"currentQuestionId,omitempty"`
	CurrentQuestionStartedAt *time.Time `json:"currentQuestionStartedAt,omitempty"`
	PausedAt                 *time.Time `json:"pausedAt,omitempty"`
	StartedAt                *time.Time `json:"startedAt,omitempty"`
	FinishedAt               *time.Time `json:"finishedAt,omitempty"`
	WindowStart              *time.Time `json:"windowStart,omitempty"`
	WindowEnd                *time.Time `json:"windowEnd,omitempty"`
	Version                  int64      `json:"version"`
	CreatedAt                time.Time  `json:"createdAt"`
}

// WindowOpen reports whether t falls inside [WindowStart, WindowEnd). A missing
// bound is treated as unbounded on that side.
func (s QuizSession) WindowOpen(t time.Time) bool {
	if s.WindowStart != nil && t.Before(*s.WindowStart) {
		return false
	}
	if s.WindowEnd != nil && !t.Before(*s.WindowEnd) {
		return false
	}
	return true
}

// AcceptsSubmissions returns nil for ACTIVE sessions and the matching taxonomy
// error otherwise. Stores call it again at commit time so that archiving a
// session cancels submissions already in flight.
func (s QuizSession) AcceptsSubmissions() error {
	switch s.Status {
	case StatusActive:
		return nil
	case StatusArchived:
		return ErrSessionArchived
	default:
		return ErrSessionNotActive
	}
}

// AcceptsAnswerFor is AcceptsSubmissions plus the LIVE pointer gate. Stores
// call it at commit time so an advance that lands mid-submission rejects the
// answer for the previous question.
func (s QuizSession) AcceptsAnswerFor(questionID string) error {
	if err := s.AcceptsSubmissions(); err != nil {
		return err
	}
	if s.Mode == ModeLive && questionID != s.CurrentQuestionID {
		return ErrStaleQuestion
	}
	return nil
}

// Participant is a joined player and their running aggregates.
type Participant struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"sessionId"`
	DisplayName       string    `json:"displayName"`
	ExternalStudentID string    `json:"externalStudentId,omitempty"`
	JoinedAt          time.Time `json:"joinedAt"`
	LastSeenAt        time.Time `json:"lastSeenAt"`
	Score             float64   `json:"score"`
	ResponseCount     int       `json:"responseCount"`
	CorrectCount      int       `json:"correctCount"`
}

// Accuracy is correct answers over responded questions.
func (p Participant) Accuracy() float64 {
	if p.ResponseCount == 0 {
		return 0
	}
	return float64(p.CorrectCount) / float64(p.ResponseCount)
}

// Answer is the raw submitted value as JSON (string, number, bool or array).
type Answer = json.RawMessage

// Response is one recorded attempt. IsCorrect is nil while pending manual review.
type Response struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	ParticipantID string    `json:"participantId"`
	QuestionID    string    `json:"questionId"`
	Attempt       int       `json:"attempt"`
	Answer        Answer    `json:"answer"`
	Score         float64   `json:"score"`
	MaxScore      float64   `json:"maxScore"`
	IsCorrect     *bool     `json:"isCorrect"`
	LatencyMs     *int64    `json:"latencyMs,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Correct reports a definite correct verdict.
func (r Response) Correct() bool {
	return r.IsCorrect != nil && *r.IsCorrect
}

// RoundScore rounds scores to hundredths so sums of weighted scores stay stable.
func RoundScore(f float64) float64 {
	return math.Round(f*100) / 100
}

// AggregateDelta is the change a new active attempt makes to its participant.
type AggregateDelta struct {
	Score     float64
	Responded int
	Correct   int
}

// SubmissionCommit is written atomically by a store: the session must still be
// ACTIVE (and, in LIVE mode, still on Response.QuestionID) and the latest attempt for (participant, question) must still be
// PreviousAttempt, otherwise nothing is written.
type SubmissionCommit struct {
	Response        Response
	PreviousAttempt int
	Delta           AggregateDelta
}

// LeaderboardEntry is a derived ranking row.
type LeaderboardEntry struct {
	Rank          int     `json:"rank"`
	ParticipantID string  `json:"participantId"`
	DisplayName   string  `json:"displayName"`
	Score         float64 `json:"score"`
	Accuracy      float64 `json:"accuracy"`
	ResponseCount int     `json:"responseCount"`
}
