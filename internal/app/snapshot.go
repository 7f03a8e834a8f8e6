package app

import (
	"context"
	"time"

	"live-assessment-service/internal/domain"
)

// Snapshot builds the pull-based read of a session. The leaderboard is
// recomputed from participant state on every call. Canonical answers are
// dropped by construction: the views have no field to carry them.
func (e *Engine) Snapshot(ctx context.Context, sessionID string, viewer domain.Actor) (domain.Snapshot, error) {
	session, err := e.Session(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return e.snapshot(ctx, session, viewer)
}

func (e *Engine) snapshot(ctx context.Context, session domain.QuizSession, viewer domain.Actor) (domain.Snapshot, error) {
	if session.Status == domain.StatusArchived && !viewer.IsHost() {
		return domain.Snapshot{}, domain.ErrSessionArchived
	}
	quiz, err := e.quiz(ctx, session.QuizID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	participants, err := e.Participants(ctx, session.ID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	now := e.now()
	snap := domain.Snapshot{
		Session:    sessionView(session),
		Quiz:       quizView(quiz),
		ServerTime: now,
	}

	if session.Mode == domain.ModeLive && session.CurrentQuestionID != "" {
		if question, ok := quiz.Question(session.CurrentQuestionID); ok {
			view := questionView(quiz, question)
			snap.CurrentQuestion = &view
			snap.TimeRemainingMs = timeRemaining(session, quiz.TimeLimitFor(question), now)
		}
	}

	board := Rank(participants)
	switch {
	case viewer.IsHost():
		snap.Leaderboard = board
	case e.leaderboardHidden(session, now):
		snap.Leaderboard = []domain.LeaderboardEntry{}
		snap.LeaderboardHidden = true
	default:
		snap.Leaderboard = Top(board, e.policy.LeaderboardTopN)
	}
	return snap, nil
}

func (e *Engine) leaderboardHidden(session domain.QuizSession, now time.Time) bool {
	if session.Mode != domain.ModeHomework || e.policy.HomeworkLeaderboard != LeaderboardAfterClose {
		return false
	}
	if session.Status.Terminal() {
		return false
	}
	return session.WindowEnd == nil || now.Before(*session.WindowEnd)
}

func timeRemaining(session domain.QuizSession, limit time.Duration, now time.Time) *int64 {
	if limit <= 0 || session.CurrentQuestionStartedAt == nil {
		return nil
	}
	until := now
	if session.Status == domain.StatusPaused && session.PausedAt != nil {
		until = *session.PausedAt
	}
	remaining := limit - until.Sub(*session.CurrentQuestionStartedAt)
	if remaining < 0 {
		remaining = 0
	}
	ms := remaining.Milliseconds()
	return &ms
}

func sessionView(s domain.QuizSession) domain.SessionView {
	return domain.SessionView{
		ID:                       s.ID,
		Code:                     s.Code,
		QuizID:                   s.QuizID,
		Mode:                     s.Mode,
		Status:                   s.Status,
		CurrentQuestionID:        s.CurrentQuestionID,
		CurrentQuestionStartedAt: s.CurrentQuestionStartedAt,
		StartedAt:                s.StartedAt,
		FinishedAt:               s.FinishedAt,
		WindowStart:              s.WindowStart,
		WindowEnd:                s.WindowEnd,
		Version:                  s.Version,
	}
}

func quizView(q domain.Quiz) domain.QuizView {
	questions := make([]domain.QuestionView, 0, len(q.Questions))
	for _, question := range q.Questions {
		questions = append(questions, questionView(q, question))
	}
	return domain.QuizView{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		Questions:   questions,
	}
}

func questionView(q domain.Quiz, question domain.Question) domain.QuestionView {
	options := make([]domain.Option, len(question.Options))
	copy(options, question.Options)
	return domain.QuestionView{
		ID:               question.ID,
		Order:            question.Order,
		Type:             question.Type,
		Prompt:           question.Prompt,
		Options:          options,
		Points:           q.PointsFor(question),
		TimeLimitSeconds: int(q.TimeLimitFor(question) / time.Second),
		MediaURL:         question.MediaURL,
	}
}
