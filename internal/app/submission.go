package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"live-assessment-service/internal/domain"
	"live-assessment-service/internal/grading"
	"live-assessment-service/internal/metrics"
)

// maxCommitRaces bounds how often a submission re-reads the latest attempt
// after a concurrent commit for the same pair.
const maxCommitRaces = 3

// Submit validates a submission against the session, grades it and commits it
// with last-attempt-wins aggregation.
func (e *Engine) Submit(ctx context.Context, sessionID, participantID, questionID string, answer domain.Answer) (domain.SubmitResult, error) {
	started := time.Now()
	mode, result, err := e.submit(ctx, sessionID, participantID, questionID, answer)
	metrics.ObserveSubmission(mode, err, started)
	return result, err
}

func (e *Engine) submit(ctx context.Context, sessionID, participantID, questionID string, answer domain.Answer) (domain.Mode, domain.SubmitResult, error) {
	now := e.now()

	session, err := e.Session(ctx, sessionID)
	if err != nil {
		return "", domain.SubmitResult{}, err
	}
	if err := session.AcceptsSubmissions(); err != nil {
		return session.Mode, domain.SubmitResult{}, err
	}

	participant, err := e.participant(ctx, participantID)
	if err != nil {
		return session.Mode, domain.SubmitResult{}, err
	}
	if participant.SessionID != session.ID {
		return session.Mode, domain.SubmitResult{}, domain.ErrParticipantNotFound
	}

	quiz, err := e.quiz(ctx, session.QuizID)
	if err != nil {
		return session.Mode, domain.SubmitResult{}, err
	}
	question, ok := quiz.Question(questionID)
	if !ok {
		return session.Mode, domain.SubmitResult{}, domain.ErrUnknownQuestion
	}

	switch session.Mode {
	case domain.ModeLive:
		if questionID != session.CurrentQuestionID {
			return session.Mode, domain.SubmitResult{}, domain.ErrStaleQuestion
		}
	case domain.ModeHomework:
		if !session.WindowOpen(now) {
			return session.Mode, domain.SubmitResult{}, domain.ErrWindowClosed
		}
	}

	if err := grading.Validate(question, answer); err != nil {
		return session.Mode, domain.SubmitResult{}, err
	}

	unlock := e.pairs.Lock(participantID + "/" + questionID)
	defer unlock()

	for race := 0; race < maxCommitRaces; race++ {
		previous, hasPrevious, err := storeCall3(ctx, e.policy.StoreRetries, func() (domain.Response, bool, error) {
			return e.store.LatestResponse(ctx, participantID, questionID)
		})
		if err != nil {
			return session.Mode, domain.SubmitResult{}, err
		}
		if limit := e.policy.maxAttempts(session.Mode); limit > 0 && hasPrevious && previous.Attempt >= limit {
			return session.Mode, domain.SubmitResult{}, domain.ErrAttemptLimitReached
		}

		var verdict domain.Verdict
		if hasPrevious && grading.SameAnswer(previous.Answer, answer) {
			// Identical resubmission (double click): keep the active verdict so the
			// aggregate cannot drift with elapsed time.
			verdict = verdictOf(previous)
		} else {
			verdict = e.grade(session, quiz, question, answer, now)
		}

		response := domain.Response{
			ID:            uuid.NewString(),
			SessionID:     session.ID,
			ParticipantID: participantID,
			QuestionID:    questionID,
			Attempt:       previous.Attempt + 1,
			Answer:        append(domain.Answer(nil), answer...),
			Score:         verdict.Score,
			MaxScore:      verdict.MaxScore,
			IsCorrect:     verdict.IsCorrect,
			LatencyMs:     latency(session, now),
			SubmittedAt:   now,
		}
		commit := domain.SubmissionCommit{
			Response:        response,
			PreviousAttempt: previous.Attempt,
			Delta:           deltaFor(previous, hasPrevious, response),
		}

		updated, err := storeCall(ctx, e.policy.StoreRetries, func() (domain.Participant, error) {
			return e.store.CommitSubmission(ctx, commit)
		})
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return session.Mode, domain.SubmitResult{}, err
		}

		metrics.ObserveVerdict(question.Type, verdict)
		return session.Mode, domain.SubmitResult{
			Response: domain.ResponseView{
				ID:        response.ID,
				Score:     response.Score,
				MaxScore:  response.MaxScore,
				IsCorrect: response.IsCorrect,
				Attempt:   response.Attempt,
			},
			Participant: domain.ParticipantView{
				ID:            updated.ID,
				Score:         updated.Score,
				ResponseCount: updated.ResponseCount,
				Accuracy:      updated.Accuracy(),
			},
			Grade: verdict,
		}, nil
	}
	return session.Mode, domain.SubmitResult{}, domain.ErrConflict
}

// grade runs the grading engine and, for LIVE sessions, the speed weighting.
func (e *Engine) grade(session domain.QuizSession, quiz domain.Quiz, question domain.Question, answer domain.Answer, now time.Time) domain.Verdict {
	verdict := grading.Grade(question, quiz.PointsFor(question), answer, e.policy.Grading)
	if session.Mode != domain.ModeLive || session.CurrentQuestionStartedAt == nil {
		return verdict
	}
	elapsed := now.Sub(*session.CurrentQuestionStartedAt)
	return grading.ApplySpeed(verdict, e.policy.Speed.Factor(elapsed, quiz.TimeLimitFor(question)))
}

// deltaFor removes the previous active attempt's contribution and adds the new one.
func deltaFor(previous domain.Response, hasPrevious bool, next domain.Response) domain.AggregateDelta {
	delta := domain.AggregateDelta{Score: next.Score}
	if next.Correct() {
		delta.Correct++
	}
	if !hasPrevious {
		delta.Responded = 1
		return delta
	}
	delta.Score -= previous.Score
	if previous.Correct() {
		delta.Correct--
	}
	return delta
}

func verdictOf(r domain.Response) domain.Verdict {
	return domain.Verdict{
		Score:          r.Score,
		MaxScore:       r.MaxScore,
		IsCorrect:      r.IsCorrect,
		RequiresManual: r.IsCorrect == nil,
	}
}

func latency(session domain.QuizSession, now time.Time) *int64 {
	if session.Mode != domain.ModeLive || session.CurrentQuestionStartedAt == nil {
		return nil
	}
	ms := now.Sub(*session.CurrentQuestionStartedAt).Milliseconds()
	return &ms
}

// storeCall3 adapts storeCall to lookups returning a found flag.
func storeCall3[T any](ctx context.Context, retries int, op func() (T, bool, error)) (T, bool, error) {
	type found struct {
		value T
		ok    bool
	}
	res, err := storeCall(ctx, retries, func() (found, error) {
		value, ok, err := op()
		return found{value, ok}, err
	})
	return res.value, res.ok, err
}
