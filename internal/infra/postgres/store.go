package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"live-assessment-service/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	externalIDIndex = "participants_external_idx"
)

// Store is a Postgres implementation of app.Store built on bun.
//
// Session updates compare the version column. CommitSubmission runs in one
// transaction that holds a share lock on the session row, so an archive waits
// for in-flight commits and later commits observe it, and a row lock on the
// participant, so aggregates are updated serially.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateSession(ctx context.Context, session domain.QuizSession) error {
	row := toSessionRow(session)
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	if pgCode(err) == uniqueViolation {
		return domain.ErrJoinCodeTaken
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.QuizSession, error) {
	return getSession(ctx, s.db, "id = ?", id)
}

func (s *Store) GetSessionByCode(ctx context.Context, code string) (domain.QuizSession, error) {
	return getSession(ctx, s.db, "code = ?", code)
}

func (s *Store) UpdateSession(ctx context.Context, session domain.QuizSession, expectedVersion int64) error {
	row := toSessionRow(session)
	res, err := s.db.NewUpdate().
		Model(&row).
		WherePK().
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetSession(ctx, session.ID); err != nil {
		return err
	}
	return domain.ErrConflict
}

func (s *Store) CreateParticipant(ctx context.Context, p domain.Participant) error {
	row := toParticipantRow(p)
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	switch {
	case pgCode(err) == foreignKeyViolation:
		return domain.ErrSessionNotFound
	case pgCode(err) == uniqueViolation && pgConstraint(err) == externalIDIndex:
		return domain.ErrExternalIDTaken
	}
	return err
}

func (s *Store) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	return getParticipant(ctx, s.db, "id = ?", id)
}

func (s *Store) FindParticipantByExternalID(ctx context.Context, sessionID, externalID string) (domain.Participant, error) {
	var row participantRow
	err := s.db.NewSelect().
		Model(&row).
		Where("session_id = ?", sessionID).
		Where("external_student_id = ?", externalID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	var rows []participantRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("session_id = ?", sessionID).
		Order("joined_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Participant, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) TouchParticipant(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*participantRow)(nil)).
		Set("last_seen_at = ?", at).
		Where("id = ?", id).
		Where("last_seen_at < ?", at).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	exists, err := s.db.NewSelect().Model((*participantRow)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *Store) LatestResponse(ctx context.Context, participantID, questionID string) (domain.Response, bool, error) {
	var row responseRow
	err := s.db.NewSelect().
		Model(&row).
		Where("participant_id = ?", participantID).
		Where("question_id = ?", questionID).
		Order("attempt DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Response{}, false, nil
	}
	if err != nil {
		return domain.Response{}, false, err
	}
	return row.toDomain(), true, nil
}

func (s *Store) ListResponses(ctx context.Context, participantID string) ([]domain.Response, error) {
	var rows []responseRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("participant_id = ?", participantID).
		Order("submitted_at ASC", "attempt ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Response, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) CommitSubmission(ctx context.Context, c domain.SubmissionCommit) (domain.Participant, error) {
	resp := c.Response
	var updated domain.Participant
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var session sessionRow
		err := tx.NewSelect().Model(&session).Where("id = ?", resp.SessionID).For("SHARE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if err := session.toDomain().AcceptsAnswerFor(resp.QuestionID); err != nil {
			return err
		}

		var participant participantRow
		err = tx.NewSelect().Model(&participant).Where("id = ?", resp.ParticipantID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && participant.SessionID != session.ID) {
			return domain.ErrParticipantNotFound
		}
		if err != nil {
			return err
		}

		var latest int
		err = tx.NewSelect().
			Model((*responseRow)(nil)).
			ColumnExpr("COALESCE(MAX(attempt), 0)").
			Where("participant_id = ?", resp.ParticipantID).
			Where("question_id = ?", resp.QuestionID).
			Scan(ctx, &latest)
		if err != nil {
			return err
		}
		if latest != c.PreviousAttempt {
			return domain.ErrConflict
		}

		row := toResponseRow(resp)
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			if pgCode(err) == uniqueViolation {
				return domain.ErrConflict
			}
			return fmt.Errorf("insert response: %w", err)
		}

		participant.Score = domain.RoundScore(participant.Score + c.Delta.Score)
		participant.ResponseCount += c.Delta.Responded
		participant.CorrectCount += c.Delta.Correct
		if resp.SubmittedAt.After(participant.LastSeenAt) {
			participant.LastSeenAt = resp.SubmittedAt
		}
		if _, err := tx.NewUpdate().Model(&participant).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update participant: %w", err)
		}
		updated = participant.toDomain()
		return nil
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return updated, nil
}

func getSession(ctx context.Context, db bun.IDB, where string, arg interface{}) (domain.QuizSession, error) {
	var row sessionRow
	err := db.NewSelect().Model(&row).Where(where, arg).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, err
	}
	return row.toDomain(), nil
}

func getParticipant(ctx context.Context, db bun.IDB, where string, arg interface{}) (domain.Participant, error) {
	var row participantRow
	err := db.NewSelect().Model(&row).Where(where, arg).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return row.toDomain(), nil
}

// pgCode returns the SQLSTATE of a Postgres error, or "".
func pgCode(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}

// pgConstraint returns the constraint name of a Postgres error, or "".
func pgConstraint(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('n')
	}
	return ""
}
