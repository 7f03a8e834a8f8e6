package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"live-assessment-service/internal/domain"
	"live-assessment-service/internal/metrics"
)

const maxDisplayNameLength = 64

// JoinRequest carries a join attempt. ParticipantID is the identity token issued
// by an earlier join; presenting it for the same session resumes that identity.
type JoinRequest struct {
	DisplayName       string
	ExternalStudentID string
	ParticipantID     string
}

// Join registers a participant, or resumes one when the caller presents a
// previously issued participant id (or external student id) for this session.
func (e *Engine) Join(ctx context.Context, sessionID string, req JoinRequest) (domain.JoinResult, error) {
	session, err := e.Session(ctx, sessionID)
	if err != nil {
		return domain.JoinResult{}, err
	}
	if session.Status == domain.StatusArchived {
		return domain.JoinResult{}, domain.ErrSessionArchived
	}

	if req.ParticipantID != "" {
		existing, err := e.participant(ctx, req.ParticipantID)
		switch {
		case err == nil && existing.SessionID == session.ID:
			return e.resume(ctx, existing)
		case err != nil && !errors.Is(err, domain.ErrParticipantNotFound):
			return domain.JoinResult{}, err
		}
	}

	externalID := strings.TrimSpace(req.ExternalStudentID)
	if externalID != "" {
		unlock := e.joins.Lock(session.ID + "/" + externalID)
		defer unlock()
		existing, err := storeCall(ctx, e.policy.StoreRetries, func() (domain.Participant, error) {
			return e.store.FindParticipantByExternalID(ctx, session.ID, externalID)
		})
		switch {
		case err == nil:
			return e.resume(ctx, existing)
		case !errors.Is(err, domain.ErrParticipantNotFound):
			return domain.JoinResult{}, err
		}
	}

	if session.Status.Terminal() {
		return domain.JoinResult{}, domain.ErrSessionNotActive
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" || utf8.RuneCountInString(name) > maxDisplayNameLength {
		return domain.JoinResult{}, fmt.Errorf("%w: display name must be 1-%d characters", domain.ErrValidation, maxDisplayNameLength)
	}

	now := e.now()
	participant := domain.Participant{
		ID:                uuid.NewString(),
		SessionID:         session.ID,
		DisplayName:       name,
		ExternalStudentID: externalID,
		JoinedAt:          now,
		LastSeenAt:        now,
	}
	err = storeExec(ctx, e.policy.StoreRetries, func() error {
		return e.store.CreateParticipant(ctx, participant)
	})
	if errors.Is(err, domain.ErrExternalIDTaken) {
		// Another instance joined the same student first.
		existing, err := storeCall(ctx, e.policy.StoreRetries, func() (domain.Participant, error) {
			return e.store.FindParticipantByExternalID(ctx, session.ID, externalID)
		})
		if err != nil {
			return domain.JoinResult{}, err
		}
		return e.resume(ctx, existing)
	}
	if err != nil {
		return domain.JoinResult{}, err
	}
	metrics.ObserveJoin(false)
	return joinResult(participant, false), nil
}

// Touch records that the participant interacted with the session. It only
// feeds observability, never scoring.
func (e *Engine) Touch(ctx context.Context, participantID string) error {
	now := e.now()
	return storeExec(ctx, e.policy.StoreRetries, func() error {
		return e.store.TouchParticipant(ctx, participantID, now)
	})
}

// Participants lists everyone who joined the session.
func (e *Engine) Participants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	return storeCall(ctx, e.policy.StoreRetries, func() ([]domain.Participant, error) {
		return e.store.ListParticipants(ctx, sessionID)
	})
}

func (e *Engine) resume(ctx context.Context, p domain.Participant) (domain.JoinResult, error) {
	if err := e.Touch(ctx, p.ID); err != nil {
		return domain.JoinResult{}, err
	}
	metrics.ObserveJoin(true)
	return joinResult(p, true), nil
}

func (e *Engine) participant(ctx context.Context, id string) (domain.Participant, error) {
	return storeCall(ctx, e.policy.StoreRetries, func() (domain.Participant, error) {
		return e.store.GetParticipant(ctx, id)
	})
}

func joinResult(p domain.Participant, resumed bool) domain.JoinResult {
	return domain.JoinResult{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		SessionID:     p.SessionID,
		JoinedAt:      p.JoinedAt,
		Resumed:       resumed,
	}
}
