package app

import (
	"context"

	"live-assessment-service/internal/domain"
)

// Gateway is the boundary API used by transports. It resolves join codes,
// enforces the caller-asserted host role and touches participants on every
// interaction. Identity verification happens upstream.
type Gateway struct {
	engine *Engine
}

func NewGateway(engine *Engine) *Gateway {
	return &Gateway{engine: engine}
}

// Engine exposes the underlying engine.
func (g *Gateway) Engine() *Engine {
	return g.engine
}

// SubmitRequest is a participant's answer to one question.
type SubmitRequest struct {
	ParticipantID string
	QuestionID    string
	Answer        domain.Answer
}

// Snapshot returns the current session state for code.
func (g *Gateway) Snapshot(ctx context.Context, code string, viewer domain.Actor) (domain.Snapshot, error) {
	session, err := g.engine.SessionByCode(ctx, code)
	if err != nil {
		return domain.Snapshot{}, err
	}
	g.touch(ctx, viewer)
	return g.engine.snapshot(ctx, session, viewer)
}

// Join registers or resumes a participant in the session behind code.
func (g *Gateway) Join(ctx context.Context, code string, req JoinRequest) (domain.JoinResult, error) {
	session, err := g.engine.SessionByCode(ctx, code)
	if err != nil {
		return domain.JoinResult{}, err
	}
	return g.engine.Join(ctx, session.ID, req)
}

// Submit touches the participant, then forwards the submission to the engine.
// Rejected submissions still count as an interaction.
func (g *Gateway) Submit(ctx context.Context, code string, req SubmitRequest) (domain.SubmitResult, error) {
	session, err := g.engine.SessionByCode(ctx, code)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	g.touch(ctx, domain.Actor{ID: req.ParticipantID, Role: domain.RoleParticipant})
	return g.engine.Submit(ctx, session.ID, req.ParticipantID, req.QuestionID, req.Answer)
}

// CreateSession creates a DRAFT session hosted by actor.
func (g *Gateway) CreateSession(ctx context.Context, actor domain.Actor, req CreateSessionRequest) (domain.Snapshot, error) {
	if !actor.IsHost() {
		return domain.Snapshot{}, domain.ErrForbidden
	}
	session, err := g.engine.CreateSession(ctx, actor.ID, req)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return g.engine.snapshot(ctx, session, actor)
}

// Command applies a host lifecycle command and returns the updated snapshot.
func (g *Gateway) Command(ctx context.Context, code string, actor domain.Actor, cmd Command, expectedVersion *int64) (domain.Snapshot, error) {
	if !actor.IsHost() {
		return domain.Snapshot{}, domain.ErrForbidden
	}
	session, err := g.engine.SessionByCode(ctx, code)
	if err != nil {
		return domain.Snapshot{}, err
	}
	updated, err := g.engine.Apply(ctx, session.ID, cmd, expectedVersion)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return g.engine.snapshot(ctx, updated, actor)
}

func (g *Gateway) touch(ctx context.Context, viewer domain.Actor) {
	if viewer.Role != domain.RoleParticipant || viewer.ID == "" {
		return
	}
	// lastSeenAt is observability only; a failed touch never fails the read.
	_ = g.engine.Touch(ctx, viewer.ID)
}
