package http

import (
	"net/http"
	"strings"

	"live-assessment-service/internal/domain"
)

// Identity is verified upstream (gateway or auth proxy); this service trusts
// the asserted headers. Websocket clients may pass the same values as query
// parameters because browsers cannot set headers on the upgrade request.
const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"
)

func actorFromRequest(r *http.Request) domain.Actor {
	id := r.Header.Get(headerActorID)
	role := r.Header.Get(headerActorRole)
	if id == "" {
		id = r.URL.Query().Get("actorId")
	}
	if role == "" {
		role = r.URL.Query().Get("role")
	}
	actor := domain.Actor{ID: strings.TrimSpace(id), Role: domain.RoleParticipant}
	if strings.EqualFold(strings.TrimSpace(role), string(domain.RoleHost)) {
		actor.Role = domain.RoleHost
	}
	return actor
}
