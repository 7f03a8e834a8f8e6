package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"live-assessment-service/internal/domain"
)

type client struct {
	t      *testing.T
	server *httptest.Server
}

func (c client) do(method, path string, actor *domain.Actor, body interface{}) (int, []byte) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(headerActorID, actor.ID)
		req.Header.Set(headerActorRole, string(actor.Role))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func decodeInto(t *testing.T, data []byte, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, dst); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var resp errorResponse
	decodeInto(t, data, &resp)
	return resp.Error.Code
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	server := httptest.NewServer(NewRouter(newTestGateway(t), time.Second))
	defer server.Close()
	c := client{t: t, server: server}

	student := &domain.Actor{ID: "stu-1", Role: domain.RoleParticipant}
	status, body := c.do(http.MethodPost, "/api/v1/sessions", student, map[string]any{"quizId": "quiz-1", "mode": "LIVE"})
	if status != http.StatusForbidden || errorCode(t, body) != "FORBIDDEN" {
		t.Fatalf("expected 403 for non-host, got %d %s", status, body)
	}

	status, body = c.do(http.MethodPost, "/api/v1/sessions", &host, map[string]any{"quizId": "quiz-1", "mode": "LIVE"})
	if status != http.StatusCreated {
		t.Fatalf("create: %d %s", status, body)
	}
	var created domain.Snapshot
	decodeInto(t, body, &created)
	code := created.Session.Code
	if len(code) != 6 || created.Session.Status != domain.StatusDraft || created.Session.Version != 1 {
		t.Fatalf("unexpected created session %+v", created.Session)
	}

	status, body = c.do(http.MethodPost, "/api/v1/sessions/"+code+"/commands/start", &host, map[string]any{"version": 1})
	if status != http.StatusOK {
		t.Fatalf("start: %d %s", status, body)
	}
	var started domain.Snapshot
	decodeInto(t, body, &started)
	if started.Session.Status != domain.StatusActive || started.Session.Version != 2 || started.CurrentQuestion == nil {
		t.Fatalf("unexpected started snapshot %+v", started)
	}

	status, body = c.do(http.MethodPost, "/api/v1/sessions/"+code+"/commands/pause", &host, map[string]any{"version": 1})
	if status != http.StatusConflict || errorCode(t, body) != "CONFLICT" {
		t.Fatalf("expected 409 on stale version, got %d %s", status, body)
	}

	status, body = c.do(http.MethodPost, "/api/v1/sessions/"+code+"/join", nil, map[string]any{"displayName": "Ada"})
	if status != http.StatusCreated {
		t.Fatalf("join: %d %s", status, body)
	}
	var joined domain.JoinResult
	decodeInto(t, body, &joined)

	status, body = c.do(http.MethodPost, "/api/v1/sessions/"+code+"/join", nil, map[string]any{"participantId": joined.ParticipantID})
	if status != http.StatusOK {
		t.Fatalf("rejoin: %d %s", status, body)
	}

	status, body = c.do(http.MethodPost, "/api/v1/sessions/"+code+"/submissions", nil, map[string]any{
		"participantId": joined.ParticipantID, "questionId": "q1", "answer": "o2",
	})
	if status != http.StatusOK {
		t.Fatalf("submit: %d %s", status, body)
	}
	var result domain.SubmitResult
	decodeInto(t, body, &result)
	if result.Grade.IsCorrect == nil || !*result.Grade.IsCorrect || result.Participant.Score <= 0 {
		t.Fatalf("unexpected submit result %+v", result)
	}

	status, body = c.do(http.MethodPost, "/api/v1/sessions/"+code+"/submissions", nil, map[string]any{
		"participantId": joined.ParticipantID, "questionId": "q2", "answer": 42,
	})
	if status != http.StatusConflict || errorCode(t, body) != "STALE_QUESTION" {
		t.Fatalf("expected stale question, got %d %s", status, body)
	}

	viewer := &domain.Actor{ID: joined.ParticipantID, Role: domain.RoleParticipant}
	status, body = c.do(http.MethodGet, "/api/v1/sessions/"+strings.ToLower(code), viewer, nil)
	if status != http.StatusOK {
		t.Fatalf("snapshot: %d %s", status, body)
	}
	if bytes.Contains(body, []byte(`"answer"`)) || bytes.Contains(body, []byte(`"values"`)) {
		t.Fatalf("snapshot leaked answer key: %s", body)
	}
	var snap domain.Snapshot
	decodeInto(t, body, &snap)
	if len(snap.Leaderboard) != 1 || snap.Leaderboard[0].ParticipantID != joined.ParticipantID {
		t.Fatalf("unexpected leaderboard %+v", snap.Leaderboard)
	}
}

func TestHTTPErrorMapping(t *testing.T) {
	gateway := newTestGateway(t)
	code := startLiveSession(t, gateway)
	server := httptest.NewServer(NewRouter(gateway, time.Second))
	defer server.Close()

	cases := []struct {
		name       string
		method     string
		path       string
		actor      *domain.Actor
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"unknown session", http.MethodGet, "/api/v1/sessions/NOPE99", nil, nil, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"unknown quiz", http.MethodPost, "/api/v1/sessions", &host, map[string]any{"quizId": "nope", "mode": "LIVE"}, http.StatusNotFound, "QUIZ_NOT_FOUND"},
		{"bad mode", http.MethodPost, "/api/v1/sessions", &host, map[string]any{"quizId": "quiz-1", "mode": "EXAM"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", http.MethodPost, "/api/v1/sessions/" + code + "/join", nil, map[string]any{"nickname": "x"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing participant", http.MethodPost, "/api/v1/sessions/" + code + "/submissions", nil, map[string]any{"questionId": "q1", "answer": "o1"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown participant", http.MethodPost, "/api/v1/sessions/" + code + "/submissions", nil, map[string]any{"participantId": "ghost", "questionId": "q1", "answer": "o1"}, http.StatusNotFound, "PARTICIPANT_NOT_FOUND"},
		{"unknown command", http.MethodPost, "/api/v1/sessions/" + code + "/commands/explode", &host, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid transition", http.MethodPost, "/api/v1/sessions/" + code + "/commands/archive", &host, nil, http.StatusConflict, "INVALID_TRANSITION"},
		{"command needs host", http.MethodPost, "/api/v1/sessions/" + code + "/commands/pause", nil, nil, http.StatusForbidden, "FORBIDDEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := client{t: t, server: server}
			status, body := c.do(tc.method, tc.path, tc.actor, tc.body)
			if status != tc.wantStatus || errorCode(t, body) != tc.wantCode {
				t.Fatalf("expected %d %s, got %d %s", tc.wantStatus, tc.wantCode, status, body)
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	server := httptest.NewServer(NewRouter(newTestGateway(t), time.Second))
	defer server.Close()
	c := client{t: t, server: server}

	if status, body := c.do(http.MethodGet, "/healthz", nil, nil); status != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz: %d %s", status, body)
	}
	status, body := c.do(http.MethodGet, "/metrics", nil, nil)
	if status != http.StatusOK || !bytes.Contains(body, []byte("go_goroutines")) {
		t.Fatalf("metrics: %d", status)
	}
}

func TestStatusForFallsBackToInternal(t *testing.T) {
	if statusFor(io.ErrUnexpectedEOF) != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unknown errors")
	}
	if statusFor(domain.ErrAttemptLimitReached) != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for attempt limit")
	}
}
