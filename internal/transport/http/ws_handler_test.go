package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"live-assessment-service/internal/app"
	"live-assessment-service/internal/domain"
	"live-assessment-service/internal/infra/memory"
)

func TestWebSocketAnswerFlow(t *testing.T) {
	gateway := newTestGateway(t)
	code := startLiveSession(t, gateway)
	joined, err := gateway.Join(context.Background(), code, app.JoinRequest{DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	server := httptest.NewServer(NewRouter(gateway, 50*time.Millisecond))
	defer server.Close()

	u := wsURL(server, "/ws/sessions/"+code+"?actorId="+joined.ParticipantID)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The current state arrives first.
	_, payload := readNext(conn, t, "snapshot")
	current, _ := payload["currentQuestion"].(map[string]any)
	if current["id"] != "q1" {
		t.Fatalf("expected q1 to be current, got %v", payload["currentQuestion"])
	}

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId": "q1",
			"answer":     "o2",
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	// Expect answerResult and a snapshot carrying the new score.
	answerSeen := false
	scoreSeen := false
	for i := 0; i < 5 && !(answerSeen && scoreSeen); i++ {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case "answerResult":
			grade, _ := payload["grade"].(map[string]any)
			if grade["isCorrect"] != true {
				t.Fatalf("expected correct grade, got %v", payload)
			}
			answerSeen = true
		case "snapshot":
			board, _ := payload["leaderboard"].([]any)
			if len(board) == 1 {
				entry, _ := board[0].(map[string]any)
				if score, _ := entry["score"].(float64); score > 0 {
					scoreSeen = true
				}
			}
		case "error":
			t.Fatalf("unexpected error message: %v", payload)
		}
	}
	if !answerSeen || !scoreSeen {
		t.Fatalf("expected answerResult and scored snapshot, got answerResult=%v snapshot=%v", answerSeen, scoreSeen)
	}

	// A stale answer comes back as an error frame without closing the socket.
	stale := map[string]any{"type": "answer", "payload": map[string]any{"questionId": "q2", "answer": 42}}
	if err := conn.WriteJSON(stale); err != nil {
		t.Fatalf("write stale answer: %v", err)
	}
	_, payload = readNext(conn, t, "error")
	if payload["code"] != "STALE_QUESTION" {
		t.Fatalf("expected STALE_QUESTION, got %v", payload)
	}
}

func TestWebSocketPushesHostTransitions(t *testing.T) {
	gateway := newTestGateway(t)
	code := startLiveSession(t, gateway)

	server := httptest.NewServer(NewRouter(gateway, 20*time.Millisecond))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/sessions/"+code), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(conn, t, "snapshot")

	if _, err := gateway.Command(context.Background(), code, host, app.CmdAdvance, nil); err != nil {
		t.Fatalf("advance: %v", err)
	}
	_, payload := readNext(conn, t, "snapshot")
	session, _ := payload["session"].(map[string]any)
	if session["currentQuestionId"] != "q2" {
		t.Fatalf("expected pushed snapshot on q2, got %v", session)
	}
}

func TestWebSocketRejectsUnknownSession(t *testing.T) {
	server := httptest.NewServer(NewRouter(newTestGateway(t), time.Second))
	defer server.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/sessions/ZZZZZZ"), nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 response, got %+v", resp)
	}
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

var host = domain.Actor{ID: "teacher-1", Role: domain.RoleHost}

func newTestGateway(t *testing.T) *app.Gateway {
	t.Helper()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	engine := app.NewEngine(memory.NewStore(), quizzes, app.DefaultPolicy())
	t.Cleanup(engine.Close)
	return app.NewGateway(engine)
}

// startLiveSession creates and starts a LIVE session, returning its join code.
func startLiveSession(t *testing.T, gateway *app.Gateway) string {
	t.Helper()
	ctx := context.Background()
	snap, err := gateway.CreateSession(ctx, host, app.CreateSessionRequest{QuizID: "quiz-1", Mode: domain.ModeLive})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := gateway.Command(ctx, snap.Session.Code, host, app.CmdStart, nil); err != nil {
		t.Fatalf("start session: %v", err)
	}
	return snap.Session.Code
}

func sampleQuiz() map[string]domain.Quiz {
	answer := 42.0
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Order:  1,
					Type:   domain.MultipleChoice,
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "5"},
					},
					Answer:           domain.AnswerKey{Values: []string{"o2"}},
					Points:           10,
					TimeLimitSeconds: 30,
				},
				{
					ID:     "q2",
					Order:  2,
					Type:   domain.Numeric,
					Prompt: "6 x 7?",
					Answer: domain.AnswerKey{Number: &answer},
					Points: 5,
				},
			},
		},
	}
}
