package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"live-assessment-service/internal/app"
	"live-assessment-service/internal/domain"
)

// WSHandler pushes session snapshots over a websocket. It polls the gateway
// every interval and sends a snapshot only when its content changed, so every
// instance serves the same state the REST snapshot does. Participants may also
// submit answers over the socket.
type WSHandler struct {
	gateway  *app.Gateway
	interval time.Duration
	upgrader websocket.Upgrader
}

func NewWSHandler(gateway *app.Gateway, interval time.Duration) *WSHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &WSHandler{
		gateway:  gateway,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string          `json:"questionId"`
	Answer     json.RawMessage `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: domain.ErrorCode(err), Message: err.Error()}}
}

// ServeWS handles GET /ws/sessions/{code}?actorId=...&role=...
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	viewer := actorFromRequest(r)

	// Resolve before upgrading so unknown codes get a plain HTTP error.
	if _, err := h.gateway.Snapshot(r.Context(), code, viewer); err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	refresh := make(chan struct{}, 1)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pollerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		failed := false
		for msg := range send {
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// Closing fails the pending read; keep draining until the reader quits.
				failed = true
				conn.Close()
			}
		}
	}()

	go func() {
		defer close(pollerDone)
		h.poll(ctx, code, viewer, send, refresh, closeSignals)
		// Unblock the reader once the session is gone for this viewer.
		_ = conn.SetReadDeadline(time.Now())
	}()

	enqueue := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-pollerDone:
			return false
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "VALIDATION_ERROR", Message: "invalid answer payload"}})
				continue
			}
			result, err := h.gateway.Submit(ctx, code, app.SubmitRequest{
				ParticipantID: viewer.ID,
				QuestionID:    payload.QuestionID,
				Answer:        domain.Answer(payload.Answer),
			})
			if err != nil {
				enqueue(errorMessage(err))
				continue
			}
			enqueue(outboundMessage[any]{Type: "answerResult", Payload: result})
			select {
			case refresh <- struct{}{}:
			default:
			}
		case "snapshot":
			select {
			case refresh <- struct{}{}:
			default:
			}
		default:
			enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "VALIDATION_ERROR", Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-pollerDone
	close(send)
	<-writerDone
}

// poll sends the first snapshot immediately and later ones when they differ.
// It stops when the session becomes unreadable for the viewer.
func (h *WSHandler) poll(ctx context.Context, code string, viewer domain.Actor, send chan<- outboundMessage[any], refresh <-chan struct{}, done <-chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	for {
		snap, err := h.gateway.Snapshot(ctx, code, viewer)
		var msg *outboundMessage[any]
		switch {
		case err != nil:
			m := errorMessage(err)
			msg = &m
		default:
			if key := fingerprint(snap); !bytes.Equal(key, last) {
				last = key
				msg = &outboundMessage[any]{Type: "snapshot", Payload: snap}
			}
		}
		if msg != nil {
			select {
			case send <- *msg:
			case <-done:
				return
			}
		}
		if err != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
			return
		}

		select {
		case <-ticker.C:
		case <-refresh:
		case <-done:
			return
		}
	}
}

// fingerprint ignores the fields that change on every read.
func fingerprint(snap domain.Snapshot) []byte {
	snap.ServerTime = time.Time{}
	snap.TimeRemainingMs = nil
	key, err := json.Marshal(snap)
	if err != nil {
		return nil
	}
	return key
}
