package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"live-assessment-service/internal/app"
	"live-assessment-service/internal/domain"
)

// SessionHandler serves the REST surface of the gateway.
type SessionHandler struct {
	gateway  *app.Gateway
	validate *validator.Validate
}

func NewSessionHandler(gateway *app.Gateway) *SessionHandler {
	return &SessionHandler{gateway: gateway, validate: validator.New()}
}

type createSessionRequest struct {
	QuizID      string     `json:"quizId" validate:"required,max=128"`
	Mode        string     `json:"mode" validate:"required,oneof=LIVE HOMEWORK"`
	WindowStart *time.Time `json:"windowStart"`
	WindowEnd   *time.Time `json:"windowEnd"`
}

type joinRequest struct {
	DisplayName       string `json:"displayName" validate:"max=256"`
	ExternalStudentID string `json:"externalStudentId" validate:"omitempty,max=128"`
	ParticipantID     string `json:"participantId" validate:"omitempty,max=64"`
}

type submitRequest struct {
	ParticipantID string          `json:"participantId" validate:"required,max=64"`
	QuestionID    string          `json:"questionId" validate:"required,max=128"`
	Answer        json.RawMessage `json:"answer"`
}

type commandRequest struct {
	Version *int64 `json:"version" validate:"omitempty,min=1"`
}

// CreateSession handles POST /api/v1/sessions.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := h.decode(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := h.gateway.CreateSession(r.Context(), actorFromRequest(r), app.CreateSessionRequest{
		QuizID:      req.QuizID,
		Mode:        domain.Mode(req.Mode),
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// Snapshot handles GET /api/v1/sessions/{code}.
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.gateway.Snapshot(r.Context(), chi.URLParam(r, "code"), actorFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Join handles POST /api/v1/sessions/{code}/join.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := h.decode(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.gateway.Join(r.Context(), chi.URLParam(r, "code"), app.JoinRequest{
		DisplayName:       req.DisplayName,
		ExternalStudentID: req.ExternalStudentID,
		ParticipantID:     req.ParticipantID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// Submit handles POST /api/v1/sessions/{code}/submissions.
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := h.decode(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.gateway.Submit(r.Context(), chi.URLParam(r, "code"), app.SubmitRequest{
		ParticipantID: req.ParticipantID,
		QuestionID:    req.QuestionID,
		Answer:        domain.Answer(req.Answer),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Command handles POST /api/v1/sessions/{code}/commands/{command}.
func (h *SessionHandler) Command(w http.ResponseWriter, r *http.Request) {
	cmd, err := app.ParseCommand(chi.URLParam(r, "command"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req commandRequest
	if err := h.decode(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := h.gateway.Command(r.Context(), chi.URLParam(r, "code"), actorFromRequest(r), cmd, req.Version)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// decode reads a JSON body into dst and validates it. optional bodies may be
// empty.
func (h *SessionHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !(optional && errors.Is(err, io.EOF)) {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, describe(err))
	}
	return nil
}

func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
