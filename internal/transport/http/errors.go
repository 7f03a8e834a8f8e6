package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"live-assessment-service/internal/domain"
)

var statusByError = []struct {
	err    error
	status int
}{
	{domain.ErrSessionNotFound, http.StatusNotFound},
	{domain.ErrQuizNotFound, http.StatusNotFound},
	{domain.ErrParticipantNotFound, http.StatusNotFound},
	{domain.ErrUnknownQuestion, http.StatusNotFound},
	{domain.ErrSessionArchived, http.StatusGone},
	{domain.ErrSessionNotActive, http.StatusConflict},
	{domain.ErrStaleQuestion, http.StatusConflict},
	{domain.ErrWindowClosed, http.StatusConflict},
	{domain.ErrInvalidTransition, http.StatusConflict},
	{domain.ErrConflict, http.StatusConflict},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrValidation, http.StatusBadRequest},
	{domain.ErrAttemptLimitReached, http.StatusTooManyRequests},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, entry := range statusByError {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("request %s failed: %v", middleware.GetReqID(r.Context()), err)
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: apiError{
		Code:      domain.ErrorCode(err),
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	}})
}
