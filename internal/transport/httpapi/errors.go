package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
)

// apiError задаёт JSON-конверт ошибки.
type apiError struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func errorBody(r *http.Request, code, message string) []byte {
	body, err := json.Marshal(apiError{
		Error:     code,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		return []byte(`{"error":"internal","message":"failed to encode error"}`)
	}
	return body
}

// classify сопоставляет доменную ошибку HTTP-статусу и коду.
func classify(err error) (int, string) {
	var transitionErr *domain.TransitionError
	switch {
	case errors.Is(err, domain.ErrListingForbidden):
		return http.StatusForbidden, "forbidden"
	case domain.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &transitionErr):
		return http.StatusConflict, "invalid_transition"
	case domain.IsConflict(err):
		return http.StatusConflict, "conflict"
	case errors.Is(err, idempotency.ErrRequestInProgress):
		return http.StatusConflict, "request_in_progress"
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusUnprocessableEntity, "idempotency_key_reused"
	case domain.IsInvalidInput(err):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// errorResponse строит ответ на ошибку. Текст внутренних ошибок наружу не отдаётся.
func errorResponse(r *http.Request, logger *log.Entry, err error) (int, []byte) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		message = "internal error"
	}
	return status, errorBody(r, code, message)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, logger *log.Entry, err error) {
	status, body := errorResponse(r, logger, err)
	writeJSON(w, status, body)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody(r, "invalid_request", message))
}
