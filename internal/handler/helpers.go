package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

const (
	defaultPageSize = 10
	maxPageSize     = 100

	// nginx's "client closed request"; not a registered status.
	statusClientClosedRequest = 499
)

type errorResponse struct {
	Error     string              `json:"error"`
	Timestamp string              `json:"timestamp"`
	Details   []domain.FieldError `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorDetails(w, status, msg, nil)
}

func writeErrorDetails(w http.ResponseWriter, status int, msg string, details []domain.FieldError) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Details:   details,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeBody reads a JSON body into dst and runs struct validation on it.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var ve *domain.ErrValidation
		if errors.As(err, &ve) {
			return ve
		}
		return &domain.ErrValidation{Field: "body", Message: "invalid request body"}
	}
	return validateStruct(dst)
}

// parsePage reads 0-based ?page= and ?size=. Invalid values fall back to the defaults.
func parsePage(r *http.Request) domain.Page {
	p := domain.Page{Number: 0, Size: defaultPageSize}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Number = n
		}
	}
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Size = min(n, maxPageSize)
		}
	}
	return p
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, &domain.ErrValidation{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	switch kind := domain.KindOf(err); kind {
	case domain.KindNotFound:
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case domain.KindConflict:
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case domain.KindInvalidInput:
		logger.Debug("invalid input", zap.String("error", err.Error()))
		var ve *domain.ErrValidation
		if errors.As(err, &ve) && len(ve.Details) > 0 {
			writeErrorDetails(w, http.StatusBadRequest, "validation failed", ve.Details)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.KindNegativeBalance:
		logger.Warn("negative balance rejected", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.KindUnauthorized:
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case domain.KindForbidden:
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case domain.KindUnavailable:
		logger.Error("dependency unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case domain.KindTimeout:
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	case domain.KindCanceled:
		logger.Info("request canceled by client", zap.Error(err))
		writeError(w, statusClientClosedRequest, "request canceled")
	case domain.KindInternal:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		logger.Error("unknown error kind", zap.Stringer("kind", kind), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
