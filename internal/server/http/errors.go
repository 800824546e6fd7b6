package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/and161185/riskguard/internal/errs"
)

// apiError is the JSON error envelope returned by every route.
type apiError struct {
	Code    string
	Message string
	Status  int
}

func newError(code, message string, status int) apiError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return apiError{Code: code, Message: sanitize(message, 512), Status: status}
}

func writeError(ctx context.Context, w http.ResponseWriter, e apiError) {
	payload := map[string]any{
		"error":   e.Code,
		"message": e.Message,
		"status":  e.Status,
	}
	if id := sanitize(middleware.GetReqID(ctx), 80); id != "" {
		payload["request_id"] = id
	}
	writeJSON(w, e.Status, payload)
}

// writeDomainError maps service sentinels onto statuses and sets Retry-After for denials.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	if after := errs.RetryAfter(err); after > 0 {
		w.Header().Set("Retry-After", retryAfterSeconds(after))
	}
	switch {
	case errors.Is(err, errs.ErrLockedOut):
		writeError(ctx, w, newError("locked_out", "too many failed attempts", http.StatusTooManyRequests))
	case errors.Is(err, errs.ErrRateLimited):
		writeError(ctx, w, newError("rate_limited", "too many requests", http.StatusTooManyRequests))
	case errors.Is(err, errs.ErrInvalidInput):
		writeError(ctx, w, newError("invalid_input", "invalid input", http.StatusBadRequest))
	case errors.Is(err, errs.ErrSuspiciousInput):
		writeError(ctx, w, newError("suspicious_input", "input rejected", http.StatusBadRequest))
	case errors.Is(err, errs.ErrSpam):
		writeError(ctx, w, newError("spam", "input classified as spam", http.StatusBadRequest))
	case errors.Is(err, errs.ErrUnauthorized):
		writeError(ctx, w, newError("unauthorized", "missing or invalid credentials", http.StatusUnauthorized))
	case errors.Is(err, errs.ErrForbidden):
		writeError(ctx, w, newError("forbidden", "admin role required", http.StatusForbidden))
	case errors.Is(err, errs.ErrUnavailable):
		writeError(ctx, w, newError("unavailable", "backend unavailable", http.StatusServiceUnavailable))
	default:
		writeError(ctx, w, newError("internal", "internal error", http.StatusInternalServerError))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// retryAfterSeconds rounds up so a client never retries early.
func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
