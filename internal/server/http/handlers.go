package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/riskguard/internal/heuristics"
	"github.com/and161185/riskguard/internal/service"
)

const maxBodyBytes = 64 << 10

// HeaderUserID carries the caller's user id, set by the upstream authenticator.
const HeaderUserID = "X-User-ID"

type handlers struct {
	guard   service.Guard
	backend string
	log     *zap.Logger
}

type toggleBody struct {
	Enabled *bool `json:"enabled"`
}

type routeBody struct {
	Route string `json:"route"`
}

type textBody struct {
	Text string `json:"text"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}

func (h *handlers) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(r.Context(), w, newError("invalid_input", msg, http.StatusBadRequest))
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": h.backend})
}

func (h *handlers) getRateLimit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": h.guard.RateLimitEnabled(r.Context())})
}

func (h *handlers) setRateLimit(w http.ResponseWriter, r *http.Request) {
	var body toggleBody
	if err := decodeJSON(w, r, &body); err != nil || body.Enabled == nil {
		h.badRequest(w, r, `body must be {"enabled": true|false}`)
		return
	}
	if err := h.guard.SetRateLimitEnabled(r.Context(), *body.Enabled); err != nil {
		h.log.Error("persist rate-limit switch", zap.Error(err))
		writeError(r.Context(), w, newError("toggle_failed", "could not persist setting", http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *body.Enabled})
}

func (h *handlers) decodeRoute(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body routeBody
	if err := decodeJSON(w, r, &body); err != nil || strings.TrimSpace(body.Route) == "" {
		h.badRequest(w, r, `body must be {"route": "<path>"}`)
		return "", false
	}
	return strings.TrimSpace(body.Route), true
}

func (h *handlers) recordFailure(w http.ResponseWriter, r *http.Request) {
	route, ok := h.decodeRoute(w, r)
	if !ok {
		return
	}
	locked := h.guard.RecordFailure(r.Context(), ClientIPFromContext(r.Context()), route)
	writeJSON(w, http.StatusOK, map[string]bool{"locked_out": locked})
}

// checkRoute runs the request guard for the caller on an arbitrary route, so a
// gateway can ask before serving /login whether the client is locked out. The
// call counts as one request on that route.
func (h *handlers) checkRoute(w http.ResponseWriter, r *http.Request) {
	route, ok := h.decodeRoute(w, r)
	if !ok {
		return
	}
	if err := h.guard.CheckRequest(r.Context(), ClientIPFromContext(r.Context()), route); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) resetFailures(w http.ResponseWriter, r *http.Request) {
	route, ok := h.decodeRoute(w, r)
	if !ok {
		return
	}
	h.guard.ResetFailures(r.Context(), ClientIPFromContext(r.Context()), route)
	w.WriteHeader(http.StatusNoContent)
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderUserID))
}

func (h *handlers) screenComment(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		h.badRequest(w, r, HeaderUserID+" header is required")
		return
	}
	var body textBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.badRequest(w, r, `body must be {"text": "..."}`)
		return
	}
	if err := h.guard.ScreenComment(r.Context(), uid, body.Text); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) startAnalysis(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		h.badRequest(w, r, HeaderUserID+" header is required")
		return
	}
	a, err := h.guard.StartAnalysis(r.Context(), uid)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *handlers) classify(w http.ResponseWriter, r *http.Request) {
	var body textBody
	if err := decodeJSON(w, r, &body); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, r, `body must be {"text": "..."}`)
		return
	}
	if len(body.Text) > heuristics.MaxTextBytes {
		h.badRequest(w, r, fmt.Sprintf("text exceeds %d bytes", heuristics.MaxTextBytes))
		return
	}
	writeJSON(w, http.StatusOK, heuristics.Classify(body.Text))
}
