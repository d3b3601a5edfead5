package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/venuecompare/internal/session"
)

// SessionController is the slice of the session the control endpoints use.
type SessionController interface {
	Status() session.Status
	Subscribe(markets ...string)
	SelectAsset(ctx context.Context, asset string) error
}

// SessionHandler serves session status and control endpoints.
type SessionHandler struct {
	session SessionController
	mode    string
	logger  *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(s SessionController, mode string, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{session: s, mode: mode, logger: logger.With(slog.String("handler", "session"))}
}

type statusResponse struct {
	Mode string `json:"mode"`
	session.Status
}

// GetStatus reports liveness, feed statistics, and the active asset.
// GET /api/status
func (h *SessionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Mode: h.mode, Status: h.session.Status()})
}

type subscribeRequest struct {
	Markets []string `json:"markets"`
}

// Subscribe adds markets to the feed subscription.
// POST /api/subscribe {"markets":["ETH","BTC"]}
func (h *SessionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	markets := make([]string, 0, len(req.Markets))
	for _, m := range req.Markets {
		if m = strings.TrimSpace(m); m != "" {
			markets = append(markets, m)
		}
	}
	if len(markets) == 0 {
		writeError(w, http.StatusBadRequest, "markets must not be empty")
		return
	}

	h.session.Subscribe(markets...)
	h.logger.InfoContext(r.Context(), "markets subscribed", slog.Any("markets", markets))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"subscriptions": h.session.Status().Feed.Subscriptions,
	})
}

type assetRequest struct {
	Asset string `json:"asset"`
}

// SetAsset switches the active comparison asset. The capture history is
// reset when the asset changes.
// PUT /api/asset {"asset":"BTC"}
func (h *SessionHandler) SetAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Asset) == "" {
		writeError(w, http.StatusBadRequest, "asset must not be empty")
		return
	}
	if err := h.session.SelectAsset(r.Context(), req.Asset); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": h.session.Status().Asset})
}
