package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chamber-monitor/internal/config"
	"chamber-monitor/internal/logging"
	"chamber-monitor/internal/models"
	"chamber-monitor/internal/store"
	"chamber-monitor/pkg/telegram"
)

// Handler serves the dashboard API from the shared poll store. When the
// gateway could not be configured, store is nil and gwErr carries the missing
// settings; every telemetry endpoint then answers 500 naming them.
type Handler struct {
	store  *store.Store
	logger *logging.Logger
	config config.Config
	gwErr  error
	ws     *WSManager
}

func NewHandler(st *store.Store, gwErr error, logger *logging.Logger, cfg config.Config, ws *WSManager) *Handler {
	return &Handler{store: st, logger: logger, config: cfg, gwErr: gwErr, ws: ws}
}

func (h *Handler) gatewayReady(c *gin.Context) bool {
	if h.gwErr == nil {
		return true
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "missing required configuration",
		"details": h.gwErr.Error(),
	})
	return false
}

// GetLatest serves the most recent reading. An endpoint hit before the first
// poll completes triggers one on-demand fetch so the route still behaves as a
// proxy.
func (h *Handler) GetLatest(c *gin.Context) {
	if !h.gatewayReady(c) {
		return
	}
	snap := h.store.Snapshot()
	if snap.FetchedAt.IsZero() {
		h.store.RefreshLatest(c.Request.Context())
		snap = h.store.Snapshot()
	}
	if snap.FetchedAt.IsZero() {
		details := "no data"
		if snap.Err != nil {
			details = snap.Err.Error()
		}
		h.logger.Errorf("Latest telemetry unavailable: %s", details)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upstream telemetry fetch failed", "details": details})
		return
	}
	c.JSON(http.StatusOK, snap.Reading)
}

// GetHistory serves the merged trailing window of samples.
func (h *Handler) GetHistory(c *gin.Context) {
	if !h.gatewayReady(c) {
		return
	}
	samples, ok, err := h.store.History()
	if !ok {
		h.store.RefreshHistory(c.Request.Context())
		samples, ok, err = h.store.History()
	}
	if !ok {
		details := "no data"
		if err != nil {
			details = err.Error()
		}
		h.logger.Errorf("History unavailable: %s", details)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upstream telemetry fetch failed", "details": details})
		return
	}
	if samples == nil {
		samples = []models.Sample{}
	}
	c.JSON(http.StatusOK, samples)
}

// GetStats serves the trend statistics summary over the history window.
func (h *Handler) GetStats(c *gin.Context) {
	if !h.gatewayReady(c) {
		return
	}
	c.JSON(http.StatusOK, h.store.Stats())
}

// GetAlerts serves the alert feed from the most recent evaluation.
func (h *Handler) GetAlerts(c *gin.Context) {
	if !h.gatewayReady(c) {
		return
	}
	alerts := h.store.Alerts()
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, alerts)
}

// GetStatus serves the derived connectivity status.
func (h *Handler) GetStatus(c *gin.Context) {
	if !h.gatewayReady(c) {
		return
	}
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":         snap.Status,
		"last_update_ts": snap.Reading.TS,
	})
}

// NotifyTest probes the configured Telegram chat so a deployment can verify
// its notification channel without waiting for a real alert.
func (h *Handler) NotifyTest(c *gin.Context) {
	if h.config.Telegram.BotToken == "" || h.config.Telegram.ChatID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Telegram is not configured"})
		return
	}
	err := telegram.Send(h.config.Telegram.BotToken, []int64{h.config.Telegram.ChatID}, "Chamber monitor notification test")
	if err != nil {
		h.logger.Errorf("Telegram test failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Cannot send message to this chat_id. Please start the bot first."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test message sent"})
}
