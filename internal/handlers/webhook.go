package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/ingest"
)

// EventProcessor runs a webhook batch to completion.
type EventProcessor interface {
	HandleBatch(ctx context.Context, events []channel.Event) []ingest.Result
}

// WebhookHandler receives LINE webhook deliveries.
type WebhookHandler struct {
	parser    channel.EventParser
	processor EventProcessor
	logger    *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, parser channel.EventParser, processor EventProcessor) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		parser:    parser,
		processor: processor,
		logger:    log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Receive)
}

// Receive verifies the signature, processes every event and answers 200 once all of them
// reached a terminal state. Processing is detached from client cancellation so a dropped
// connection does not abort uploads halfway.
func (h *WebhookHandler) Receive(c echo.Context) error {
	events, err := h.parser.ParseRequest(c.Request())
	if err != nil {
		if errors.Is(err, channel.ErrInvalidSignature) {
			h.logger.Warn("webhook signature rejected", slog.String("remote_ip", c.RealIP()))
			return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
		}
		h.logger.Warn("webhook payload rejected", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}
	ctx := context.WithoutCancel(c.Request().Context())
	results := h.processor.HandleBatch(ctx, events)

	counts := map[ingest.State]int{}
	failed := 0
	for _, r := range results {
		counts[r.State]++
		if r.State == ingest.StateFailed {
			failed++
		}
	}
	h.logger.Info("webhook processed",
		slog.Int("events", len(events)),
		slog.Int("batched", counts[ingest.StateBatched]),
		slog.Int("failed", failed))
	return c.NoContent(http.StatusOK)
}
