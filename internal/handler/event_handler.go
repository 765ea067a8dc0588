package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/degun-osint/brainnotfound-go-api/internal/service"
	"github.com/degun-osint/brainnotfound-go-api/internal/utils"
)

// EventHandler serves the SSE streams for grading and interview progress
// events. Missed events are not replayed; clients recover by polling the
// resource endpoints.
type EventHandler struct {
	notifier  service.Notifier
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewEventHandler constructs a handler instance.
func NewEventHandler(notifier service.Notifier, logger zerolog.Logger, keepAlive time.Duration) *EventHandler {
	return &EventHandler{
		notifier:  notifier,
		logger:    logger.With().Str("component", "event_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register binds the event stream routes.
func (h *EventHandler) Register(router fiber.Router) {
	router.Get("/stream", h.userStream)
	router.Get("/responses/:id/stream", h.responseStream)
}

func (h *EventHandler) userStream(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	return h.stream(c, service.UserRoom(userID))
}

func (h *EventHandler) responseStream(c *fiber.Ctx) error {
	responseID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid response id")
	}

	return h.stream(c, service.ResponseRoom(responseID))
}

func (h *EventHandler) stream(c *fiber.Ctx, room string) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(requestContext(c))

	events, cleanup := h.notifier.Subscribe(room)

	keepAliveInterval := h.keepAlive
	if keepAliveInterval <= 0 {
		keepAliveInterval = 30 * time.Second
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(keepAliveInterval / 2)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeEvent(w, event); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func writeEvent(w *bufio.Writer, event service.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", event.Name); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
