package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// DefaultAuthenticationTimeout applies when a payload carries no usable timeout.
const DefaultAuthenticationTimeout = 150

// Payload keys sent by the tiqr server.
const (
	KeyText                  = "text"
	KeyChallenge             = "challenge"
	KeyAuthenticationTimeout = "authenticationTimeout"
)

// Notification is what the platform is asked to display.
type Notification struct {
	ID        int32
	Text      string
	Challenge string
}

// Notifier shows and cancels platform notifications.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, notificationID int32) error
}

// Handler turns push payloads into a displayed notification and a cached challenge.
type Handler struct {
	cache    *Cache
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewHandler wires a handler. It uses the cache's clock and logger.
func NewHandler(cache *Cache, notifier Notifier) *Handler {
	return &Handler{
		cache:    cache,
		notifier: notifier,
		now:      cache.now,
		logger:   cache.logger,
	}
}

// HandleMessage processes one push payload. It reports false when the payload
// carries no challenge and was ignored.
func (h *Handler) HandleMessage(ctx context.Context, data map[string]string) (bool, error) {
	challenge := strings.TrimSpace(data[KeyChallenge])
	if challenge == "" {
		h.logger.DebugContext(ctx, "ignoring push message without challenge")
		return false, nil
	}

	timeout := DefaultAuthenticationTimeout
	if raw, ok := data[KeyAuthenticationTimeout]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			timeout = n
		} else {
			h.logger.WarnContext(ctx, "invalid authentication timeout in push message",
				"value", raw,
			)
		}
	}

	n := Notification{
		ID:        int32(h.now().UnixMilli()),
		Text:      data[KeyText],
		Challenge: challenge,
	}
	if h.notifier != nil {
		if err := h.notifier.Show(ctx, n); err != nil {
			return false, fmt.Errorf("show notification: %w", err)
		}
	}
	if err := h.cache.Save(ctx, challenge, timeout, n.ID); err != nil {
		return false, err
	}
	return true, nil
}
