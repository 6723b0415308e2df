// Package notification tracks the most recent push-delivered challenge.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tiqr/internal/notification/models"
)

// SlotStore persists the single pending entry. Get and Take return nil
// when the slot is empty; Take empties it atomically.
type SlotStore interface {
	Put(ctx context.Context, e models.Entry) error
	Get(ctx context.Context) (*models.Entry, error)
	Take(ctx context.Context) (*models.Entry, error)
	Clear(ctx context.Context) error
}

// Canceler removes a notification that is still on screen.
type Canceler interface {
	Cancel(ctx context.Context, notificationID int32) error
}

// Cache is a single-slot, timeout-bound holder of a pending challenge.
// Timeouts are checked when the entry is consumed; nothing runs in the background.
type Cache struct {
	mu       sync.Mutex
	store    SlotStore
	canceler Canceler
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache builds a cache over store. canceler may be nil.
func NewCache(store SlotStore, canceler Canceler, opts ...Option) *Cache {
	c := &Cache{
		store:    store,
		canceler: canceler,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save overwrites the slot with challenge, valid for timeoutSeconds from now.
func (c *Cache) Save(ctx context.Context, challenge string, timeoutSeconds int, notificationID int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := models.Entry{
		Challenge:      challenge,
		TimeoutEpochMs: c.now().UnixMilli() + int64(timeoutSeconds)*1000,
		NotificationID: notificationID,
	}
	if err := c.store.Put(ctx, entry); err != nil {
		return fmt.Errorf("save notification challenge: %w", err)
	}
	return nil
}

// Consume returns the pending challenge if it has not timed out and cancels
// its notification. The slot is empty afterwards whether or not it had expired.
func (c *Cache) Consume(ctx context.Context) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.store.Take(ctx)
	if err != nil {
		return "", false, fmt.Errorf("consume notification challenge: %w", err)
	}
	if entry == nil {
		return "", false, nil
	}
	if entry.ExpiredAt(c.now()) {
		c.logger.InfoContext(ctx, "notification challenge expired",
			"notification_id", entry.NotificationID,
		)
		return "", false, nil
	}

	if c.canceler != nil {
		if err := c.canceler.Cancel(ctx, entry.NotificationID); err != nil {
			c.logger.WarnContext(ctx, "failed to cancel notification",
				"notification_id", entry.NotificationID,
				"error", err,
			)
		}
	}
	return entry.Challenge, true, nil
}

// Peek returns the pending entry without consuming it.
func (c *Cache) Peek(ctx context.Context) (*models.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("peek notification challenge: %w", err)
	}
	return entry, nil
}

// Clear empties the slot.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear notification challenge: %w", err)
	}
	return nil
}
