package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tiqr/internal/notification/models"
)

// DefaultKey is where the slot lives unless WithKey is given.
const DefaultKey = "tiqr:notification:last"

// RedisSlot keeps the entry as JSON under a single key so that several
// processes on one device profile share it.
type RedisSlot struct {
	client *redis.Client
	key    string
}

// RedisSlotOption configures a RedisSlot.
type RedisSlotOption func(*RedisSlot)

func WithKey(key string) RedisSlotOption {
	return func(s *RedisSlot) {
		s.key = key
	}
}

func NewRedis(client *redis.Client, opts ...RedisSlotOption) *RedisSlot {
	s := &RedisSlot{client: client, key: DefaultKey}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisSlot) Put(ctx context.Context, e models.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode notification entry: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("save notification entry: %w", err)
	}
	return nil
}

func (s *RedisSlot) Get(ctx context.Context) (*models.Entry, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	return decode(raw, err)
}

// Take reads and deletes the entry with GETDEL so concurrent consumers never
// both observe it.
func (s *RedisSlot) Take(ctx context.Context) (*models.Entry, error) {
	raw, err := s.client.GetDel(ctx, s.key).Bytes()
	return decode(raw, err)
}

func (s *RedisSlot) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear notification entry: %w", err)
	}
	return nil
}

func decode(raw []byte, err error) (*models.Entry, error) {
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load notification entry: %w", err)
	}
	var e models.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode notification entry: %w", err)
	}
	return &e, nil
}
