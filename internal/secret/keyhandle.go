package secret

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// KeyHandle is a platform protected key. Callers never see its material;
// they ask it to derive bytes bound to a label. Platform implementations
// may require user presence (a biometric prompt) before deriving.
type KeyHandle interface {
	Derive(ctx context.Context, label []byte) ([]byte, error)
}

// FileKeyHandle is a software KeyHandle backed by a random key kept in a
// file readable only by the owner. It stands in where no hardware keystore exists.
type FileKeyHandle struct {
	path string

	mu  sync.Mutex
	key []byte
}

// NewFileKeyHandle returns a handle whose key lives at path. The key is
// created on first use.
func NewFileKeyHandle(path string) *FileKeyHandle {
	return &FileKeyHandle{path: path}
}

func (h *FileKeyHandle) Derive(ctx context.Context, label []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := h.load()
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(label)
	return mac.Sum(nil), nil
}

func (h *FileKeyHandle) load() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.key != nil {
		return h.key, nil
	}

	key, err := os.ReadFile(h.path)
	switch {
	case err == nil:
		if len(key) != Size {
			return nil, fmt.Errorf("device key %s: unexpected length %d", h.path, len(key))
		}
	case errors.Is(err, fs.ErrNotExist):
		key = make([]byte, Size)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate device key: %w", err)
		}
		if err := os.WriteFile(h.path, key, 0o600); err != nil {
			return nil, fmt.Errorf("write device key: %w", err)
		}
	default:
		return nil, fmt.Errorf("read device key: %w", err)
	}
	h.key = key
	return key, nil
}
