package secret

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"tiqr/pkg/platform/sentinel"
)

// Store keeps encrypted blobs. Implementations must overwrite on Put and
// return sentinel.ErrNotFound from Get for unknown ids.
type Store interface {
	Put(ctx context.Context, id ID, blob []byte) error
	Get(ctx context.Context, id ID) ([]byte, error)
	Delete(ctx context.Context, id ID) error
}

const (
	saltID      ID = "device:salt"
	blobVersion    = 1
	numShards      = 32
)

var biometricLabel = []byte("tiqr biometric session key")

// KDFParams tunes argon2id for PIN session keys.
type KDFParams struct {
	Time     uint32
	MemoryKB uint32
	Threads  uint8
}

// DefaultKDFParams follows the argon2id recommendation for interactive use.
var DefaultKDFParams = KDFParams{Time: 3, MemoryKB: 64 * 1024, Threads: 2}

// Service creates, wraps and unwraps secrets.
type Service struct {
	store  Store
	handle KeyHandle
	kdf    KDFParams
	logger *slog.Logger

	saltMu sync.Mutex
	salt   []byte

	shards [numShards]sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithKDFParams overrides the argon2id cost.
func WithKDFParams(p KDFParams) Option {
	return func(s *Service) {
		s.kdf = p
	}
}

// NewService builds a Service. handle backs biometric session keys and may be
// nil when biometrics are unavailable.
func NewService(store Store, handle KeyHandle, opts ...Option) *Service {
	s := &Service{
		store:  store,
		handle: handle,
		kdf:    DefaultKDFParams,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSecret generates fresh key material.
func (s *Service) CreateSecret() (Secret, error) {
	return New()
}

// CreateSecretIdentity returns the id under which an identity's secret of kind is stored.
func (s *Service) CreateSecretIdentity(identityID int64, kind Type) ID {
	return IdentityFor(identityID, kind)
}

// CreateSessionKey derives the session key for a credential: argon2id over the
// PIN with a per-device salt, or HKDF over the platform key handle.
func (s *Service) CreateSessionKey(ctx context.Context, cred Credential) (SessionKey, error) {
	switch cred.Type {
	case PIN:
		return s.pinSessionKey(ctx, cred.Password)
	case Biometric:
		return s.biometricSessionKey(ctx)
	default:
		return SessionKey{}, fmt.Errorf("unknown credential type %q", cred.Type)
	}
}

func (s *Service) pinSessionKey(ctx context.Context, pin string) (SessionKey, error) {
	if pin == "" {
		return SessionKey{}, errors.New("pin is required")
	}
	salt, err := s.deviceSalt(ctx)
	if err != nil {
		return SessionKey{}, err
	}
	key := argon2.IDKey([]byte(pin), salt, s.kdf.Time, s.kdf.MemoryKB, s.kdf.Threads, Size)
	return SessionKey{key: key}, nil
}

func (s *Service) biometricSessionKey(ctx context.Context) (SessionKey, error) {
	if s.handle == nil {
		return SessionKey{}, errors.New("no biometric key handle available")
	}
	material, err := s.handle.Derive(ctx, biometricLabel)
	if err != nil {
		return SessionKey{}, fmt.Errorf("derive from key handle: %w", err)
	}
	salt, err := s.deviceSalt(ctx)
	if err != nil {
		return SessionKey{}, err
	}
	key := make([]byte, Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, salt, biometricLabel), key); err != nil {
		return SessionKey{}, fmt.Errorf("expand biometric key: %w", err)
	}
	return SessionKey{key: key}, nil
}

// deviceSalt loads the per-device KDF salt, creating it on first use.
func (s *Service) deviceSalt(ctx context.Context) ([]byte, error) {
	s.saltMu.Lock()
	defer s.saltMu.Unlock()
	if s.salt != nil {
		return s.salt, nil
	}

	salt, err := s.store.Get(ctx, saltID)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		salt = make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		if err := s.store.Put(ctx, saltID, salt); err != nil {
			return nil, fmt.Errorf("store salt: %w", err)
		}
	default:
		return nil, fmt.Errorf("load salt: %w", err)
	}
	s.salt = salt
	return salt, nil
}

// Save encrypts secret under key and stores it as id, replacing any previous
// value. Concurrent saves of one id are applied one at a time.
func (s *Service) Save(ctx context.Context, id ID, secret Secret, key SessionKey) error {
	if secret.IsZero() {
		return errors.New("secret is empty")
	}
	blob, err := seal(id, secret, key)
	if err != nil {
		return err
	}

	mu := s.shard(id)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.Put(ctx, id, blob); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	return nil
}

// Load decrypts the secret stored as id. A wrong key yields ErrDecryption.
func (s *Service) Load(ctx context.Context, id ID, key SessionKey) (Secret, error) {
	blob, err := s.store.Get(ctx, id)
	if err != nil {
		return Secret{}, fmt.Errorf("load secret: %w", err)
	}
	return open(id, blob, key)
}

// Delete removes the secret stored as id. Missing secrets are not an error.
func (s *Service) Delete(ctx context.Context, id ID) error {
	mu := s.shard(id)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

// DeleteAll removes every secret kind of an identity.
func (s *Service) DeleteAll(ctx context.Context, identityID int64) error {
	for _, kind := range []Type{PIN, Biometric} {
		if err := s.Delete(ctx, IdentityFor(identityID, kind)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) shard(id ID) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.shards[h.Sum32()%numShards]
}

// seal produces version || nonce || AES-256-GCM(secret), authenticated with id.
func seal(id ID, secret Secret, key SessionKey) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, 0, 1+len(nonce)+len(secret.value)+aead.Overhead())
	out = append(out, blobVersion)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, secret.value, []byte(id)), nil
}

func open(id ID, blob []byte, key SessionKey) (Secret, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return Secret{}, err
	}
	if len(blob) < 1+aead.NonceSize()+aead.Overhead() || blob[0] != blobVersion {
		return Secret{}, fmt.Errorf("%w: malformed blob", ErrDecryption)
	}
	nonce := blob[1 : 1+aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, blob[1+aead.NonceSize():], []byte(id))
	if err != nil {
		return Secret{}, ErrDecryption
	}
	return Secret{value: plain}, nil
}

func newAEAD(key SessionKey) (cipher.AEAD, error) {
	if len(key.key) != Size {
		return nil, errors.New("session key is not initialized")
	}
	block, err := aes.NewCipher(key.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
