package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// EnvelopeKey is the edge value under which an encrypted snapshot is stored.
const EnvelopeKey = "__encrypted__"

var (
	// ErrKeySize is returned for keys that are not 32 bytes long.
	ErrKeySize = errors.New("encryption key must be 32 bytes (AES-256)")
	// ErrNoEnvelope is returned when a stored snapshot was not written encrypted.
	ErrNoEnvelope = errors.New("run snapshot is missing its encrypted envelope")
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new snapshots.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot decrypt,
	// so keys can be rotated without rewriting stored runs.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.RunStore
	config EncryptionConfig
}

// NewEncryption returns a middleware that stores each snapshot sealed with
// AES-GCM. Only the run id, flow id, status and timestamps stay readable
// so that listing by flow keeps working.
func NewEncryption(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, ErrKeySize
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key %d: %w", i, ErrKeySize)
		}
	}
	return func(next ports.RunStore) ports.RunStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

// DecodeKey parses a base64 encoded 32 byte key.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	return key, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, s *domain.FlowRunState) error {
	plain, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}
	sealed, err := encrypt(plain, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt run state: %w", err)
	}

	envelope := &domain.FlowRunState{
		RunID:      s.RunID,
		FlowID:     s.FlowID,
		Status:     s.Status,
		Aborted:    s.Aborted,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Nodes:      map[string]*domain.NodeRunState{},
		EdgeValues: map[string]string{EnvelopeKey: base64.StdEncoding.EncodeToString(sealed)},
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, runID string) (*domain.FlowRunState, error) {
	envelope, err := m.next.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	encoded, ok := envelope.EdgeValues[EnvelopeKey]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNoEnvelope)
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	plain, err := decryptWithRotation(sealed, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt run %s: %w", runID, err)
	}

	var s domain.FlowRunState
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted run state: %w", err)
	}
	return &s, nil
}

func (m *encryptionMiddleware) List(ctx context.Context, flowID string) ([]string, error) {
	return m.next.List(ctx, flowID)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext, active []byte, fallbacks [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, active); err == nil {
		return plain, nil
	}
	for _, key := range fallbacks {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
