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

	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/ports"
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new snapshots. Must be 16, 24 or 32 bytes,
	// selecting AES-128, AES-192 or AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when decryption with the active key
	// fails, enabling zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.CheckpointStore
	config EncryptionConfig
}

type envelope struct {
	Encrypted string `json:"__encrypted__"`
}

// NewEncryptionMiddleware creates a middleware that encrypts snapshot state
// with AES-GCM before it reaches the underlying store.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if _, err := aes.NewCipher(config.ActiveKey); err != nil {
		panic(fmt.Sprintf("invalid active key: %v", err))
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &encryptionMiddleware{next: next, config: config}
	}
}

func (m *encryptionMiddleware) Append(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	ciphertext, err := encrypt(snap.State, m.config.ActiveKey)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to encrypt state: %w", err)
	}

	sealed, err := json.Marshal(envelope{Encrypted: base64.StdEncoding.EncodeToString(ciphertext)})
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to build envelope: %w", err)
	}

	out := snap
	out.State = sealed
	stored, err := m.next.Append(ctx, out)
	if err != nil {
		return domain.Snapshot{}, err
	}

	// Hand the caller back its own plaintext, with the assigned Seq.
	stored.State = snap.State
	return stored, nil
}

func (m *encryptionMiddleware) Latest(ctx context.Context, threadID string) (domain.Snapshot, error) {
	snap, err := m.next.Latest(ctx, threadID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return m.open(snap)
}

func (m *encryptionMiddleware) History(ctx context.Context, threadID string) ([]domain.Snapshot, error) {
	history, err := m.next.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Snapshot, 0, len(history))
	for _, snap := range history {
		opened, err := m.open(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

func (m *encryptionMiddleware) Threads(ctx context.Context) ([]string, error) {
	return m.next.Threads(ctx)
}

func (m *encryptionMiddleware) open(snap domain.Snapshot) (domain.Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(snap.State, &env); err != nil || env.Encrypted == "" {
		// Fail secure: with encryption configured, a plain snapshot is an error.
		return domain.Snapshot{}, errors.New("snapshot is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to decrypt snapshot: %w", err)
	}

	out := snap
	out.State = plain
	return out, nil
}

// Helpers

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
