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

	"github.com/aretw0/arbor/pkg/ports"
)

// cipherField carries the base64 nonce-prefixed ciphertext inside an
// envelope record.
const cipherField = "__cipher__"

type encryption struct {
	next      ports.Storage
	active    []byte
	fallbacks [][]byte
}

// NewEncryption returns a middleware that encrypts records at rest with
// AES-256-GCM. Writes always seal with key; reads try key first and then
// each fallback in order, so keys can rotate without downtime. Records
// written before encryption was enabled read through unchanged. Keys must
// be 32 bytes.
func NewEncryption(key []byte, fallbacks ...[]byte) Middleware {
	if len(key) != 32 {
		panic("middleware: encryption key must be 32 bytes (AES-256)")
	}
	for _, k := range fallbacks {
		if len(k) != 32 {
			panic("middleware: encryption fallback key must be 32 bytes (AES-256)")
		}
	}
	return func(next ports.Storage) ports.Storage {
		return &encryption{next: next, active: key, fallbacks: fallbacks}
	}
}

func (m *encryption) Read(ctx context.Context, keys []string) (map[string]ports.Record, error) {
	stored, err := m.next.Read(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make(map[string]ports.Record, len(stored))
	for key, rec := range stored {
		encoded, ok := rec[cipherField].(string)
		if !ok {
			// Legacy record written before encryption was enabled.
			out[key] = rec
			continue
		}
		ciphertext, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("middleware: decoding ciphertext for %q: %w", key, err)
		}
		plain, err := m.open(ciphertext)
		if err != nil {
			return nil, fmt.Errorf("middleware: decrypting record %q: %w", key, err)
		}
		var clear ports.Record
		if err := json.Unmarshal(plain, &clear); err != nil {
			return nil, fmt.Errorf("middleware: decoding decrypted record %q: %w", key, err)
		}
		out[key] = clear
	}
	return out, nil
}

func (m *encryption) Write(ctx context.Context, changes map[string]ports.Record) error {
	sealed := make(map[string]ports.Record, len(changes))
	for key, rec := range changes {
		plain, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("middleware: encoding record %q: %w", key, err)
		}
		ciphertext, err := seal(plain, m.active)
		if err != nil {
			return fmt.Errorf("middleware: encrypting record %q: %w", key, err)
		}
		sealed[key] = ports.Record{cipherField: base64.StdEncoding.EncodeToString(ciphertext)}
	}
	return m.next.Write(ctx, sealed)
}

func (m *encryption) Delete(ctx context.Context, keys []string) error {
	return m.next.Delete(ctx, keys)
}

// open decrypts with the active key, then with each fallback.
func (m *encryption) open(ciphertext []byte) ([]byte, error) {
	if plain, err := unseal(ciphertext, m.active); err == nil {
		return plain, nil
	}
	for _, key := range m.fallbacks {
		if plain, err := unseal(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("no configured key decrypts the record")
}

func seal(plaintext, key []byte) ([]byte, error) {
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

func unseal(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}
