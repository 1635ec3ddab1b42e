package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// sealedPrefix marks a blob written by EncryptedSnapshot. Blobs without it
// are read back as plaintext so an existing unencrypted store keeps working
// until its next write.
var sealedPrefix = []byte("mtenc1:")

// EncryptedSnapshot seals the blob of an inner Snapshot with AES-256-GCM.
// The stored form is the prefix followed by base64(nonce || ciphertext).
type EncryptedSnapshot struct {
	inner Snapshot
	aead  cipher.AEAD
}

// NewEncryptedSnapshot wraps inner with a 32-byte AES-256 key.
func NewEncryptedSnapshot(inner Snapshot, key []byte) (*EncryptedSnapshot, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("snapshot encryption: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("snapshot encryption: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("snapshot encryption: create GCM: %w", err)
	}
	return &EncryptedSnapshot{inner: inner, aead: aead}, nil
}

func (e *EncryptedSnapshot) Name() string { return e.inner.Name() + "+aes-gcm" }

func (e *EncryptedSnapshot) Read(ctx context.Context) ([]byte, error) {
	b, err := e.inner.Read(ctx)
	if err != nil || b == nil {
		return b, err
	}
	return e.open(b)
}

func (e *EncryptedSnapshot) Update(ctx context.Context, fn func([]byte) ([]byte, error)) error {
	return e.inner.Update(ctx, func(cur []byte) ([]byte, error) {
		var plain []byte
		if cur != nil {
			var err error
			if plain, err = e.open(cur); err != nil {
				return nil, err
			}
		}
		next, err := fn(plain)
		if err != nil {
			return nil, err
		}
		return e.seal(next)
	})
}

func (e *EncryptedSnapshot) Ping(ctx context.Context) error { return e.inner.Ping(ctx) }

func (e *EncryptedSnapshot) Close(ctx context.Context) error {
	if c, ok := e.inner.(Closer); ok {
		return c.Close(ctx)
	}
	return nil
}

func (e *EncryptedSnapshot) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("snapshot encrypt: generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, plain, nil)

	out := make([]byte, len(sealedPrefix)+base64.StdEncoding.EncodedLen(len(sealed)))
	copy(out, sealedPrefix)
	base64.StdEncoding.Encode(out[len(sealedPrefix):], sealed)
	return out, nil
}

func (e *EncryptedSnapshot) open(b []byte) ([]byte, error) {
	if !bytes.HasPrefix(b, sealedPrefix) {
		return b, nil
	}
	data, err := base64.StdEncoding.DecodeString(string(b[len(sealedPrefix):]))
	if err != nil {
		return nil, fmt.Errorf("snapshot decrypt: base64 decode: %w", err)
	}
	n := e.aead.NonceSize()
	if len(data) < n {
		return nil, fmt.Errorf("snapshot decrypt: ciphertext too short")
	}
	plain, err := e.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot decrypt: %w", err)
	}
	return plain, nil
}
