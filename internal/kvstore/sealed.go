package kvstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// Sealed encrypts values with NaCl secretbox before handing them to the
// wrapped store. Stored values are base64(nonce || box).
type Sealed struct {
	inner Store
	key   [keySize]byte
}

// ParseSealingKey decodes a hex or base64 encoded 32 byte key.
func ParseSealingKey(s string) ([keySize]byte, error) {
	var key [keySize]byte

	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != keySize {
		raw, err = base64.StdEncoding.DecodeString(s)
	}
	if err != nil || len(raw) != keySize {
		return key, ErrInvalidKey
	}

	copy(key[:], raw)
	return key, nil
}

func NewSealed(inner Store, key [keySize]byte) *Sealed {
	return &Sealed{inner: inner, key: key}
}

func (s *Sealed) Get(ctx context.Context, key string) (string, error) {
	stored, err := s.inner.Get(ctx, key)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("%w: %s", ErrUnsealFailed, key)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsealFailed, key)
	}
	return string(plain), nil
}

func (s *Sealed) Set(ctx context.Context, key, value string) error {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("kvstore: nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(value), &nonce, &s.key)
	return s.inner.Set(ctx, key, base64.StdEncoding.EncodeToString(sealed))
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
