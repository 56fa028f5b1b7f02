// Package crypto seals provider API keys at rest.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrUnseal is returned when a sealed value is malformed or was sealed with another key
var ErrUnseal = errors.New("failed to unseal secret")

// Sealer encrypts and authenticates short secrets with a single symmetric key. The output
// is nonce || box.
type Sealer struct {
	key [32]byte
	rnd io.Reader
}

// NewSealer creates a Sealer for key
func NewSealer(key [32]byte) *Sealer {
	return &Sealer{key: key, rnd: rand.Reader}
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.rnd, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrUnseal
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrUnseal
	}
	return plain, nil
}
