package password

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

const (
	minSaltLength     = 16
	defaultSaltLength = 16
	separator         = ":"
	digestHexLength   = sha512.Size * 2
)

// ErrCorruptCredential is returned by Verify when the stored pair cannot be parsed.
var ErrCorruptCredential = errors.New("corrupt credential")

// Config controls salt generation for new credential pairs.
type Config struct {
	SaltLength int
}

// Codec hashes and verifies salted SHA-512 credential pairs.
//
// Codec instances are immutable after construction and safe for concurrent use.
type Codec struct {
	config Config
	rand   io.Reader
}

// NewCodec validates cfg and returns a Codec. A zero SaltLength selects 16 bytes.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.SaltLength == 0 {
		cfg.SaltLength = defaultSaltLength
	}
	if cfg.SaltLength < minSaltLength {
		return nil, errors.New("salt length must be at least 16 bytes")
	}

	return &Codec{config: cfg, rand: rand.Reader}, nil
}

// Hash draws a fresh salt and returns the stored form of plaintext.
// Two calls with the same plaintext never return the same pair.
func (c *Codec) Hash(plaintext string) (string, error) {
	salt := make([]byte, c.config.SaltLength)
	if _, err := io.ReadFull(c.rand, salt); err != nil {
		return "", err
	}

	saltHex := hex.EncodeToString(salt)
	return saltHex + separator + digest(saltHex, plaintext), nil
}

// Verify reports whether plaintext matches the stored pair.
//
// Verify returns ErrCorruptCredential for a pair without a separator, with a
// non-hex salt, or with a digest that is not a full SHA-512 hex string.
func (c *Codec) Verify(plaintext, stored string) (bool, error) {
	saltHex, want, ok := strings.Cut(stored, separator)
	if !ok || saltHex == "" {
		return false, ErrCorruptCredential
	}
	if _, err := hex.DecodeString(saltHex); err != nil {
		return false, ErrCorruptCredential
	}
	if len(want) != digestHexLength {
		return false, ErrCorruptCredential
	}
	if _, err := hex.DecodeString(want); err != nil {
		return false, ErrCorruptCredential
	}

	return digest(saltHex, plaintext) == want, nil
}

func digest(saltHex, plaintext string) string {
	sum := sha512.Sum512([]byte(saltHex + plaintext))
	return hex.EncodeToString(sum[:])
}
