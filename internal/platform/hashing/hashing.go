// Package hashing provides named password hashing algorithms.
package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm names persisted alongside password hashes.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// ErrMismatch indicates a password did not match its hash.
var ErrMismatch = errors.New("password does not match")

// Hasher hashes and verifies passwords with one algorithm.
type Hasher interface {
	Algorithm() string
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// Factory resolves hashers by name.
type Factory struct {
	bcryptCost int
	argon      argonParams
}

// Option configures a Factory.
type Option func(*Factory)

// WithBcryptCost overrides the bcrypt work factor.
func WithBcryptCost(cost int) Option {
	return func(f *Factory) {
		f.bcryptCost = cost
	}
}

// NewFactory returns a Factory with bcrypt as the default algorithm.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		bcryptCost: bcrypt.DefaultCost,
		argon:      defaultArgonParams,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Default returns the hasher used for new passwords.
func (f *Factory) Default() Hasher {
	return bcryptHasher{cost: f.bcryptCost}
}

// Named returns the hasher for algorithm.
func (f *Factory) Named(algorithm string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case AlgorithmBcrypt:
		return bcryptHasher{cost: f.bcryptCost}, nil
	case AlgorithmArgon2id:
		return argonHasher{params: f.argon}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algorithm)
	}
}

type bcryptHasher struct {
	cost int
}

func (bcryptHasher) Algorithm() string { return AlgorithmBcrypt }

func (h bcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hash), nil
}

func (bcryptHasher) Verify(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
	saltLen int
}

var defaultArgonParams = argonParams{
	memory:  64 * 1024,
	time:    1,
	threads: 4,
	keyLen:  32,
	saltLen: 16,
}

type argonHasher struct {
	params argonParams
}

func (argonHasher) Algorithm() string { return AlgorithmArgon2id }

// Hash encodes as $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>.
func (h argonHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2id salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.params.time, h.params.memory, h.params.threads, h.params.keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.memory,
		h.params.time,
		h.params.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (argonHasher) Verify(hash, password string) error {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != AlgorithmArgon2id {
		return fmt.Errorf("malformed argon2id hash")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return fmt.Errorf("parse argon2id version: %w", err)
	}
	if version != argon2.Version {
		return fmt.Errorf("unsupported argon2id version %d", version)
	}
	var params argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return fmt.Errorf("parse argon2id params: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("decode argon2id salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("decode argon2id key: %w", err)
	}
	got := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(want)))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrMismatch
	}
	return nil
}
