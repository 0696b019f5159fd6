package user

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/platform/hashing"
	"github.com/louisbranch/homebook/internal/platform/id"
)

// MinPasswordLength is the shortest accepted password, in runes.
const MinPasswordLength = 8

var (
	// ErrEmptyUsername indicates a missing username.
	ErrEmptyUsername = apperrors.New(apperrors.CodeUserEmptyUsername, "username is required")
	// ErrInvalidUsername indicates a username that does not match the required format.
	ErrInvalidUsername = apperrors.New(apperrors.CodeUserInvalidUsername, "username must be 3-32 lowercase alphanumeric, dot, dash, or underscore characters")
	// ErrWeakPassword indicates a password shorter than MinPasswordLength.
	ErrWeakPassword = apperrors.New(apperrors.CodeUserWeakPassword, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))

	usernamePattern = regexp.MustCompile(`^[a-z0-9_.\-]{3,32}$`)
)

// User is a persisted account.
type User struct {
	ID            string
	Username      string
	PasswordHash  string
	HashAlgorithm string
	IsAdmin       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateUserInput describes the account to create.
type CreateUserInput struct {
	Username string
	Password string
	IsAdmin  bool
}

// NormalizeUsername trims and lowercases s.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUsername enforces canonical username constraints.
func ValidateUsername(s string) error {
	if !usernamePattern.MatchString(s) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(s string) error {
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// NormalizeCreateUserInput trims and normalizes input before validation.
func NormalizeCreateUserInput(input CreateUserInput) (CreateUserInput, error) {
	input.Username = NormalizeUsername(input.Username)
	if input.Username == "" {
		return CreateUserInput{}, ErrEmptyUsername
	}
	if err := ValidateUsername(input.Username); err != nil {
		return CreateUserInput{}, err
	}
	if err := ValidatePassword(input.Password); err != nil {
		return CreateUserInput{}, err
	}
	return input, nil
}

// CreateUser builds a user from validated input, hashing the password with hasher.
func CreateUser(input CreateUserInput, hasher hashing.Hasher, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if hasher == nil {
		return User{}, fmt.Errorf("password hasher is required")
	}
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateUserInput(input)
	if err != nil {
		return User{}, err
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}
	hash, err := hasher.Hash(normalized.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	createdAt := now().UTC()
	return User{
		ID:            userID,
		Username:      normalized.Username,
		PasswordHash:  hash,
		HashAlgorithm: hasher.Algorithm(),
		IsAdmin:       normalized.IsAdmin,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}, nil
}
