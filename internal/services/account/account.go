// Package account handles registration, login, and session token
// verification for chat users.
package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/critterchat/critterchat/internal/platform/errors"
	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 8
	// DefaultTokenTTL bounds how long a session token stays valid.
	DefaultTokenTTL = 30 * 24 * time.Hour

	tokenIssuer = "critterchat"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// Store is the persistence surface the account service needs.
type Store interface {
	CreateUser(ctx context.Context, user entity.User, passwordHash string) (entity.User, error)
	GetCredentials(ctx context.Context, username string) (entity.User, string, error)
	GetUser(ctx context.Context, id ident.UserID) (entity.User, error)
}

// Service issues and verifies credentials. Passwords are stored as bcrypt
// hashes; sessions ride on signed tokens so verification needs no lookup
// beyond the user record.
type Service struct {
	store    Store
	secret   []byte
	tokenTTL time.Duration
	cost     int
}

// Option adjusts service construction.
type Option func(*Service)

// WithTokenTTL overrides the session token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) { s.tokenTTL = ttl }
}

// WithBcryptCost overrides the hashing cost. Tests use the minimum cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// New creates an account service. secret signs session tokens and must be
// non-empty.
func New(store Store, secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("session secret is required")
	}
	s := &Service{
		store:    store,
		secret:   secret,
		tokenTTL: DefaultTokenTTL,
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a new account.
func (s *Service) Register(ctx context.Context, username, password string) (entity.User, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return entity.User{}, apperrors.New(apperrors.CodeUsernameEmpty, "username is required")
	}
	if !usernamePattern.MatchString(username) {
		return entity.User{}, apperrors.WithMetadata(apperrors.CodeUsernameEmpty, "username has invalid characters", map[string]string{
			"username": username,
		})
	}
	if len(password) < MinPasswordLength {
		return entity.User{}, apperrors.New(apperrors.CodePasswordTooShort, "password is too short")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return entity.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, entity.User{Username: username}, string(hash))
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return entity.User{}, apperrors.New(apperrors.CodeUsernameTaken, "username is taken")
		}
		return entity.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and returns the user with a fresh session token.
// Unknown usernames and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (entity.User, string, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	user, hash, err := s.store.GetCredentials(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return entity.User{}, "", apperrors.New(apperrors.CodeCredentialsInvalid, "invalid credentials")
		}
		return entity.User{}, "", fmt.Errorf("load credentials: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return entity.User{}, "", apperrors.New(apperrors.CodeCredentialsInvalid, "invalid credentials")
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return entity.User{}, "", err
	}
	return user, token, nil
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (entity.User, error) {
	userID, err := s.verifyToken(token)
	if err != nil {
		return entity.User{}, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return entity.User{}, apperrors.New(apperrors.CodeTokenInvalid, "session user no longer exists")
		}
		return entity.User{}, fmt.Errorf("load session user: %w", err)
	}
	return user, nil
}

func (s *Service) issueToken(userID ident.UserID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID.Token(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

func (s *Service) verifyToken(token string) (ident.UserID, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return ident.NewUserID, apperrors.Wrap(apperrors.CodeTokenInvalid, "invalid session token", err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return ident.NewUserID, apperrors.New(apperrors.CodeTokenInvalid, "invalid session token")
	}
	userID, err := ident.ParseUserID(claims.Subject)
	if err != nil {
		return ident.NewUserID, apperrors.Wrap(apperrors.CodeTokenInvalid, "invalid session subject", err)
	}
	return userID, nil
}
