// Package auth provides authentication for the callwatch API and WebSocket.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/callwatch/callwatch/internal/config"
	"github.com/callwatch/callwatch/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account already exists")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Claims represents the JWT token claims.
type Claims struct {
	AccountID string `json:"uid"`
	Username  string `json:"usr"`
	Agent     string `json:"agent"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	AccountID string
	Username  string
	Agent     string
	Role      string
}

// Service handles authentication operations.
type Service struct {
	store        store.Store
	jwtSecret    []byte
	jwtExpiry    time.Duration
	initialAdmin *config.InitialAdmin
}

// NewService creates a new auth service.
func NewService(s store.Store, cfg config.AuthConfig) *Service {
	return &Service{
		store:        s,
		jwtSecret:    []byte(cfg.JWTSecret),
		jwtExpiry:    cfg.JWTExpiry.Duration,
		initialAdmin: cfg.InitialAdmin,
	}
}

// Bootstrap creates the initial admin account if configured and absent.
func (s *Service) Bootstrap(ctx context.Context) error {
	admin := s.initialAdmin
	if admin == nil {
		return nil
	}

	existing, err := s.store.GetAccountByUsername(ctx, admin.Username)
	if err != nil {
		return fmt.Errorf("check existing account: %w", err)
	}
	if existing != nil {
		return nil // already bootstrapped
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	acct := &store.Account{
		ID:           uuid.New().String(),
		Username:     admin.Username,
		FullName:     admin.Username,
		Manager:      true,
		PasswordHash: string(hash),
		Role:         "admin",
		CreatedAt:    time.Now(),
	}

	return s.store.CreateAccount(ctx, acct)
}

// Login authenticates an account and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	acct, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("get account: %w", err)
	}
	if acct == nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.generateToken(acct)
}

// Register creates a new account with a hashed password.
func (s *Service) Register(ctx context.Context, acct *store.Account, password string) error {
	existing, err := s.store.GetAccountByUsername(ctx, acct.Username)
	if err != nil {
		return fmt.Errorf("check existing: %w", err)
	}
	if existing != nil {
		return ErrAccountExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	if acct.Role == "" {
		acct.Role = "user"
	}
	acct.PasswordHash = string(hash)
	acct.CreatedAt = time.Now()

	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// ValidateToken validates a bearer token and returns the identity it names.
func (s *Service) ValidateToken(ctx context.Context, tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}

	return &Identity{
		AccountID: claims.AccountID,
		Username:  claims.Username,
		Agent:     claims.Agent,
		Role:      claims.Role,
	}, nil
}

func (s *Service) generateToken(acct *store.Account) (string, error) {
	now := time.Now()
	claims := &Claims{
		AccountID: acct.ID,
		Username:  acct.Username,
		Agent:     acct.Agent,
		Role:      acct.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
