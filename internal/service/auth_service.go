package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/genimage/internal/config"
	"github.com/example/genimage/internal/models"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameLength     = errors.New("username must be between 3 and 20 characters")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters")
)

// UserStore persists account records.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// AuthService issues and verifies the bearer tokens that identify callers.
type AuthService struct {
	cfg   config.Config
	users UserStore
}

func NewAuthService(cfg config.Config, users UserStore) *AuthService {
	return &AuthService{cfg: cfg, users: users}
}

func (s *AuthService) Register(ctx context.Context, username, password string) error {
	if len(username) < 3 || len(username) > 20 {
		return ErrUsernameLength
	}
	if len(password) < 6 {
		return ErrPasswordTooShort
	}

	existing, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("lookup username: %w", err)
	}
	if existing != nil {
		return ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.users.Create(ctx, &models.User{Username: username, PasswordHash: string(hash)}); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Login verifies credentials and returns a signed token carrying the user id.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("lookup username: %w", err)
	}
	if user == nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTTTL)),
	})
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a bearer token and returns the authenticated user id.
func (s *AuthService) VerifyToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return 0, fmt.Errorf("token subject: %w", err)
	}
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("token subject %q is not a user id", subject)
	}
	return userID, nil
}
