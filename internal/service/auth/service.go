package auth

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nimbuschat/backend/internal/config"
	"github.com/nimbuschat/backend/internal/model/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// staticCredentials is the single fixed account this deployment accepts. A
// real user store would slot in behind Login without changing callers.
var staticCredentials = struct {
	Username string
	Password string
	ID       string
}{
	Username: "admin",
	Password: "password",
	ID:       "1",
}

// Service issues and validates access tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService builds the auth service from configuration.
func NewService(cfg config.AuthConfig) *Service {
	return &Service{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
	}
}

// Login checks the credential pair and returns a signed token on success.
func (s *Service) Login(req user.LoginRequest) (user.LoginResponse, error) {
	if req.Username != staticCredentials.Username || req.Password != staticCredentials.Password {
		log.Printf("[auth] failed login attempt for user: %s", req.Username)
		return user.LoginResponse{}, ErrInvalidCredentials
	}

	usr := user.User{
		ID:       staticCredentials.ID,
		Username: staticCredentials.Username,
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      usr.ID,
		"username": usr.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(s.ttl).Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return user.LoginResponse{}, fmt.Errorf("failed to sign token: %w", err)
	}

	log.Printf("[auth] successful login for user: %s", usr.Username)
	return user.LoginResponse{AccessToken: token, User: usr}, nil
}

// Validate parses a bearer token and returns the authenticated user.
func (s *Service) Validate(tokenString string) (user.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return user.User{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return user.User{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	username, _ := claims["username"].(string)
	if sub == "" {
		return user.User{}, ErrInvalidToken
	}

	return user.User{ID: sub, Username: username}, nil
}
