// Package auth issues and checks the bearer tokens that guard the status API.
// Tokens are HS256 JWTs naming the client they were issued to.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is set on every token.
const Issuer = "flight-display"

var (
	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrNoSecret is returned when tokens are requested without a secret
	ErrNoSecret = errors.New("no signing secret configured")
)

// Claims represents the JWT claims for a status API client
type Claims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// Config holds authentication configuration
type Config struct {
	JWTSecret     string        // Secret key for signing JWTs
	TokenDuration time.Duration // How long tokens are valid
}

// Service provides token operations
type Service struct {
	config Config
	now    func() time.Time
}

// NewService creates a new authentication service
func NewService(cfg Config) *Service {
	// Default token duration is 30 days; dashboards hold tokens for a long time
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = 30 * 24 * time.Hour
	}

	return &Service{
		config: cfg,
		now:    time.Now,
	}
}

// GenerateToken generates a JWT token for a client
func (s *Service) GenerateToken(client string) (string, error) {
	if s.config.JWTSecret == "" {
		return "", ErrNoSecret
	}

	now := s.now()
	claims := &Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

type ctxKey struct{}

// ClientFrom returns the client name stored by Middleware.
func ClientFrom(ctx context.Context) string {
	client, _ := ctx.Value(ctxKey{}).(string)
	return client
}

// Middleware rejects requests without a valid "Bearer <token>" header.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := s.ValidateToken(token)
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, claims.Client)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
