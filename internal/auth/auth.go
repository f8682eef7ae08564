package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

var (
	ErrInvalidToken       = apperr.Unauthorized("invalid token, please log in again")
	ErrExpiredToken       = apperr.Unauthorized("your token has expired, please log in again")
	ErrRevokedToken       = apperr.Unauthorized("this session has been logged out")
	ErrMissingToken       = apperr.Unauthorized("you are not logged in")
	ErrInvalidCredentials = apperr.Unauthorized("incorrect email or password")
	ErrUserInactive       = apperr.Unauthorized("account is deactivated")
	ErrWeakPassword       = apperr.BadRequest("password must be at least 8 characters long")
)

const (
	minPasswordLength = 8
	resetTokenTTL     = 10 * time.Minute
)

// Service handles authentication operations
type Service struct {
	jwtSecret []byte
	tokenExp  time.Duration
	now       func() time.Time
}

// NewService creates a new authentication service
func NewService(secret string, tokenExp time.Duration) (*Service, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is empty")
	}
	if tokenExp <= 0 {
		tokenExp = 24 * time.Hour
	}
	return &Service{
		jwtSecret: []byte(secret),
		tokenExp:  tokenExp,
		now:       time.Now,
	}, nil
}

// TokenTTL is the lifetime of issued access tokens.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenExp
}

// HashPassword hashes a password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword checks if a password matches a hash
func (s *Service) CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateToken generates a JWT token for a user
func (s *Service) GenerateToken(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": user.ID.Hex(),
		"email":   user.Email,
		"name":    user.Name,
		"role":    string(user.Role),
		"jti":     uuid.NewString(),
		"exp":     now.Add(s.tokenExp).Unix(),
		"iat":     now.Unix(),
		"iat_ms":  now.UnixMilli(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*models.Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidToken
	}
	roleStr, ok := claims["role"].(string)
	if !ok || !models.IsValidRole(models.Role(roleStr)) {
		return nil, ErrInvalidToken
	}
	jti, ok := claims["jti"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}
	iat, _ := claims["iat"].(float64)
	iatMs, _ := claims["iat_ms"].(float64)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)

	return &models.Claims{
		UserID:     userID,
		Email:      email,
		Name:       name,
		Role:       models.Role(roleStr),
		TokenID:    jti,
		IssuedAt:   int64(iat),
		IssuedAtMs: int64(iatMs),
		Exp:        int64(exp),
	}, nil
}

// ExtractTokenFromHeader extracts token from Authorization header
func (s *Service) ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrInvalidToken
	}

	return parts[1], nil
}

// ValidatePassword validates password strength
func (s *Service) ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// NewOneTimeToken returns a random token for an email link and the hash
// stored on the user. Only the hash is persisted.
func (s *Service) NewOneTimeToken() (raw, hashed string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, HashToken(raw), nil
}

// ResetExpiry is when a password reset token issued now stops working.
func (s *Service) ResetExpiry() time.Time {
	return s.now().Add(resetTokenTTL)
}

// HashToken hashes a one-time token for storage and lookup.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
