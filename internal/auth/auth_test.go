package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/models"
)

const testSecret = "test-secret"

func newTestService(t *testing.T) *Service {
	t.Helper()
	service, err := NewService(testSecret, time.Hour)
	require.NoError(t, err)
	return service
}

func testUser() *models.User {
	return &models.User{
		ID:    primitive.NewObjectID(),
		Name:  "Test User",
		Email: "test@example.com",
		Role:  models.RoleAdmin,
	}
}

func TestNewService(t *testing.T) {
	service, err := NewService(testSecret, 0)
	assert.NoError(t, err)
	assert.NotNil(t, service)
	assert.Equal(t, 24*time.Hour, service.TokenTTL())

	_, err = NewService("", time.Hour)
	assert.Error(t, err)
}

func TestService_HashPassword(t *testing.T) {
	service := newTestService(t)

	password := "testpassword123"
	hash, err := service.HashPassword(password)

	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)
}

func TestService_CheckPassword(t *testing.T) {
	service := newTestService(t)

	password := "testpassword123"
	hash, _ := service.HashPassword(password)

	// Test correct password
	assert.True(t, service.CheckPassword(password, hash))

	// Test incorrect password
	assert.False(t, service.CheckPassword("wrongpassword", hash))
}

func TestService_TokenIssuedAtMillis(t *testing.T) {
	service := newTestService(t)
	issued := time.Date(2026, 5, 1, 12, 0, 0, 750*int(time.Millisecond), time.UTC)
	service.now = func() time.Time { return issued }

	token, err := service.GenerateToken(testUser())
	require.NoError(t, err)
	claims, err := service.ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, issued.Unix(), claims.IssuedAt)
	assert.True(t, issued.Equal(claims.Issued()))

	legacy := models.Claims{IssuedAt: issued.Unix()}
	assert.True(t, issued.Truncate(time.Second).Equal(legacy.Issued()))
}

func TestService_ValidateToken(t *testing.T) {
	service := newTestService(t)
	user := testUser()

	token, err := service.GenerateToken(user)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	assert.NoError(t, err)
	require.NotNil(t, claims)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.Name, claims.Name)
	assert.Equal(t, user.Role, claims.Role)
	assert.NotEmpty(t, claims.TokenID)
	assert.NotZero(t, claims.IssuedAt)
	assert.Equal(t, claims.IssuedAt, claims.IssuedAtMs/1000)

	// Test invalid token
	_, err = service.ValidateToken("invalid-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Test token with Bearer prefix
	_, err = service.ValidateToken("Bearer " + token)
	assert.NoError(t, err)

	other, _ := NewService("other-secret", time.Hour)
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_ValidateToken_UniqueIDs(t *testing.T) {
	service := newTestService(t)
	user := testUser()

	a, _ := service.GenerateToken(user)
	b, _ := service.GenerateToken(user)
	ca, err := service.ValidateToken(a)
	require.NoError(t, err)
	cb, err := service.ValidateToken(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.TokenID, cb.TokenID)
}

func TestService_ValidateToken_Rejects(t *testing.T) {
	service := newTestService(t)

	sign := func(claims jwt.MapClaims, method jwt.SigningMethod) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return s
	}
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"user_id": primitive.NewObjectID().Hex(),
			"role":    "admin",
			"jti":     "abc",
			"exp":     time.Now().Add(time.Hour).Unix(),
		}
	}

	badRole := valid()
	badRole["role"] = "root"
	_, err := service.ValidateToken(sign(badRole, jwt.SigningMethodHS256))
	assert.ErrorIs(t, err, ErrInvalidToken)

	noUser := valid()
	delete(noUser, "user_id")
	_, err = service.ValidateToken(sign(noUser, jwt.SigningMethodHS384))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = service.ValidateToken(sign(valid(), jwt.SigningMethodHS512))
	assert.NoError(t, err)
}

func TestService_TokenExpiration(t *testing.T) {
	service := newTestService(t)
	user := testUser()

	token, _ := service.GenerateToken(user)

	// Token should be valid immediately
	claims, err := service.ValidateToken(token)
	assert.NoError(t, err)
	require.NotNil(t, claims)

	now := time.Now().Unix()
	assert.Greater(t, claims.Exp, now)
	assert.LessOrEqual(t, claims.Exp, now+int64(service.tokenExp.Seconds())+1)

	service.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestService_ExtractTokenFromHeader(t *testing.T) {
	service := newTestService(t)

	// Test valid header
	extracted, err := service.ExtractTokenFromHeader("Bearer valid-token")
	assert.NoError(t, err)
	assert.Equal(t, "valid-token", extracted)

	// Test empty header
	_, err = service.ExtractTokenFromHeader("")
	assert.ErrorIs(t, err, ErrMissingToken)

	// Test invalid format
	_, err = service.ExtractTokenFromHeader("InvalidFormat")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Test missing token
	_, err = service.ExtractTokenFromHeader("Bearer ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_ValidatePassword(t *testing.T) {
	service := newTestService(t)

	assert.NoError(t, service.ValidatePassword("validpassword123"))

	err := service.ValidatePassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)
	assert.Contains(t, err.Error(), "at least 8 characters")
}

func TestService_NewOneTimeToken(t *testing.T) {
	service := newTestService(t)

	raw, hashed, err := service.NewOneTimeToken()
	assert.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Equal(t, HashToken(raw), hashed)
	assert.NotEqual(t, raw, hashed)

	raw2, _, _ := service.NewOneTimeToken()
	assert.NotEqual(t, raw, raw2)

	assert.WithinDuration(t, time.Now().Add(10*time.Minute), service.ResetExpiry(), time.Second)
}
