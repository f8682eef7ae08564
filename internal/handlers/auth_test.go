package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/middleware"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

func decodeLogin(t *testing.T, body []byte) models.LoginResponse {
	t.Helper()
	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	env.users.On("FindUserByEmail", mock.Anything, "asha@example.com").Return(nil, db.ErrUserNotFound)
	env.users.On("InsertUser", mock.Anything, mock.AnythingOfType("*models.User")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.User).ID = primitive.NewObjectID()
		}).Return(nil)
	env.notifier.On("EmailVerification", mock.Anything, mock.AnythingOfType("*models.User"), mock.AnythingOfType("string")).Return()

	w := env.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name":     "Asha Traders",
		"email":    "asha@example.com",
		"password": "password123",
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeLogin(t, w.Body.Bytes())
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, models.RoleClient, resp.User.Role)

	inserted := env.users.Calls[1].Arguments.Get(1).(*models.User)
	assert.NotEqual(t, "password123", inserted.PasswordHash)
	assert.NotEmpty(t, inserted.VerificationToken)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, []string{"register"}, env.events.actions())
	env.notifier.AssertExpectations(t)
}

func TestRegisterRejections(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		setup  func(env *testEnv)
		status int
	}{
		{
			name:   "driver cannot self-register",
			body:   map[string]string{"name": "Ravi", "email": "ravi@example.com", "password": "password123", "role": "driver"},
			status: http.StatusForbidden,
		},
		{
			name:   "short password",
			body:   map[string]string{"name": "Ravi", "email": "ravi@example.com", "password": "short"},
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid email",
			body:   map[string]string{"name": "Ravi", "email": "not-an-email", "password": "password123"},
			status: http.StatusBadRequest,
		},
		{
			name: "email taken",
			body: map[string]string{"name": "Ravi", "email": "ravi@example.com", "password": "password123"},
			setup: func(env *testEnv) {
				env.users.On("FindUserByEmail", mock.Anything, "ravi@example.com").Return(newTestUser(models.RoleClient), nil)
			},
			status: http.StatusConflict,
		},
		{
			name:   "malformed json",
			body:   `{"name":`,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}
			w := env.do(http.MethodPost, "/api/v1/auth/register", tt.body, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			env.users.AssertNotCalled(t, "InsertUser", mock.Anything, mock.Anything)
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	hash, err := env.authSvc.HashPassword("password123")
	require.NoError(t, err)
	user := newTestUser(models.RoleDriver)
	user.PasswordHash = hash

	env.users.On("FindUserByEmail", mock.Anything, user.Email).Return(user, nil)
	env.users.On("UpdateLastLogin", mock.Anything, user.ID).Return(nil)

	w := env.do(http.MethodPost, "/api/v1/auth/login", models.LoginRequest{Email: user.Email, Password: "password123"}, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeLogin(t, w.Body.Bytes())
	claims, err := env.authSvc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.Equal(t, models.RoleDriver, claims.Role)
	assert.NotContains(t, w.Body.String(), hash)
	env.users.AssertExpectations(t)
}

func TestLoginFailures(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		env := newTestEnv(t)
		env.users.On("FindUserByEmail", mock.Anything, "ghost@example.com").Return(nil, db.ErrUserNotFound)

		w := env.do(http.MethodPost, "/api/v1/auth/login", models.LoginRequest{Email: "ghost@example.com", Password: "password123"}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		env := newTestEnv(t)
		hash, err := env.authSvc.HashPassword("password123")
		require.NoError(t, err)
		user := newTestUser(models.RoleClient)
		user.PasswordHash = hash
		env.users.On("FindUserByEmail", mock.Anything, user.Email).Return(user, nil)

		w := env.do(http.MethodPost, "/api/v1/auth/login", models.LoginRequest{Email: user.Email, Password: "wrongpass1"}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		env.users.AssertNotCalled(t, "UpdateLastLogin", mock.Anything, mock.Anything)
	})

	t.Run("inactive account", func(t *testing.T) {
		env := newTestEnv(t)
		hash, err := env.authSvc.HashPassword("password123")
		require.NoError(t, err)
		user := newTestUser(models.RoleClient)
		user.PasswordHash = hash
		user.IsActive = false
		env.users.On("FindUserByEmail", mock.Anything, user.Email).Return(user, nil)

		w := env.do(http.MethodPost, "/api/v1/auth/login", models.LoginRequest{Email: user.Email, Password: "password123"}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	user := newTestUser(models.RoleClient)
	env.users.On("FindUserByID", mock.Anything, user.ID.Hex()).Return(user, nil)

	token, err := env.authSvc.GenerateToken(user)
	require.NoError(t, err)
	send := func(method, path string) int {
		req, _ := http.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return env.send(req, nil).Code
	}

	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/api/v1/auth/me"))
	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/v1/auth/logout"))
	assert.Equal(t, http.StatusUnauthorized, send(http.MethodGet, "/api/v1/auth/me"))
}

func TestUpdateMeRefusesPassword(t *testing.T) {
	env := newTestEnv(t)
	user := newTestUser(models.RoleClient)

	w := env.do(http.MethodPatch, "/api/v1/auth/me", map[string]string{"password": "password123"}, user)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "/auth/change-password")
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	hash, err := env.authSvc.HashPassword("password123")
	require.NoError(t, err)
	user := newTestUser(models.RoleFleetOwner)
	user.PasswordHash = hash
	env.users.On("FindUserByID", mock.Anything, user.ID.Hex()).Return(user, nil)
	env.users.On("UpdateUser", mock.Anything, user).Return(nil)

	t.Run("wrong current password", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/auth/change-password", map[string]string{
			"current_password": "nope-nope",
			"new_password":     "newpassword1",
		}, user)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/auth/change-password", map[string]string{
			"current_password": "password123",
			"new_password":     "newpassword1",
		}, user)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, env.authSvc.CheckPassword("newpassword1", user.PasswordHash))
		assert.Contains(t, env.events.actions(), "change_password")
	})
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	env.users.On("FindUserByEmail", mock.Anything, "ghost@example.com").Return(nil, db.ErrUserNotFound)

	w := env.do(http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"email": "ghost@example.com"}, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	env.notifier.AssertNotCalled(t, "PasswordReset", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	user := newTestUser(models.RoleClient)
	user.ResetPasswordToken = "stored-hash"

	raw, hashed, err := env.authSvc.NewOneTimeToken()
	require.NoError(t, err)
	env.users.On("FindUserByToken", mock.Anything, db.ResetPasswordToken, hashed).Return(user, nil)
	env.users.On("FindUserByToken", mock.Anything, db.ResetPasswordToken, mock.Anything).Return(nil, db.ErrUserNotFound)
	env.users.On("UpdateUser", mock.Anything, user).Return(nil)

	w := env.do(http.MethodPost, "/api/v1/auth/reset-password/bogus", map[string]string{"password": "brandnew123"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/v1/auth/reset-password/"+raw, map[string]string{"password": "brandnew123"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, user.ResetPasswordToken)
	assert.True(t, env.authSvc.CheckPassword("brandnew123", user.PasswordHash))
}

func TestVerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	user := newTestUser(models.RoleClient)
	raw, hashed, err := env.authSvc.NewOneTimeToken()
	require.NoError(t, err)
	user.VerificationToken = hashed
	env.users.On("FindUserByToken", mock.Anything, db.VerificationToken, hashed).Return(user, nil)
	env.users.On("UpdateUser", mock.Anything, user).Return(nil)

	w := env.do(http.MethodGet, "/api/v1/auth/verify-email/"+raw, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, user.IsVerified)
	assert.Empty(t, user.VerificationToken)

	w = env.do(http.MethodGet, "/api/v1/auth/verify-email/"+raw, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
