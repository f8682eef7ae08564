package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ukydev/fleet-backoffice/internal/activity"
	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/auth"
	"github.com/ukydev/fleet-backoffice/internal/db"
	"github.com/ukydev/fleet-backoffice/internal/httpx"
	"github.com/ukydev/fleet-backoffice/internal/middleware"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

const loggedOutCookieTTL = 10 * time.Second

var (
	errRoleNotAllowed  = apperr.Forbidden("this role cannot self-register")
	errPasswordRoute   = apperr.BadRequest("this route is not for password updates, use /auth/change-password")
	errWrongPassword   = apperr.Unauthorized("your current password is wrong")
	errNoUserWithEmail = apperr.NotFound("there is no user with that email address")
	errTokenInvalid    = apperr.BadRequest("token is invalid or has expired")
	errAlreadyVerified = apperr.BadRequest("email is already verified")
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	*Deps
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(d *Deps) *AuthHandler {
	return &AuthHandler{Deps: d}
}

type updateMeRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=2,max=100"`
	Phone    *string `json:"phone"`
	Company  *string `json:"company"`
	Address  *string `json:"address"`
	Password *string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

// Register creates a client or fleet owner account and logs it in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = models.RoleClient
	}
	if !models.SelfRegistrable(req.Role) {
		h.fail(w, r, errRoleNotAllowed)
		return
	}
	if err := h.Auth.ValidatePassword(req.Password); err != nil {
		h.fail(w, r, err)
		return
	}

	if _, err := h.Users.FindUserByEmail(r.Context(), req.Email); err == nil {
		h.fail(w, r, db.ErrEmailTaken)
		return
	} else if !errors.Is(err, db.ErrUserNotFound) {
		h.fail(w, r, err)
		return
	}

	hash, err := h.Auth.HashPassword(req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	raw, hashed, err := h.Auth.NewOneTimeToken()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	user := models.User{
		Name:              strings.TrimSpace(req.Name),
		Email:             req.Email,
		Phone:             req.Phone,
		Company:           req.Company,
		PasswordHash:      hash,
		Role:              req.Role,
		VerificationToken: hashed,
	}
	if err := h.Users.InsertUser(r.Context(), &user); err != nil {
		h.fail(w, r, err)
		return
	}

	h.Notifier.EmailVerification(r.Context(), &user, raw)

	actor := models.Actor{ID: user.ID, Name: user.Name, Role: user.Role}
	h.emit(r, actor, activity.Event{
		Action:      "register",
		Category:    activity.CategoryAuth,
		Description: "registered as " + string(user.Role),
		EntityType:  "user",
		EntityID:    user.ID.Hex(),
	})
	h.sendToken(w, r, &user, http.StatusCreated)
}

// Login checks credentials and issues a JWT in the body and a cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.Users.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			err = auth.ErrInvalidCredentials
		}
		h.fail(w, r, err)
		return
	}
	if !h.Auth.CheckPassword(req.Password, user.PasswordHash) {
		h.fail(w, r, auth.ErrInvalidCredentials)
		return
	}
	if !user.IsActive {
		h.fail(w, r, auth.ErrUserInactive)
		return
	}

	if err := h.Users.UpdateLastLogin(r.Context(), user.ID); err != nil {
		h.Logger.WithError(err).WithField("user_id", user.ID.Hex()).Warn("failed to update last login")
	}

	h.emit(r, models.Actor{ID: user.ID, Name: user.Name, Role: user.Role}, activity.Event{
		Action:      "login",
		Category:    activity.CategoryAuth,
		Description: "logged in",
		EntityType:  "user",
		EntityID:    user.ID.Hex(),
	})
	h.sendToken(w, r, user, http.StatusOK)
}

// Logout revokes the presented token and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	actor, claims, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ttl := time.Until(time.Unix(claims.Exp, 0))
	if err := h.Denylist.Revoke(r.Context(), claims.TokenID, ttl); err != nil {
		h.fail(w, r, apperr.Internal("failed to log out", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    "loggedout",
		Path:     "/",
		Expires:  h.now().Add(loggedOutCookieTTL),
		HttpOnly: true,
		Secure:   h.Settings.Production,
		SameSite: http.SameSiteLaxMode,
	})
	h.emit(r, actor, activity.Event{
		Action:      "logout",
		Category:    activity.CategoryAuth,
		Description: "logged out",
		EntityType:  "user",
		EntityID:    actor.ID.Hex(),
	})
	respondMessage(w, http.StatusOK, "logged out")
}

// Me returns the current user's profile
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.Users.FindUserByID(r.Context(), actor.ID.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"user": user})
}

// UpdateMe updates the current user's own contact details. Role, email and
// password cannot be changed here.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req updateMeRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Password != nil {
		h.fail(w, r, errPasswordRoute)
		return
	}

	user, err := h.Users.FindUserByID(r.Context(), actor.ID.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Company != nil {
		user.Company = *req.Company
	}
	if req.Address != nil {
		user.Address = *req.Address
	}
	if err := h.Users.UpdateUser(r.Context(), user); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "update_profile",
		Category:    activity.CategoryUser,
		Description: "updated own profile",
		EntityType:  "user",
		EntityID:    user.ID.Hex(),
	})
	respond(w, http.StatusOK, map[string]interface{}{"user": user})
}

// ChangePassword changes the current user's password. Every token issued
// before the change stops working; the response carries a fresh one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, _, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req changePasswordRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.Users.FindUserByID(r.Context(), actor.ID.Hex())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.Auth.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		h.fail(w, r, errWrongPassword)
		return
	}
	if err := h.setPassword(r, user, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, actor, activity.Event{
		Action:      "change_password",
		Category:    activity.CategoryAuth,
		Description: "changed password",
		EntityType:  "user",
		EntityID:    user.ID.Hex(),
	})
	h.sendToken(w, r, user, http.StatusOK)
}

// VerifyEmail consumes the token sent at registration.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.FindUserByToken(r.Context(), db.VerificationToken, auth.HashToken(chi.URLParam(r, "token")))
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			err = errTokenInvalid
		}
		h.fail(w, r, err)
		return
	}
	if user.IsVerified {
		h.fail(w, r, errAlreadyVerified)
		return
	}

	user.IsVerified = true
	user.VerificationToken = ""
	if err := h.Users.UpdateUser(r.Context(), user); err != nil {
		h.fail(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "email verified")
}

// ForgotPassword stores a reset token and mails the link.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.Users.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			err = errNoUserWithEmail
		}
		h.fail(w, r, err)
		return
	}

	raw, hashed, err := h.Auth.NewOneTimeToken()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	expiry := h.Auth.ResetExpiry()
	user.ResetPasswordToken = hashed
	user.ResetPasswordExpiry = &expiry
	if err := h.Users.UpdateUser(r.Context(), user); err != nil {
		h.fail(w, r, err)
		return
	}

	h.Notifier.PasswordReset(r.Context(), user, raw)
	respondMessage(w, http.StatusOK, "token sent to email")
}

// ResetPassword sets a new password using an emailed token and logs in.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.Users.FindUserByToken(r.Context(), db.ResetPasswordToken, auth.HashToken(chi.URLParam(r, "token")))
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			err = errTokenInvalid
		}
		h.fail(w, r, err)
		return
	}

	user.ResetPasswordToken = ""
	user.ResetPasswordExpiry = nil
	if err := h.setPassword(r, user, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}

	h.emit(r, models.Actor{ID: user.ID, Name: user.Name, Role: user.Role}, activity.Event{
		Action:      "reset_password",
		Category:    activity.CategoryAuth,
		Description: "reset password",
		EntityType:  "user",
		EntityID:    user.ID.Hex(),
	})
	h.sendToken(w, r, user, http.StatusOK)
}

func (h *AuthHandler) setPassword(r *http.Request, user *models.User, password string) error {
	if err := h.Auth.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := h.Auth.HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := h.Users.UpdateUser(r.Context(), user); err != nil {
		return err
	}
	if err := h.Denylist.RevokeUser(r.Context(), user.ID.Hex(), h.Auth.TokenTTL()); err != nil {
		h.Logger.WithError(err).WithField("user_id", user.ID.Hex()).Warn("failed to revoke previous sessions")
	}
	return nil
}

func (h *AuthHandler) sendToken(w http.ResponseWriter, r *http.Request, user *models.User, status int) {
	token, err := h.Auth.GenerateToken(user)
	if err != nil {
		h.fail(w, r, apperr.Internal("failed to generate token", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  h.now().Add(h.Settings.CookieTTL),
		HttpOnly: true,
		Secure:   h.Settings.Production,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.JSON(w, status, models.LoginResponse{Status: "success", Token: token, User: *user})
}
