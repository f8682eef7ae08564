package middleware

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/auth"
	"github.com/ukydev/fleet-backoffice/internal/httpx"
	"github.com/ukydev/fleet-backoffice/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	UserContextKey contextKey = "user"

	// CookieName is the browser session cookie carrying the JWT.
	CookieName = "jwt"
)

var (
	ErrNoUserContext    = apperr.Unauthorized("you are not logged in")
	ErrForbidden        = apperr.Forbidden("you do not have permission to perform this action")
	ErrUserGone         = apperr.Unauthorized("the user belonging to this token no longer exists")
	ErrPasswordChanged  = apperr.Unauthorized("password was changed recently, please log in again")
	errDenylistDegraded = "token denylist unavailable"
)

// UserLookup loads the account behind a token.
type UserLookup interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authService *auth.Service
	denylist    auth.Denylist
	users       UserLookup
	logger      log.FieldLogger
}

// NewAuthMiddleware creates a new authentication middleware. users may be
// nil, in which case tokens are trusted without an account lookup.
func NewAuthMiddleware(authService *auth.Service, denylist auth.Denylist, users UserLookup, logger log.FieldLogger) *AuthMiddleware {
	if denylist == nil {
		denylist = auth.NewMemoryDenylist()
	}
	return &AuthMiddleware{
		authService: authService,
		denylist:    denylist,
		users:       users,
		logger:      logger,
	}
}

// TokenFromRequest reads the bearer header, falling back to the jwt cookie.
func (m *AuthMiddleware) TokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		return m.authService.ExtractTokenFromHeader(header)
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" && c.Value != "loggedout" {
		return c.Value, nil
	}
	return "", auth.ErrMissingToken
}

// Authenticate validates JWT tokens and adds user context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := m.TokenFromRequest(r)
		if err != nil {
			httpx.Error(w, r, m.logger, err)
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			httpx.Error(w, r, m.logger, err)
			return
		}

		if err := m.checkRevoked(r.Context(), claims); err != nil {
			httpx.Error(w, r, m.logger, err)
			return
		}

		if m.users != nil {
			user, err := m.users.FindUserByID(r.Context(), claims.UserID)
			if err != nil || !user.IsActive {
				httpx.Error(w, r, m.logger, ErrUserGone)
				return
			}
			claims.Name = user.Name
			claims.Role = user.Role
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
	})
}

// checkRevoked consults the denylist. A denylist outage is logged and the
// token is accepted on its signature alone.
func (m *AuthMiddleware) checkRevoked(ctx context.Context, claims *models.Claims) error {
	revoked, err := m.denylist.IsRevoked(ctx, claims.TokenID)
	if err == nil && revoked {
		return auth.ErrRevokedToken
	}
	if err == nil {
		revoked, err = m.denylist.IsUserRevoked(ctx, claims.UserID, claims.Issued())
		if err == nil && revoked {
			return ErrPasswordChanged
		}
	}
	if err != nil && m.logger != nil {
		m.logger.WithError(err).Warn(errDenylistDegraded)
	}
	return nil
}

// RequireRole middleware checks if the user has one of the given roles
func (m *AuthMiddleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			if !ok {
				httpx.Error(w, r, m.logger, ErrNoUserContext)
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Error(w, r, m.logger, ErrForbidden)
		})
	}
}

// RequirePermission middleware checks if the user has the required permission
func (m *AuthMiddleware) RequirePermission(requiredAction string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			if !ok {
				httpx.Error(w, r, m.logger, ErrNoUserContext)
				return
			}

			if !models.RoleAllows(claims.Role, requiredAction) {
				httpx.Error(w, r, m.logger, ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithUser stores claims in ctx.
func WithUser(ctx context.Context, claims *models.Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*models.Claims)
	return claims, ok && claims != nil
}
