// AngelaMos | 2026
// auth.go

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/promptstudio/api/internal/core"
)

const (
	UserIDKey     contextKey = "user_id"
	UserPlanKey   contextKey = "user_plan"
	ClaimsKey     contextKey = "jwt_claims"
	AdminEmailKey contextKey = "admin_email"
)

type TokenVerifier interface {
	VerifyAccessToken(
		ctx context.Context,
		token string,
	) (*AccessTokenClaims, error)
}

// AdminResolver decides whether the authenticated user may use admin
// routes and returns the identity recorded on their decisions.
type AdminResolver interface {
	ResolveAdmin(ctx context.Context, userID string) (string, error)
}

type AccessTokenClaims struct {
	UserID       string
	Plan         string
	TokenVersion int
	TokenID      string
	ExpiresAt    time.Time
}

func Authenticator(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)

			if token == "" {
				core.JSONError(
					w,
					core.UnauthorizedError("missing authorization token"),
				)
				return
			}

			claims, err := verifier.VerifyAccessToken(r.Context(), token)
			if err != nil {
				handleAuthError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin must run after Authenticator. The admin check is made
// against the stored account on every request, so revoking the flag takes
// effect without waiting for tokens to expire.
func RequireAdmin(resolver AdminResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())

			if userID == "" {
				core.JSONError(
					w,
					core.UnauthorizedError("authentication required"),
				)
				return
			}

			email, err := resolver.ResolveAdmin(r.Context(), userID)
			if err != nil {
				switch {
				case errors.Is(err, core.ErrForbidden):
					core.JSONError(w, core.ForbiddenError("admin access required"))
				case errors.Is(err, core.ErrUnauthorized):
					core.JSONError(w, core.UnauthorizedError("authentication required"))
				default:
					core.InternalServerError(w, err)
				}
				return
			}

			ctx := context.WithValue(r.Context(), AdminEmailKey, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func withClaims(
	ctx context.Context,
	claims *AccessTokenClaims,
) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, UserPlanKey, claims.Plan)
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return ctx
}

func handleAuthError(w http.ResponseWriter, err error) {
	if core.IsAppError(err) {
		core.JSONError(w, err)
		return
	}

	switch {
	case errors.Is(err, core.ErrTokenExpired):
		core.JSONError(w, core.TokenExpiredError())
	case errors.Is(err, core.ErrTokenRevoked):
		core.JSONError(w, core.TokenRevokedError())
	case errors.Is(err, core.ErrTokenInvalid):
		core.JSONError(w, core.TokenInvalidError())
	default:
		core.JSONError(w, core.TokenInvalidError())
	}
}

func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

func GetUserPlan(ctx context.Context) string {
	if plan, ok := ctx.Value(UserPlanKey).(string); ok {
		return plan
	}
	return ""
}

func GetClaims(ctx context.Context) *AccessTokenClaims {
	if claims, ok := ctx.Value(ClaimsKey).(*AccessTokenClaims); ok {
		return claims
	}
	return nil
}

// GetAdminEmail is only set on routes guarded by RequireAdmin.
func GetAdminEmail(ctx context.Context) string {
	if email, ok := ctx.Value(AdminEmailKey).(string); ok {
		return email
	}
	return ""
}

// WithUserID is used by tests and internal callers that act on behalf of a
// known user without a token.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withClaims(ctx, &AccessTokenClaims{UserID: userID})
}
