package middleware

import (
	"net/http"
	"strings"

	"github.com/HuuThai2910/wisdom-books-sub000/api/responses"
	pkgAuth "github.com/HuuThai2910/wisdom-books-sub000/pkg/auth"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/config"
	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/logger"
)

// Auth validates the storefront bearer token and seeds the request context
// with the user id and the raw token, which is forwarded to the cart service.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID())
			ctx = WithAccessToken(ctx, token)

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    claims.UserID(),
					"actor_role": string(claims.Role),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
