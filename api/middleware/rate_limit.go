package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/HuuThai2910/wisdom-books-sub000/api/responses"
	pkgerrors "github.com/HuuThai2910/wisdom-books-sub000/pkg/errors"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/logger"
)

// WindowLimiter is the fixed-window counter behind UserRateLimit.
type WindowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy caps cart events per authenticated user within a fixed window.
type RateLimitPolicy struct {
	Window time.Duration
	Limit  int
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && p.Limit > 0
}

// UserRateLimit throttles cart events per user. It must run after Auth. When
// the limiter is unavailable requests pass through so a Redis outage never
// blocks the cart page.
func UserRateLimit(policy RateLimitPolicy, limiter WindowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, count, err := limiter.FixedWindowAllow(ctx, "cart:user:"+userID, int64(policy.Limit), policy.Window)
			if err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "cart.rate_limit.unavailable")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"attempts":       count,
						"limit":          policy.Limit,
						"window_seconds": int(policy.Window.Seconds()),
					}), "cart.rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many cart updates, slow down"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
