package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/mgastelum/tubedigest-backend/api/responses"
	"github.com/mgastelum/tubedigest-backend/pkg/config"
	pkgerrors "github.com/mgastelum/tubedigest-backend/pkg/errors"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
)

// SchedulerAuth guards the internal pipeline endpoints with the static
// scheduler bearer token.
func SchedulerAuth(cfg config.SchedulerConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if cfg.Token == "" {
				responses.WriteError(ctx, logg, w,
					pkgerrors.New(pkgerrors.CodeInternal, "scheduler token is not configured"))
				return
			}

			token, err := bearerToken(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				responses.WriteError(ctx, logg, w,
					pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid scheduler token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
