package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mgastelum/tubedigest-backend/api/responses"
	pkgauth "github.com/mgastelum/tubedigest-backend/pkg/auth"
	"github.com/mgastelum/tubedigest-backend/pkg/config"
	pkgerrors "github.com/mgastelum/tubedigest-backend/pkg/errors"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
)

// UserProvisioner loads the user row for an authenticated request,
// creating it on first sight.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, id uuid.UUID, email string) (*models.User, error)
}

// Auth validates the bearer JWT, provisions the user row on first
// authenticated request, and stamps the user id onto the context.
func Auth(cfg config.JWTConfig, users UserProvisioner, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, err := bearerToken(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(ctx, logg, w,
					pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token"))
				return
			}
			if claims.UserID == uuid.Nil {
				responses.WriteError(ctx, logg, w,
					pkgerrors.New(pkgerrors.CodeUnauthorized, "token missing user id"))
				return
			}

			if users != nil {
				if _, err := users.EnsureUser(ctx, claims.UserID, claims.Email); err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
			}

			ctx = WithUserID(ctx, claims.UserID)
			ctx = WithUserEmail(ctx, claims.Email)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "malformed authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
