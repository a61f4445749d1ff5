package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/webutil"
)

// IngestTokenHeader carries the shared secret for the internal save-data endpoint
const IngestTokenHeader = "X-Ingest-Token"

// identityClaims are the non-registered claims read from the identity provider's token
type identityClaims struct {
	Email string `json:"email"`
}

func (c *identityClaims) Validate(context.Context) error {
	return nil
}

// newJWTMiddleware validates HS256 bearer tokens issued by the identity provider
func newJWTMiddleware(secret, issuer, audience string, logger *zap.Logger) (*jwtmiddleware.JWTMiddleware, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	keyFunc := func(context.Context) (interface{}, error) {
		return []byte(secret), nil
	}

	jwtValidator, err := validator.New(
		keyFunc,
		validator.HS256,
		issuer,
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims { return &identityClaims{} }),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up jwt validator: %w", err)
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Debug("rejected request token", zap.String("path", r.URL.Path), zap.Error(err))
		_ = webutil.RespondWithJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	return jwtmiddleware.New(jwtValidator.ValidateToken, jwtmiddleware.WithErrorHandler(errorHandler)), nil
}

// requesterID returns the account id of the authenticated caller: the email
// claim, falling back to the subject
func requesterID(r *http.Request) (string, error) {
	claims, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	if !ok {
		return "", webutil.ErrUnauthorized("")
	}

	if custom, ok := claims.CustomClaims.(*identityClaims); ok && custom.Email != "" {
		return custom.Email, nil
	}
	if claims.RegisteredClaims.Subject != "" {
		return claims.RegisteredClaims.Subject, nil
	}
	return "", webutil.ErrUnauthorized("")
}

// requireIngestToken guards internal endpoints with a shared secret. An empty
// token leaves the endpoint open.
func requireIngestToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(IngestTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				_ = webutil.RespondWithMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
