package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type UserClaims struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	OwnerID string `json:"owner_id"`
}

// TokenVerifier turns a raw bearer token into verified claims
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*UserClaims, error)
}

// OIDCVerifier verifies ID tokens against an OpenID Connect issuer
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (*UserClaims, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}

	var claims UserClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("cannot parse claims: %w", err)
	}
	return &claims, nil
}

// Authentication requires a bearer token and replaces the header identity with the token's. The
// owner is the owner_id claim, or the subject when the claim is absent.
func Authentication(logger ectologger.Logger, verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracing.StartSpan(c.Request().Context(), "middleware.Authentication")
			defer span.End()

			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				logger.WithContext(ctx).Warn("request is missing bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer")
			}

			raw := strings.TrimPrefix(auth, "Bearer ")
			verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			claims, err := verifier.Verify(verifyCtx, raw)
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("token is invalid")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ownerID := claims.OwnerID
			if ownerID == "" {
				ownerID = claims.Sub
			}
			if ownerID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}

			ctx = appctx.SetUserID(ctx, claims.Sub)
			ctx = appctx.SetOwnerID(ctx, ownerID)

			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
