package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
)

const (
	// HeaderOwnerID is the header key for the owning identity
	HeaderOwnerID = "X-Owner-ID"
	// HeaderUserID is the header key for user ID
	HeaderUserID = "X-User-ID"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = appctx.SetRequestID(ctx, requestID)
			ctx = appctx.SetMethod(ctx, req.Method)
			ctx = appctx.SetRoute(ctx, req.URL.Path)
			ctx = appctx.SetRemoteIP(ctx, c.RealIP())
			ctx = appctx.SetOwnerID(ctx, req.Header.Get(HeaderOwnerID))
			ctx = appctx.SetUserID(ctx, req.Header.Get(HeaderUserID))

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
