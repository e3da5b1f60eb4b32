package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		var domainErr models.HTTPErrorer
		var echoErr *echo.HTTPError
		switch {
		case errors.As(err, &domainErr):
			httperr := domainErr.ToHTTPError()
			code = httperror.GetStatusCode(httperr)
			message = httperr.Error()
			meta = httperr.Meta
		case httperror.IsHTTPError(err):
			httperr := httperror.ToHTTPError(err)
			code = httperror.GetStatusCode(err)
			message = httperr.Error()
			meta = httperr.Meta
		case errors.As(err, &echoErr):
			code = echoErr.Code
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			}
		}
		if meta == nil {
			meta = map[string]any{}
		}

		log := logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"status": code,
		})
		if code >= http.StatusInternalServerError {
			log.Error("api is returning an error")
		} else {
			log.Warn("api is returning an error")
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: appctx.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}
