// Package routes holds helpers shared by the HTTP handlers in its subpackages
package routes

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindRequest binds and validates the request body into T
func BindRequest[T any](c echo.Context) (T, error) {
	var v T

	if err := c.Bind(&v); err != nil {
		return v, httperror.WrapError(http.StatusBadRequest, err)
	}

	if err := validate.Struct(v); err != nil {
		return v, httperror.WrapError(http.StatusBadRequest, err)
	}

	return v, nil
}

// OwnerID returns the authenticated owner of the request
func OwnerID(c echo.Context) (string, error) {
	ownerID := appctx.GetOwnerID(c.Request().Context())
	if ownerID == "" {
		return "", httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return ownerID, nil
}

// QueryInt reads an optional positive integer query parameter
func QueryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a positive integer", name)
	}
	return v, nil
}
