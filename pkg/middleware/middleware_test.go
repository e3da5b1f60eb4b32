package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeVerifier struct {
	claims *UserClaims
	err    error
}

func (v fakeVerifier) Verify(context.Context, string) (*UserClaims, error) {
	return v.claims, v.err
}

func identityHandler(c echo.Context) error {
	ctx := c.Request().Context()
	return c.JSON(http.StatusOK, map[string]string{
		"owner":   appctx.GetOwnerID(ctx),
		"user":    appctx.GetUserID(ctx),
		"request": appctx.GetRequestID(ctx),
	})
}

func TestContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderOwnerID, "owner-1")
	req.Header.Set(HeaderUserID, "alice")
	rec := httptest.NewRecorder()

	err := Context()(identityHandler)(e.NewContext(req, rec))
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "owner-1", body["owner"])
	assert.Equal(t, "alice", body["user"])
	assert.NotEmpty(t, body["request"])
	assert.Equal(t, body["request"], rec.Header().Get(echo.HeaderXRequestID))
}

func TestError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
		meta    map[string]any
	}{
		{name: "not found", err: models.NotFound("batch %s not found", "b1"), code: http.StatusNotFound, message: "batch b1 not found"},
		{name: "conflict", err: models.Conflict("busy"), code: http.StatusConflict, message: "busy"},
		{name: "parse error carries batch", err: &models.ParseError{BatchID: "b1", Reason: "missing required headers: direction"}, code: http.StatusBadRequest, message: "failed to parse CSV: missing required headers: direction", meta: map[string]any{"batch_id": "b1"}},
		{name: "echo error", err: echo.NewHTTPError(http.StatusUnauthorized, "missing bearer"), code: http.StatusUnauthorized, message: "missing bearer"},
		{name: "plain error", err: errors.New("boom"), code: http.StatusInternalServerError, message: "Internal Server Error"},
		{name: "wrapped http error", err: httperror.NewHTTPError(http.StatusBadRequest, "bad"), code: http.StatusBadRequest, message: "bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			Error(testLogger())(tt.err, c)

			assert.Equal(t, tt.code, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body.Message, tt.message)
			for k, v := range tt.meta {
				assert.Equal(t, v, body.Meta[k])
			}
		})
	}
}

func TestAuthentication(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		verifier fakeVerifier
		code     int
		owner    string
	}{
		{name: "missing bearer", header: "", code: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer x", verifier: fakeVerifier{err: errors.New("expired")}, code: http.StatusUnauthorized},
		{name: "owner claim", header: "Bearer x", verifier: fakeVerifier{claims: &UserClaims{Sub: "alice", OwnerID: "org-1"}}, code: http.StatusOK, owner: "org-1"},
		{name: "subject fallback", header: "Bearer x", verifier: fakeVerifier{claims: &UserClaims{Sub: "alice"}}, code: http.StatusOK, owner: "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.HTTPErrorHandler = Error(testLogger())
			e.Use(Context(), Authentication(testLogger(), tt.verifier))
			e.GET("/", identityHandler)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderOwnerID, "spoofed")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.owner, body["owner"])
			}
		})
	}
}
