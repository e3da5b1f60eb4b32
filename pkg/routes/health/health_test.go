package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(name string, critical bool, err error) Probe {
	return Probe{Name: name, Critical: critical, Check: func(context.Context) error { return err }}
}

func serve(t *testing.T, checker *Checker, path string) (int, Response) {
	t.Helper()
	e := echo.New()
	checker.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestChecker_HealthHandler(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name       string
		probes     []Probe
		wantCode   int
		wantStatus Status
	}{
		{"all healthy", []Probe{probe("database", true, nil), probe("redis", false, nil)}, http.StatusOK, StatusHealthy},
		{"optional probe down", []Probe{probe("database", true, nil), probe("graph", false, down)}, http.StatusOK, StatusDegraded},
		{"critical probe down", []Probe{probe("database", true, down), probe("redis", false, down)}, http.StatusServiceUnavailable, StatusUnhealthy},
		{"no probes", nil, http.StatusOK, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := serve(t, NewChecker("test", tt.probes...), "/api/v1/health")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.probes))
		})
	}
}

func TestChecker_ReadinessHandler(t *testing.T) {
	checker := NewChecker("test", probe("database", true, nil))

	code, resp := serve(t, checker, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, resp.Checks, "startup")

	checker.SetReady(true)
	code, resp = serve(t, checker, "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, resp.Checks["database"].Status)
}

func TestChecker_LivenessHandler(t *testing.T) {
	code, resp := serve(t, NewChecker("1.2.3", probe("database", true, errors.New("down"))), "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Empty(t, resp.Checks)
}

func TestDatabaseProbe(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("bad connection"))

	p := DatabaseProbe(sqlx.NewDb(db, "postgres"))
	assert.True(t, p.Critical)
	assert.Equal(t, StatusHealthy, runProbe(context.Background(), p).Status)

	result := runProbe(context.Background(), p)
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "bad connection", result.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}
