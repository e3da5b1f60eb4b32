package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/search"
)

type fakeService struct {
	query string
	limit int
}

func (f *fakeService) SearchRegistry(_ context.Context, _ string, query string, limit int) ([]search.Hit, error) {
	f.query, f.limit = query, limit
	return []search.Hit{{
		Target:    models.MatchTarget{Kind: models.MatchKindEntity, ID: "e-1", Name: "SiteMinder"},
		MatchedOn: "SiteMinder",
		Field:     "name",
	}}, nil
}

func get(svc Service, path, owner string) *httptest.ResponseRecorder {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	NewHandler(svc).Register(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if owner != "" {
		req.Header.Set(middleware.HeaderOwnerID, owner)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Search(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		owner      string
		wantStatus int
		wantQuery  string
		wantLimit  int
	}{
		{"default limit", "/api/v1/registry/search?q=site", "owner-1", http.StatusOK, "site", search.DefaultLimit},
		{"explicit limit", "/api/v1/registry/search?q=%20site%20&limit=3", "owner-1", http.StatusOK, "site", 3},
		{"missing query", "/api/v1/registry/search", "owner-1", http.StatusBadRequest, "", 0},
		{"blank query", "/api/v1/registry/search?q=%20", "owner-1", http.StatusBadRequest, "", 0},
		{"bad limit", "/api/v1/registry/search?q=site&limit=-1", "owner-1", http.StatusBadRequest, "", 0},
		{"no owner", "/api/v1/registry/search?q=site", "", http.StatusUnauthorized, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			rec := get(svc, tt.path, tt.owner)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantQuery, svc.query)
			assert.Equal(t, tt.wantLimit, svc.limit)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"matched_on":"SiteMinder"`)
			}
		})
	}
}
