package batch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/intake"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeService struct {
	csv, name, owner string
	filter           models.BatchFilter
	rollbackErr      error
}

func (f *fakeService) ProcessBatch(_ context.Context, csvText, batchName, ownerID string) (*intake.ProcessBatchResult, error) {
	f.csv, f.name, f.owner = csvText, batchName, ownerID
	return &intake.ProcessBatchResult{BatchID: "batch-1", Status: models.BatchStatusProcessed}, nil
}

func (f *fakeService) AnalyzeDeduplication(_ context.Context, batchID, _ string) ([]models.DeduplicationResult, error) {
	return []models.DeduplicationResult{{StagingID: batchID + "-row", SuggestedAction: models.SuggestedCreateNew}}, nil
}

func (f *fakeService) RollbackBatch(context.Context, string, string) (*intake.RollbackResult, error) {
	if f.rollbackErr != nil {
		return nil, f.rollbackErr
	}
	return &intake.RollbackResult{Success: true, StagingNodesDeleted: 3}, nil
}

func (f *fakeService) GetBatchStatus(_ context.Context, batchID, ownerID string) (*models.BatchLog, error) {
	if batchID == "missing" {
		return nil, models.NotFound("batch %s not found", batchID)
	}
	return &models.BatchLog{ID: batchID, OwnerID: ownerID, Status: models.BatchStatusProcessed}, nil
}

func (f *fakeService) ListBatches(_ context.Context, _ string, filter models.BatchFilter) (*intake.BatchList, error) {
	f.filter = filter
	return &intake.BatchList{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (f *fakeService) ListStagingNodes(context.Context, string, string) ([]models.StagingNode, error) {
	return []models.StagingNode{}, nil
}

func newServer(svc Service) *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	NewHandler(svc).Register(e.Group("/api/v1"))
	return e
}

func do(e *echo.Echo, method, path, contentType, body, owner string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if owner != "" {
		req.Header.Set(middleware.HeaderOwnerID, owner)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CreateBatch(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		svc := &fakeService{}
		rec := do(newServer(svc), http.MethodPost, "/api/v1/batches", echo.MIMEApplicationJSON, `{"name":"March","csv":"a,b"}`, "owner-1")

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"batch_id":"batch-1"`)
		assert.Equal(t, "a,b", svc.csv)
		assert.Equal(t, "March", svc.name)
		assert.Equal(t, "owner-1", svc.owner)
	})

	t.Run("raw csv body", func(t *testing.T) {
		svc := &fakeService{}
		rec := do(newServer(svc), http.MethodPost, "/api/v1/batches?name=Upload", "text/csv", "x,y\n1,2", "owner-1")

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "x,y\n1,2", svc.csv)
		assert.Equal(t, "Upload", svc.name)
	})

	tests := []struct {
		name        string
		contentType string
		body        string
		owner       string
		wantStatus  int
	}{
		{"missing csv field", echo.MIMEApplicationJSON, `{"name":"March"}`, "owner-1", http.StatusBadRequest},
		{"empty raw body", "text/csv", "  ", "owner-1", http.StatusBadRequest},
		{"malformed json", echo.MIMEApplicationJSON, `{"csv":`, "owner-1", http.StatusBadRequest},
		{"no owner", echo.MIMEApplicationJSON, `{"csv":"a"}`, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newServer(&fakeService{}), http.MethodPost, "/api/v1/batches", tt.contentType, tt.body, tt.owner)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandler_ListBatches(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		svc := &fakeService{}
		rec := do(newServer(svc), http.MethodGet, "/api/v1/batches", "", "", "owner-1")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, svc.filter.Status)
		assert.Equal(t, 1, svc.filter.Page)
		assert.Equal(t, 20, svc.filter.PageSize)
	})

	t.Run("status and paging", func(t *testing.T) {
		svc := &fakeService{}
		rec := do(newServer(svc), http.MethodGet, "/api/v1/batches?status=rolled_back&page=2&page_size=5", "", "", "owner-1")

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, svc.filter.Status)
		assert.Equal(t, models.BatchStatusRolledBack, *svc.filter.Status)
		assert.Equal(t, 2, svc.filter.Page)
		assert.Equal(t, 5, svc.filter.PageSize)
	})

	for _, query := range []string{"status=done", "page=0", "page_size=abc"} {
		t.Run("rejects "+query, func(t *testing.T) {
			rec := do(newServer(&fakeService{}), http.MethodGet, "/api/v1/batches?"+query, "", "", "owner-1")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandler_GetBatch(t *testing.T) {
	e := newServer(&fakeService{})

	rec := do(e, http.MethodGet, "/api/v1/batches/b-1", "", "", "owner-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"b-1"`)

	rec = do(e, http.MethodGet, "/api/v1/batches/missing", "", "", "owner-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_AnalyzeAndStaging(t *testing.T) {
	e := newServer(&fakeService{})

	rec := do(e, http.MethodPost, "/api/v1/batches/b-1/analyze", "", "", "owner-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"staging_id":"b-1-row"`)

	rec = do(e, http.MethodGet, "/api/v1/batches/b-1/staging-nodes", "", "", "owner-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandler_RollbackBatch(t *testing.T) {
	rec := do(newServer(&fakeService{}), http.MethodPost, "/api/v1/batches/b-1/rollback", "", "", "owner-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"staging_nodes_deleted":3}`, rec.Body.String())

	svc := &fakeService{rollbackErr: models.Conflict("batch b-1 is already rolled back")}
	rec = do(newServer(svc), http.MethodPost, "/api/v1/batches/b-1/rollback", "", "", "owner-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
