package decision

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

	"github.com/Ramsey-B/fern/pkg/decisions"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeService struct {
	got   []models.Decision
	owner string
}

func (f *fakeService) ApplyDecisions(_ context.Context, decisionList []models.Decision, ownerID string) (*decisions.Result, error) {
	f.got, f.owner = decisionList, ownerID
	result := &decisions.Result{Processed: len(decisionList)}
	for _, d := range decisionList {
		result.Outcomes = append(result.Outcomes, models.DecisionOutcome{StagingID: d.StagingID, Action: d.Action})
	}
	return result, nil
}

func post(svc Service, body, owner string) *httptest.ResponseRecorder {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	NewHandler(svc).Register(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if owner != "" {
		req.Header.Set(middleware.HeaderOwnerID, owner)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ApplyDecisions(t *testing.T) {
	t.Run("forwards every decision", func(t *testing.T) {
		svc := &fakeService{}
		body := `{"decisions":[
			{"staging_id":"s-1","action":"approve_new"},
			{"staging_id":"s-2","action":"merge_with_entity","target_entity_id":"e-1","notes":"same company"}
		]}`

		rec := post(svc, body, "owner-1")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "owner-1", svc.owner)
		require.Len(t, svc.got, 2)
		assert.Equal(t, models.DecisionMergeWithEntity, svc.got[1].Action)
		assert.Equal(t, "e-1", svc.got[1].TargetEntityID)
		assert.Contains(t, rec.Body.String(), `"processed":2`)
	})

	t.Run("invalid entries reach the service", func(t *testing.T) {
		svc := &fakeService{}
		rec := post(svc, `{"decisions":[{"staging_id":"s-1","action":"merge_with_node"}]}`, "owner-1")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, svc.got, 1)
	})

	tests := []struct {
		name       string
		body       string
		owner      string
		wantStatus int
	}{
		{"empty list", `{"decisions":[]}`, "owner-1", http.StatusBadRequest},
		{"missing list", `{}`, "owner-1", http.StatusBadRequest},
		{"malformed", `{"decisions":`, "owner-1", http.StatusBadRequest},
		{"no owner", `{"decisions":[{"staging_id":"s-1","action":"reject"}]}`, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			rec := post(svc, tt.body, tt.owner)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Nil(t, svc.got)
		})
	}
}
