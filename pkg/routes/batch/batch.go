package batch

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/intake"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Service interface {
	ProcessBatch(ctx context.Context, csvText, batchName, ownerID string) (*intake.ProcessBatchResult, error)
	AnalyzeDeduplication(ctx context.Context, batchID, ownerID string) ([]models.DeduplicationResult, error)
	RollbackBatch(ctx context.Context, batchID, ownerID string) (*intake.RollbackResult, error)
	GetBatchStatus(ctx context.Context, batchID, ownerID string) (*models.BatchLog, error)
	ListBatches(ctx context.Context, ownerID string, filter models.BatchFilter) (*intake.BatchList, error)
	ListStagingNodes(ctx context.Context, batchID, ownerID string) ([]models.StagingNode, error)
}

type CreateBatchRequest struct {
	Name string `json:"name"`
	CSV  string `json:"csv" validate:"required"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/batches", h.CreateBatch)
	g.GET("/batches", h.ListBatches)
	g.GET("/batches/:id", h.GetBatch)
	g.GET("/batches/:id/staging-nodes", h.ListStagingNodes)
	g.POST("/batches/:id/analyze", h.AnalyzeBatch)
	g.POST("/batches/:id/rollback", h.RollbackBatch)
}

// CreateBatch accepts either a JSON body {name, csv} or a raw text/csv body with ?name=
func (h *Handler) CreateBatch(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "batch.CreateBatch")
	defer span.End()

	ownerID, err := routes.OwnerID(c)
	if err != nil {
		return err
	}

	var req CreateBatchRequest
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), "text/csv") {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return httperror.WrapError(http.StatusBadRequest, err)
		}
		req = CreateBatchRequest{Name: c.QueryParam("name"), CSV: string(body)}
		if strings.TrimSpace(req.CSV) == "" {
			return httperror.NewHTTPError(http.StatusBadRequest, "csv body is required")
		}
	} else {
		req, err = routes.BindRequest[CreateBatchRequest](c)
		if err != nil {
			return err
		}
	}

	result, err := h.service.ProcessBatch(ctx, req.CSV, req.Name, ownerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) ListBatches(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "batch.ListBatches")
	defer span.End()

	ownerID, err := routes.OwnerID(c)
	if err != nil {
		return err
	}

	filter := models.BatchFilter{}
	if raw := c.QueryParam("status"); raw != "" {
		status := models.BatchStatus(raw)
		switch status {
		case models.BatchStatusPending, models.BatchStatusProcessed, models.BatchStatusError, models.BatchStatusCancelled, models.BatchStatusRolledBack:
			filter.Status = &status
		default:
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid status %q", raw)
		}
	}
	if filter.Page, err = routes.QueryInt(c, "page", 1); err != nil {
		return err
	}
	if filter.PageSize, err = routes.QueryInt(c, "page_size", 20); err != nil {
		return err
	}

	result, err := h.service.ListBatches(ctx, ownerID, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GetBatch(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "batch.GetBatch")
	defer span.End()

	ownerID, err := routes.OwnerID(c)
	if err != nil {
		return err
	}

	result, err := h.service.GetBatchStatus(ctx, c.Param("id"), ownerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListStagingNodes(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "batch.ListStagingNodes")
	defer span.End()

	ownerID, err := routes.OwnerID(c)
	if err != nil {
		return err
	}

	result, err := h.service.ListStagingNodes(ctx, c.Param("id"), ownerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *Handler) AnalyzeBatch(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "batch.AnalyzeBatch")
	defer span.End()

	ownerID, err := routes.OwnerID(c)
	if err != nil {
		return err
	}

	result, err := h.service.AnalyzeDeduplication(ctx, c.Param("id"), ownerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *Handler) RollbackBatch(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "batch.RollbackBatch")
	defer span.End()

	ownerID, err := routes.OwnerID(c)
	if err != nil {
		return err
	}

	result, err := h.service.RollbackBatch(ctx, c.Param("id"), ownerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
