package decision

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/decisions"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Service interface {
	ApplyDecisions(ctx context.Context, decisionList []models.Decision, ownerID string) (*decisions.Result, error)
}

// ApplyDecisionsRequest only requires a non-empty list. Each decision is validated when applied.
type ApplyDecisionsRequest struct {
	Decisions []models.Decision `json:"decisions" validate:"required,min=1"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/decisions", h.ApplyDecisions)
}

func (h *Handler) ApplyDecisions(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "decision.ApplyDecisions")
	defer span.End()

	ownerID, err := routes.OwnerID(c)
	if err != nil {
		return err
	}

	req, err := routes.BindRequest[ApplyDecisionsRequest](c)
	if err != nil {
		return err
	}

	result, err := h.service.ApplyDecisions(ctx, req.Decisions, ownerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
