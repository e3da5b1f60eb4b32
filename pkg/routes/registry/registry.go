package registry

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/routes"
	"github.com/Ramsey-B/fern/pkg/search"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Service interface {
	SearchRegistry(ctx context.Context, ownerID, query string, limit int) ([]search.Hit, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/registry/search", h.Search)
}

func (h *Handler) Search(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "registry.Search")
	defer span.End()

	ownerID, err := routes.OwnerID(c)
	if err != nil {
		return err
	}

	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	limit, err := routes.QueryInt(c, "limit", search.DefaultLimit)
	if err != nil {
		return err
	}

	hits, err := h.service.SearchRegistry(ctx, ownerID, query, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"query": query, "hits": hits})
}
