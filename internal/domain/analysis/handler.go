package analysis

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/aidims/aidims/internal/platform/apperror"
	"github.com/aidims/aidims/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/ai-analysis")
	g.GET("/:id", h.GetByID)
	g.GET("/study/:studyId", h.GetByStudy)
	g.GET("/study/:studyId/availability", h.CheckAvailability)
	g.GET("/instance/:instanceId", h.GetByInstance)

	write := g.Group("", auth.RequireRole("Doctor"))
	write.POST("/study/:studyId", h.AnalyzeStudy)
	write.POST("/:id/review", h.MarkReviewed)
}

func (h *Handler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.Validation("invalid analysis id")
	}
	a, err := h.svc.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetByInstance(c echo.Context) error {
	instanceID, err := uuid.Parse(c.Param("instanceId"))
	if err != nil {
		return apperror.Validation("invalid instance id")
	}
	a, err := h.svc.GetByInstance(c.Request().Context(), instanceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetByStudy(c echo.Context) error {
	studyID, err := uuid.Parse(c.Param("studyId"))
	if err != nil {
		return apperror.Validation("invalid study id")
	}
	a, err := h.svc.GetByStudy(c.Request().Context(), studyID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	studyID, err := uuid.Parse(c.Param("studyId"))
	if err != nil {
		return apperror.Validation("invalid study id")
	}
	av, err := h.svc.CheckAvailability(c.Request().Context(), studyID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, av)
}

func (h *Handler) AnalyzeStudy(c echo.Context) error {
	studyID, err := uuid.Parse(c.Param("studyId"))
	if err != nil {
		return apperror.Validation("invalid study id")
	}
	instanceID := uuid.Nil
	if raw := c.QueryParam("instance_id"); raw != "" {
		instanceID, err = uuid.Parse(raw)
		if err != nil {
			return apperror.Validation("instance_id is not a valid uuid")
		}
	}
	a, err := h.svc.AnalyzeStudy(c.Request().Context(), studyID, instanceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) MarkReviewed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.Validation("invalid analysis id")
	}
	if err := h.svc.MarkReviewed(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
