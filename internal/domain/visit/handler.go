package visit

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/triage/internal/domain/doctor"
	"github.com/clinic/triage/internal/domain/triage"
	"github.com/clinic/triage/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/visits", h.CreateVisit)
	api.GET("/visits", h.ListVisits)
	api.GET("/visits/:id", h.GetVisit)
	api.POST("/visits/:id/start", h.StartConsultation)
	api.POST("/visits/:id/complete", h.CompleteConsultation)
	api.POST("/visits/:id/cancel", h.CancelVisit)
	api.POST("/visits/:id/override-risk", h.OverrideRisk)

	api.GET("/doctors/:id/queue", h.GetDoctorQueue)
	api.POST("/queue/recompute", h.RecomputeAll)
}

func (h *Handler) CreateVisit(c echo.Context) error {
	var in CreateVisitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.CreateVisit(c.Request().Context(), in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) GetVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	detail, err := h.svc.GetVisit(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) ListVisits(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatientVisits(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) StartConsultation(c echo.Context) error {
	return h.transition(c, h.svc.StartConsultation)
}

func (h *Handler) CompleteConsultation(c echo.Context) error {
	return h.transition(c, h.svc.CompleteConsultation)
}

func (h *Handler) CancelVisit(c echo.Context) error {
	return h.transition(c, h.svc.CancelVisit)
}

type overrideRiskRequest struct {
	RiskLevel    triage.RiskLevel `json:"risk_level"`
	OverriddenBy string           `json:"overridden_by"`
}

func (h *Handler) OverrideRisk(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req overrideRiskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	assessment, err := h.svc.OverrideRisk(c.Request().Context(), id, req.RiskLevel, req.OverriddenBy)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, assessment)
}

func (h *Handler) GetDoctorQueue(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	snapshot, err := h.svc.GetDoctorQueue(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (h *Handler) RecomputeAll(c echo.Context) error {
	count, err := h.svc.RecomputeAll(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"reconciled": count})
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, id uuid.UUID) (*Visit, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := fn(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, triage.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrVisitNotFound),
		errors.Is(err, doctor.ErrDoctorNotFound),
		errors.Is(err, triage.ErrAssessmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, triage.ErrClassifierUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
