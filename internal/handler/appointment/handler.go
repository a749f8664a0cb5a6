package appointment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-api/internal/model"
	"github.com/clinicdesk/scheduling-api/internal/service/appointment"
	apperrors "github.com/clinicdesk/scheduling-api/pkg/errors"
	"github.com/clinicdesk/scheduling-api/pkg/httputil"
)

type Handler struct {
	service   *appointment.Service
	staffOnly gin.HandlerFunc
}

func NewHandler(service *appointment.Service, staffOnly gin.HandlerFunc) *Handler {
	return &Handler{service: service, staffOnly: staffOnly}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	appointments := rg.Group("/appointments")
	{
		appointments.POST("", h.Reserve)
		appointments.GET("", h.List)
		appointments.GET("/:id", h.Get)
		// Lifecycle transitions are staff actions; booking and reschedule
		// stay open to patient self-service.
		appointments.PATCH("/:id/status", h.staffOnly, h.Transition)
		appointments.PATCH("/:id/reschedule", h.Reschedule)
		appointments.PATCH("/:id/conditions", h.UpdateConditions)
	}
}

func (h *Handler) Reserve(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidationError(c, err)
		return
	}

	created, err := h.service.Reserve(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, created)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("invalid appointment ID"))
		return
	}

	found, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, found)
}

func (h *Handler) List(c *gin.Context) {
	filters := &model.AppointmentFilters{}

	for param, target := range map[string]*uuid.UUID{
		"clinic_id":  &filters.ClinicID,
		"doctor_id":  &filters.DoctorID,
		"patient_id": &filters.PatientID,
	} {
		if value := c.Query(param); value != "" {
			parsed, err := uuid.Parse(value)
			if err != nil {
				httputil.RespondWithError(c, apperrors.NewValidation("invalid %s", param))
				return
			}
			*target = parsed
		}
	}

	if status := c.Query("status"); status != "" {
		s := model.AppointmentStatus(status)
		if !s.ValidStored() && s != model.AppointmentStatusMissed {
			httputil.RespondWithError(c, apperrors.NewValidation("invalid status %q", status))
			return
		}
		filters.Status = s
	}

	for param, target := range map[string]**model.Date{
		"from": &filters.From,
		"to":   &filters.To,
	} {
		if value := c.Query(param); value != "" {
			parsed, err := model.ParseDate(value)
			if err != nil {
				httputil.RespondWithError(c, apperrors.NewValidation("%v", err))
				return
			}
			*target = &parsed
		}
	}

	appointments, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, appointments)
}

func (h *Handler) Transition(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("invalid appointment ID"))
		return
	}

	var req model.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidationError(c, err)
		return
	}

	updated, err := h.service.Transition(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, updated)
}

func (h *Handler) Reschedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("invalid appointment ID"))
		return
	}

	var req model.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidationError(c, err)
		return
	}

	updated, err := h.service.Reschedule(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, updated)
}

func (h *Handler) UpdateConditions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("invalid appointment ID"))
		return
	}

	var req model.UpdateConditionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidationError(c, err)
		return
	}

	updated, err := h.service.UpdateMedicalConditions(c.Request.Context(), id, req.MedicalConditions)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, updated)
}
