package schedule

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-api/internal/model"
	"github.com/clinicdesk/scheduling-api/internal/service/schedule"
	apperrors "github.com/clinicdesk/scheduling-api/pkg/errors"
	"github.com/clinicdesk/scheduling-api/pkg/httputil"
)

type Handler struct {
	service   *schedule.Service
	staffOnly gin.HandlerFunc
}

func NewHandler(service *schedule.Service, staffOnly gin.HandlerFunc) *Handler {
	return &Handler{service: service, staffOnly: staffOnly}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	doctors := rg.Group("/doctors/:id")
	{
		doctors.GET("/slots", h.GetSlots)
		doctors.GET("/availability", h.GetAvailability)
		doctors.GET("/leaves", h.ListLeaves)
		doctors.GET("/settings", h.GetSettings)

		// Template, leave and settings writes reshape every patient's
		// bookable calendar; staff only.
		doctors.PUT("/availability", h.staffOnly, h.UpsertAvailability)
		doctors.POST("/leaves", h.staffOnly, h.CreateLeave)
		doctors.DELETE("/leaves/:date", h.staffOnly, h.DeleteLeave)
		doctors.PUT("/settings", h.staffOnly, h.UpsertSettings)
	}
}

func doctorID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("invalid doctor ID"))
		return uuid.Nil, false
	}
	return id, true
}

// GetSlots returns the bookable slot start times for one doctor and date.
// Served through a short-lived cache; clients should treat the result as a
// hint and expect booking to be the authoritative check.
func (h *Handler) GetSlots(c *gin.Context) {
	id, ok := doctorID(c)
	if !ok {
		return
	}

	date, err := model.ParseDate(c.Query("date"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("%v", err))
		return
	}

	slots, err := h.service.CachedSlots(c.Request.Context(), id, date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{
		"doctor_id": id,
		"date":      date,
		"slots":     slots,
	})
}

func (h *Handler) GetAvailability(c *gin.Context) {
	id, ok := doctorID(c)
	if !ok {
		return
	}

	availability, err := h.service.GetAvailability(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, availability)
}

func (h *Handler) UpsertAvailability(c *gin.Context) {
	id, ok := doctorID(c)
	if !ok {
		return
	}

	var req model.UpsertAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidationError(c, err)
		return
	}

	if err := h.service.UpsertAvailability(c.Request.Context(), id, req.Days); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, &model.WeeklyAvailability{DoctorID: id, Days: req.Days})
}

func (h *Handler) ListLeaves(c *gin.Context) {
	id, ok := doctorID(c)
	if !ok {
		return
	}

	leaves, err := h.service.ListLeaves(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, leaves)
}

func (h *Handler) CreateLeave(c *gin.Context) {
	id, ok := doctorID(c)
	if !ok {
		return
	}

	var req model.CreateLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidationError(c, err)
		return
	}

	date, err := model.ParseDate(req.Date)
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("%v", err))
		return
	}

	leave, err := h.service.CreateLeave(c.Request.Context(), id, date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, leave)
}

func (h *Handler) DeleteLeave(c *gin.Context) {
	id, ok := doctorID(c)
	if !ok {
		return
	}

	date, err := model.ParseDate(c.Param("date"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewValidation("%v", err))
		return
	}

	if err := h.service.DeleteLeave(c.Request.Context(), id, date); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) GetSettings(c *gin.Context) {
	id, ok := doctorID(c)
	if !ok {
		return
	}

	settings, err := h.service.GetSettings(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, settings)
}

func (h *Handler) UpsertSettings(c *gin.Context) {
	id, ok := doctorID(c)
	if !ok {
		return
	}

	var req model.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidationError(c, err)
		return
	}

	settings := &model.ScheduleSettings{
		DoctorID:            id,
		DoctorName:          req.DoctorName,
		SlotDurationMinutes: req.SlotDurationMinutes,
	}
	if err := h.service.UpsertSettings(c.Request.Context(), settings); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, settings)
}
