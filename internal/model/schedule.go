package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Weekday names match the lowercase form used in clinic templates.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// WeekdayOf returns the template weekday name for a calendar date.
func WeekdayOf(d Date) Weekday {
	return Weekday(strings.ToLower(d.Weekday().String()))
}

// WindowName identifies one of the two bookable windows in a day template.
type WindowName string

const (
	WindowMorning WindowName = "morning"
	WindowEvening WindowName = "evening"
)

// Window is a template window in wall-clock time. Off suppresses slot
// generation regardless of the start/end values.
type Window struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
	Off   bool      `json:"is_off"`
}

// Valid requires start < end for windows that are not switched off.
func (w Window) Valid() bool {
	return w.Off || w.Start < w.End
}

// DaySchedule holds the optional morning and evening windows of one weekday.
type DaySchedule struct {
	Morning *Window `json:"morning,omitempty"`
	Evening *Window `json:"evening,omitempty"`
}

// WeeklyAvailability is a doctor's recurring weekly template.
type WeeklyAvailability struct {
	DoctorID uuid.UUID               `json:"doctor_id"`
	Days     map[Weekday]DaySchedule `json:"days"`
}

// AvailabilityWindow is the row form of one template window.
type AvailabilityWindow struct {
	DoctorID uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Weekday  Weekday    `db:"weekday" json:"weekday"`
	Window   WindowName `db:"window_name" json:"window"`
	Start    TimeOfDay  `db:"start_time" json:"start"`
	End      TimeOfDay  `db:"end_time" json:"end"`
	Off      bool       `db:"is_off" json:"is_off"`
}

// LeaveEntry removes all availability for a doctor on a specific date. Leave
// is an absolute override, never merged with the weekly template.
type LeaveEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Day       Weekday   `db:"day" json:"day"`
	Date      Date      `db:"leave_date" json:"date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ScheduleSettings carries per-doctor slot configuration. The same duration
// governs both generation and booking-time validation.
type ScheduleSettings struct {
	DoctorID            uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DoctorName          string    `db:"doctor_name" json:"doctor_name"`
	SlotDurationMinutes int       `db:"slot_duration_minutes" json:"slot_duration_minutes"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// OpenInterval is a half-open [start, end) bookable interval for one date.
type OpenInterval struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

type UpsertAvailabilityRequest struct {
	Days map[Weekday]DaySchedule `json:"days" binding:"required"`
}

type CreateLeaveRequest struct {
	Date string `json:"date" binding:"required,dateformat"`
}

type UpdateSettingsRequest struct {
	DoctorName          string `json:"doctor_name"`
	SlotDurationMinutes int    `json:"slot_duration_minutes" binding:"required,gt=0"`
}
