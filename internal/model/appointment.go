package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled  AppointmentStatus = "scheduled"
	AppointmentStatusInProgress AppointmentStatus = "in-progress"
	AppointmentStatusCompleted  AppointmentStatus = "completed"
	AppointmentStatusCancelled  AppointmentStatus = "cancelled"

	// AppointmentStatusMissed is a derived view, never written to storage:
	// a scheduled appointment whose date+time is strictly in the past.
	AppointmentStatusMissed AppointmentStatus = "missed"
)

// ValidStored reports whether s is a status that can be persisted.
func (s AppointmentStatus) ValidStored() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusInProgress,
		AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusScheduled:  {AppointmentStatusInProgress, AppointmentStatusCancelled},
	AppointmentStatusInProgress: {AppointmentStatusCompleted, AppointmentStatusCancelled},
}

// CanTransition reports whether from → to is a legal status transition.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UID       string    `db:"uid" json:"uid"`
	ClinicID  uuid.UUID `db:"clinic_id" json:"clinic_id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`

	Date Date      `db:"appointment_date" json:"appointment_date"`
	Time TimeOfDay `db:"appointment_time" json:"appointment_time"`

	Status AppointmentStatus `db:"status" json:"status"`

	// Provisional marks patient self-service bookings awaiting clinic
	// confirmation. Provisional appointments still occupy their slot.
	Provisional bool `db:"provisional" json:"provisional"`

	PatientNote       string         `db:"patient_note" json:"patient_note,omitempty"`
	MedicalConditions pq.StringArray `db:"medical_conditions" json:"medical_conditions"`

	// DoctorName is snapshotted at booking time so historic display
	// survives doctor reassignment.
	DoctorName string `db:"doctor_name" json:"doctor_name"`

	CancelReason *string `db:"cancel_reason" json:"cancel_reason,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Effective is the read-side status including the derived missed view.
	// Populated on reads, never persisted.
	Effective AppointmentStatus `db:"-" json:"effective_status,omitempty"`
}

// EffectiveStatus computes the read-side status, mapping a scheduled
// appointment whose start has passed to the derived missed view.
func (a *Appointment) EffectiveStatus(now time.Time, loc *time.Location) AppointmentStatus {
	if a.Status == AppointmentStatusScheduled && a.Date.At(a.Time, loc).Before(now) {
		return AppointmentStatusMissed
	}
	return a.Status
}

// Blocking reports whether the appointment occupies its doctor/date/time slot.
func (a *Appointment) Blocking() bool {
	return a.Status == AppointmentStatusScheduled || a.Status == AppointmentStatusInProgress
}

type CreateAppointmentRequest struct {
	ClinicID          uuid.UUID `json:"clinic_id" binding:"required"`
	DoctorID          uuid.UUID `json:"doctor_id" binding:"required"`
	PatientID         uuid.UUID `json:"patient_id" binding:"required"`
	Date              string    `json:"appointment_date" binding:"required,dateformat"`
	Time              string    `json:"appointment_time" binding:"required,hhmm"`
	Provisional       bool      `json:"provisional"`
	PatientNote       string    `json:"patient_note" binding:"max=1000"`
	MedicalConditions []string  `json:"medical_conditions"`
}

type TransitionRequest struct {
	TargetStatus AppointmentStatus `json:"target_status" binding:"required"`

	// ConsentConfirmed must be set by staff when moving an appointment to
	// in-progress; the consent step itself happens outside the engine.
	ConsentConfirmed bool    `json:"consent_confirmed"`
	CancelReason     *string `json:"cancel_reason"`
}

type RescheduleRequest struct {
	Date string `json:"appointment_date" binding:"required,dateformat"`
	Time string `json:"appointment_time" binding:"required,hhmm"`
}

type UpdateConditionsRequest struct {
	MedicalConditions []string `json:"medical_conditions" binding:"required"`
}

type AppointmentFilters struct {
	ClinicID  uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	// Status may be a stored status or the virtual "missed" view.
	Status AppointmentStatus
	From   *Date
	To     *Date
}
