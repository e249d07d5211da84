package model

import (
	"time"

	"github.com/physiobook/physiobook/libs/clinicdata"
)

const (
	StatusPending   = clinicdata.StatusPending
	StatusCompleted = clinicdata.StatusCompleted
)

type (
	Slot                 = clinicdata.Slot
	SlotDay              = clinicdata.SlotDay
	Registration         = clinicdata.Registration
	ExpandedRegistration = clinicdata.ExpandedRegistration
)

type AccessCode struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	IsUsed    bool      `json:"is_used"`
	CreatedAt time.Time `json:"created_at"`
}

type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// RegistrationForm is the patient-entered part of a registration.
type RegistrationForm struct {
	SlotID       string `json:"slot_id"`
	FullName     string `json:"full_name"`
	NationalID   string `json:"national_id"`
	Phone        string `json:"phone"`
	DepartmentID string `json:"department_id"`
	Complaint    string `json:"complaint"`
}

const (
	IncidentCodeConsumptionFailed     = "booking.code_consumption_failed"
	IncidentRegistrationPersistFailed = "booking.registration_persist_failed"
)

// Incident is a booking that left a slot or code modified without a registration.
type Incident struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	SlotID       *string    `json:"slot_id,omitempty"`
	CodeID       *string    `json:"code_id,omitempty"`
	Detail       string     `json:"detail"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}
