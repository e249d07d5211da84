package model

import (
	"time"

	"github.com/physiobook/physiobook/libs/clinicdata"
)

const (
	StatusPending   = clinicdata.StatusPending
	StatusCompleted = clinicdata.StatusCompleted

	IncidentOpen     = "open"
	IncidentResolved = "resolved"

	IncidentOrphanSlot = "reconcile.orphan_slot"
	IncidentOrphanCode = "reconcile.orphan_code"
)

type (
	Slot                 = clinicdata.Slot
	SlotDay              = clinicdata.SlotDay
	Registration         = clinicdata.Registration
	ExpandedRegistration = clinicdata.ExpandedRegistration
)

type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type AccessCode struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	IsUsed    bool       `json:"is_used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// MedicalRecord is what a physiotherapist files to complete a visit.
type MedicalRecord struct {
	Assessment    string `json:"assessment"`
	PhysicalExam  string `json:"physical_exam"`
	Treatment     string `json:"treatment"`
	TreatmentPlan string `json:"treatment_plan"`
}

type Stats struct {
	TotalRegistrations int `json:"total_registrations"`
	UnbookedSlots      int `json:"unbooked_slots"`
	UnusedCodes        int `json:"unused_codes"`
	Departments        int `json:"departments"`
}

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
