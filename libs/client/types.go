package client

import (
	"time"

	"github.com/physiobook/physiobook/libs/auth"
)

type AccessCode struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	IsUsed    bool      `json:"is_used"`
	CreatedAt time.Time `json:"created_at"`
}

type Slot struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Hour      int       `json:"hour"`
	IsBooked  bool      `json:"is_booked"`
	CreatedAt time.Time `json:"created_at"`
}

type SlotDay struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type Registration struct {
	ID                  string     `json:"id"`
	AccessCodeID        string     `json:"access_code_id"`
	SlotID              string     `json:"slot_id"`
	DepartmentID        string     `json:"department_id"`
	FullName            string     `json:"full_name"`
	NationalID          string     `json:"national_id"`
	Phone               string     `json:"phone"`
	Complaint           string     `json:"complaint"`
	Status              string     `json:"status"`
	Assessment          *string    `json:"assessment,omitempty"`
	PhysicalExam        *string    `json:"physical_exam,omitempty"`
	Treatment           *string    `json:"treatment,omitempty"`
	TreatmentPlan       *string    `json:"treatment_plan,omitempty"`
	PhysiotherapistID   *string    `json:"physiotherapist_id,omitempty"`
	VisitedAt           *time.Time `json:"visited_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	SlotDate            string     `json:"slot_date"`
	SlotHour            int        `json:"slot_hour"`
	DepartmentName      string     `json:"department_name"`
	AccessCode          string     `json:"access_code"`
	PhysiotherapistName *string    `json:"physiotherapist_name,omitempty"`
}

type RegistrationForm struct {
	SlotID       string `json:"slot_id"`
	FullName     string `json:"full_name"`
	NationalID   string `json:"national_id"`
	Phone        string `json:"phone"`
	DepartmentID string `json:"department_id"`
	Complaint    string `json:"complaint"`
}

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

type Profile struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Tokens is the auth-service login and refresh response.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Profile      Profile   `json:"profile"`
}

type StageTicket struct {
	StageToken string `json:"stage_token"`
	CodeID     string `json:"code_id"`
}

type Booking struct {
	Registration      Registration `json:"registration"`
	ConfirmationToken string       `json:"confirmation_token"`
}
