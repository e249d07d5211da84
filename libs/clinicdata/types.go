// Package clinicdata holds the slot and registration shapes read by both the
// booking and clinic services.
package clinicdata

import (
	"sort"
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Slot is one bookable hour. Date is YYYY-MM-DD in the clinic's timezone.
type Slot struct {
	ID        string     `json:"id"`
	Date      string     `json:"date"`
	Hour      int        `json:"hour"`
	IsBooked  bool       `json:"is_booked"`
	BookedAt  *time.Time `json:"booked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type SlotDay struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

type Registration struct {
	ID                string     `json:"id"`
	AccessCodeID      string     `json:"access_code_id"`
	SlotID            string     `json:"slot_id"`
	DepartmentID      string     `json:"department_id"`
	FullName          string     `json:"full_name"`
	NationalID        string     `json:"national_id"`
	Phone             string     `json:"phone"`
	Complaint         string     `json:"complaint"`
	Status            string     `json:"status"`
	Assessment        *string    `json:"assessment,omitempty"`
	PhysicalExam      *string    `json:"physical_exam,omitempty"`
	Treatment         *string    `json:"treatment,omitempty"`
	TreatmentPlan     *string    `json:"treatment_plan,omitempty"`
	PhysiotherapistID *string    `json:"physiotherapist_id,omitempty"`
	VisitedAt         *time.Time `json:"visited_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ExpandedRegistration is a registration joined with its slot, department,
// access code and physiotherapist for display.
type ExpandedRegistration struct {
	Registration
	SlotDate            string  `json:"slot_date"`
	SlotHour            int     `json:"slot_hour"`
	DepartmentName      string  `json:"department_name"`
	AccessCode          string  `json:"access_code"`
	PhysiotherapistName *string `json:"physiotherapist_name,omitempty"`
}

// SortSlots orders slots by date then hour, in place.
func SortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Date != slots[j].Date {
			return slots[i].Date < slots[j].Date
		}
		return slots[i].Hour < slots[j].Hour
	})
}

// GroupByDate buckets slots per date, ordered by date then hour. The input is
// not reordered.
func GroupByDate(slots []Slot) []SlotDay {
	sorted := append([]Slot(nil), slots...)
	SortSlots(sorted)
	days := []SlotDay{}
	for _, s := range sorted {
		if n := len(days); n > 0 && days[n-1].Date == s.Date {
			days[n-1].Slots = append(days[n-1].Slots, s)
			continue
		}
		days = append(days, SlotDay{Date: s.Date, Slots: []Slot{s}})
	}
	return days
}
