package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Role is a staff role. Patients are anonymous and have no role.
type Role string

const (
	RoleAdmin           Role = "admin"
	RolePhysician       Role = "physician"
	RolePhysiotherapist Role = "physiotherapist"
)

// ParseRole accepts the canonical names and the clinic's legacy Indonesian ones.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin":
		return RoleAdmin, nil
	case "physician", "dokter":
		return RolePhysician, nil
	case "physiotherapist", "fisioterapis":
		return RolePhysiotherapist, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// Valid reports whether r is one of the canonical role names.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

type Capability string

const (
	CapViewStats          Capability = "view_stats"
	CapManageSlots        Capability = "manage_slots"
	CapManageAccessCodes  Capability = "manage_access_codes"
	CapManageDepartments  Capability = "manage_departments"
	CapViewRegistrations  Capability = "view_registrations"
	CapManageUsers        Capability = "manage_users"
	CapViewPatientQueue   Capability = "view_patient_queue"
	CapViewPatientHistory Capability = "view_patient_history"
	CapViewPatientDetail  Capability = "view_patient_detail"
	CapFileMedicalRecord  Capability = "file_medical_record"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {
		CapViewStats, CapManageSlots, CapManageAccessCodes, CapManageDepartments,
		CapViewRegistrations, CapManageUsers,
	},
	RolePhysician: {
		CapViewStats, CapManageSlots, CapManageAccessCodes, CapManageDepartments,
		CapViewRegistrations, CapViewPatientQueue, CapViewPatientHistory, CapViewPatientDetail,
	},
	RolePhysiotherapist: {
		CapViewPatientQueue, CapViewPatientHistory, CapViewPatientDetail, CapFileMedicalRecord,
	},
}

// Capabilities is an immutable capability set.
type Capabilities map[Capability]struct{}

func (c Capabilities) Has(cap Capability) bool {
	_, ok := c[cap]
	return ok
}

// List returns the capabilities sorted by name.
func (c Capabilities) List() []Capability {
	out := make([]Capability, 0, len(c))
	for cap := range c {
		out = append(out, cap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RoleCapabilities returns an empty set for unknown roles.
func RoleCapabilities(role Role) Capabilities {
	caps := Capabilities{}
	for _, cap := range roleCapabilities[role] {
		caps[cap] = struct{}{}
	}
	return caps
}

// Route is one dashboard entry a session may navigate to.
type Route struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Capability Capability `json:"capability"`
}

// routeTable is ordered the way dashboards list their navigation.
var routeTable = []Route{
	{Name: "Dashboard", Path: "/admin/dashboard", Capability: CapViewStats},
	{Name: "Slots", Path: "/admin/slots", Capability: CapManageSlots},
	{Name: "Access codes", Path: "/admin/codes", Capability: CapManageAccessCodes},
	{Name: "Registrations", Path: "/admin/registrations", Capability: CapViewRegistrations},
	{Name: "Departments", Path: "/admin/departments", Capability: CapManageDepartments},
	{Name: "Patient queue", Path: "/clinic/queue", Capability: CapViewPatientQueue},
	{Name: "Service history", Path: "/clinic/history", Capability: CapViewPatientHistory},
	{Name: "Users", Path: "/admin/users", Capability: CapManageUsers},
}

// RoutesFor resolves the navigation visible to a capability set.
func RoutesFor(caps Capabilities) []Route {
	out := make([]Route, 0, len(routeTable))
	for _, r := range routeTable {
		if caps.Has(r.Capability) {
			out = append(out, r)
		}
	}
	return out
}
