package client

import (
	"context"
	"net/http"
	"net/url"
)

const clinicPrefix = "/api/v1/clinic"

func (c *Client) ListDepartments(ctx context.Context) ([]Department, error) {
	var out struct {
		Departments []Department `json:"departments"`
	}
	err := c.do(ctx, request{method: http.MethodGet, path: clinicPrefix + "/departments"}, &out)
	return out.Departments, err
}

func (c *Client) CreateDepartment(ctx context.Context, name string) (Department, error) {
	var out Department
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   clinicPrefix + "/departments",
		body:   map[string]string{"name": name},
	}, &out)
	return out, err
}

func (c *Client) SetDepartmentActive(ctx context.Context, id string, active bool) (Department, error) {
	var out Department
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   clinicPrefix + "/departments/" + id,
		body:   map[string]bool{"is_active": active},
	}, &out)
	return out, err
}

func (c *Client) DeleteDepartment(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: clinicPrefix + "/departments/" + id}, nil)
}

// ListCodes filters by status "used" or "unused"; empty lists all.
func (c *Client) ListCodes(ctx context.Context, status string) ([]AccessCode, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var out struct {
		Codes []AccessCode `json:"codes"`
	}
	err := c.do(ctx, request{method: http.MethodGet, path: clinicPrefix + "/codes", query: q}, &out)
	return out.Codes, err
}

func (c *Client) GenerateCodes(ctx context.Context, count int) ([]AccessCode, error) {
	var out struct {
		Codes []AccessCode `json:"codes"`
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   clinicPrefix + "/codes",
		body:   map[string]int{"count": count},
	}, &out)
	return out.Codes, err
}

func (c *Client) DeleteCode(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: clinicPrefix + "/codes/" + id}, nil)
}

func (c *Client) ListSlots(ctx context.Context, from, to string) ([]SlotDay, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	var out struct {
		Days []SlotDay `json:"days"`
	}
	err := c.do(ctx, request{method: http.MethodGet, path: clinicPrefix + "/slots", query: q}, &out)
	return out.Days, err
}

func (c *Client) CreateSlots(ctx context.Context, date string, hours []int) ([]Slot, error) {
	var out struct {
		Slots []Slot `json:"slots"`
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   clinicPrefix + "/slots",
		body:   map[string]any{"date": date, "hours": hours},
	}, &out)
	return out.Slots, err
}

func (c *Client) DeleteSlot(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: clinicPrefix + "/slots/" + id}, nil)
}

func (c *Client) ListRegistrations(ctx context.Context, status string) ([]Registration, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	return c.registrations(ctx, clinicPrefix+"/registrations", q)
}

func (c *Client) PatientQueue(ctx context.Context) ([]Registration, error) {
	return c.registrations(ctx, clinicPrefix+"/queue", nil)
}

func (c *Client) PatientHistory(ctx context.Context) ([]Registration, error) {
	return c.registrations(ctx, clinicPrefix+"/history", nil)
}

func (c *Client) registrations(ctx context.Context, path string, q url.Values) ([]Registration, error) {
	var out struct {
		Registrations []Registration `json:"registrations"`
	}
	err := c.do(ctx, request{method: http.MethodGet, path: path, query: q}, &out)
	return out.Registrations, err
}

func (c *Client) Patient(ctx context.Context, id string) (Registration, error) {
	var out Registration
	err := c.do(ctx, request{method: http.MethodGet, path: clinicPrefix + "/patients/" + id}, &out)
	return out, err
}

func (c *Client) FileMedicalRecord(ctx context.Context, registrationID string, rec MedicalRecord) (Registration, error) {
	var out Registration
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   clinicPrefix + "/records/" + registrationID,
		body:   rec,
	}, &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.do(ctx, request{method: http.MethodGet, path: clinicPrefix + "/stats"}, &out)
	return out, err
}

func (c *Client) Incidents(ctx context.Context, status string) ([]Incident, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var out struct {
		Incidents []Incident `json:"incidents"`
	}
	err := c.do(ctx, request{method: http.MethodGet, path: clinicPrefix + "/incidents", query: q}, &out)
	return out.Incidents, err
}

func (c *Client) ResolveIncident(ctx context.Context, id string) (Incident, error) {
	var out Incident
	err := c.do(ctx, request{method: http.MethodPost, path: clinicPrefix + "/incidents/" + id + "/resolve"}, &out)
	return out, err
}
