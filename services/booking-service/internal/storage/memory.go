package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/physiobook/physiobook/services/booking-service/internal/model"
)

// Memory is an in-process store with the same conditional-update semantics
// as the Postgres repositories.
type Memory struct {
	mu            sync.Mutex
	codes         map[string]*model.AccessCode
	slots         map[string]*model.Slot
	departments   map[string]*model.Department
	registrations map[string]model.ExpandedRegistration
	incidents     []model.Incident

	// Fault injection. A non-nil error is returned by the matching call.
	FindErr    error
	ListErr    error
	ClaimErr   error
	ConsumeErr error
	CreateErr  error

	// Calls counts store invocations by method name.
	Calls map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		codes:         map[string]*model.AccessCode{},
		slots:         map[string]*model.Slot{},
		departments:   map[string]*model.Department{},
		registrations: map[string]model.ExpandedRegistration{},
		Calls:         map[string]int{},
	}
}

func (m *Memory) AddCode(code string, used bool) model.AccessCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	ac := &model.AccessCode{ID: uuid.NewString(), Code: code, IsUsed: used, CreatedAt: time.Now().UTC()}
	m.codes[ac.ID] = ac
	return *ac
}

func (m *Memory) AddSlot(date string, hour int, booked bool) model.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &model.Slot{ID: uuid.NewString(), Date: date, Hour: hour, IsBooked: booked, CreatedAt: time.Now().UTC()}
	m.slots[s.ID] = s
	return *s
}

func (m *Memory) AddDepartment(name string, active bool) model.Department {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &model.Department{ID: uuid.NewString(), Name: name, IsActive: active, CreatedAt: time.Now().UTC()}
	m.departments[d.ID] = d
	return *d
}

func (m *Memory) Code(id string) model.AccessCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.codes[id]; ok {
		return *c
	}
	return model.AccessCode{}
}

func (m *Memory) Slot(id string) model.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[id]; ok {
		return *s
	}
	return model.Slot{}
}

func (m *Memory) Registrations() []model.ExpandedRegistration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ExpandedRegistration, 0, len(m.registrations))
	for _, r := range m.registrations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) Incidents() []model.Incident {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Incident(nil), m.incidents...)
}

func (m *Memory) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		n += c
	}
	return n
}

func (m *Memory) FindUnused(_ context.Context, code string) (model.AccessCode, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["FindUnused"]++
	if m.FindErr != nil {
		return model.AccessCode{}, false, m.FindErr
	}
	for _, c := range m.codes {
		if c.Code == code && !c.IsUsed {
			return *c, true, nil
		}
	}
	return model.AccessCode{}, false, nil
}

func (m *Memory) Consume(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Consume"]++
	if m.ConsumeErr != nil {
		return false, m.ConsumeErr
	}
	c, ok := m.codes[id]
	if !ok || c.IsUsed {
		return false, nil
	}
	c.IsUsed = true
	return true, nil
}

func (m *Memory) IsUnused(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["IsUnused"]++
	if m.FindErr != nil {
		return false, m.FindErr
	}
	c, ok := m.codes[id]
	return ok && !c.IsUsed, nil
}

func (m *Memory) ListOpen(_ context.Context, from, on string) ([]model.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["ListOpen"]++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := []model.Slot{}
	for _, s := range m.slots {
		if s.IsBooked || s.Date < from || (on != "" && s.Date != on) {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *Memory) Claim(_ context.Context, id string) (model.Slot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Claim"]++
	if m.ClaimErr != nil {
		return model.Slot{}, false, m.ClaimErr
	}
	s, ok := m.slots[id]
	if !ok || s.IsBooked {
		return model.Slot{}, false, nil
	}
	s.IsBooked = true
	return *s, true, nil
}

func (m *Memory) ListActive(_ context.Context) ([]model.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["ListActive"]++
	out := []model.Department{}
	for _, d := range m.departments {
		if d.IsActive {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (model.Department, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Get"]++
	d, ok := m.departments[id]
	if !ok {
		return model.Department{}, false, nil
	}
	return *d, true, nil
}

var errUniqueRegistration = errors.New("registration already exists for slot or code")

func (m *Memory) Create(_ context.Context, reg model.Registration) (model.ExpandedRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Create"]++
	if m.CreateErr != nil {
		return model.ExpandedRegistration{}, m.CreateErr
	}
	for _, r := range m.registrations {
		if r.SlotID == reg.SlotID || r.AccessCodeID == reg.AccessCodeID {
			return model.ExpandedRegistration{}, errUniqueRegistration
		}
	}
	slot, ok := m.slots[reg.SlotID]
	if !ok {
		return model.ExpandedRegistration{}, errors.New("slot not found")
	}
	dept, ok := m.departments[reg.DepartmentID]
	if !ok {
		return model.ExpandedRegistration{}, errors.New("department not found")
	}
	code, ok := m.codes[reg.AccessCodeID]
	if !ok {
		return model.ExpandedRegistration{}, errors.New("access code not found")
	}

	reg.ID = uuid.NewString()
	reg.CreatedAt = time.Now().UTC()
	if reg.Status == "" {
		reg.Status = model.StatusPending
	}
	exp := model.ExpandedRegistration{
		Registration:   reg,
		SlotDate:       slot.Date,
		SlotHour:       slot.Hour,
		DepartmentName: dept.Name,
		AccessCode:     code.Code,
	}
	m.registrations[reg.ID] = exp
	return exp, nil
}

func (m *Memory) Record(_ context.Context, inc model.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Record"]++
	for _, existing := range m.incidents {
		if existing.Status == "open" && existing.ResourceType == inc.ResourceType && existing.ResourceID == inc.ResourceID {
			return nil
		}
	}
	inc.ID = uuid.NewString()
	inc.Status = "open"
	inc.CreatedAt = time.Now().UTC()
	m.incidents = append(m.incidents, inc)
	return nil
}
