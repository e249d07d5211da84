package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/physiobook/physiobook/services/booking-service/internal/model"
	"github.com/physiobook/physiobook/services/booking-service/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store *storage.Memory
	gate  *Gate
	flow  *Workflow
	dept  model.Department
}

func newFixture() fixture {
	store := storage.NewMemory()
	return fixture{
		store: store,
		gate:  NewGate(store),
		flow:  NewWorkflow(store, store, store, store, store, quietLogger()),
		dept:  store.AddDepartment("Orthopedi", true),
	}
}

func (f fixture) form(name string) model.RegistrationForm {
	return model.RegistrationForm{
		FullName:     name,
		NationalID:   "3174000000000001",
		Phone:        "0812 3456 7890",
		DepartmentID: f.dept.ID,
		Complaint:    "lower back pain",
	}
}

// Scenario A: happy path.
func TestSubmitHappyPath(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AddCode("4821", false)
	slot := f.store.AddSlot("2030-03-10", 9, false)

	code, err := f.gate.Validate(ctx, "4821")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	reg, err := f.flow.Submit(ctx, slot.ID, code.ID, f.form("budi santoso"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if reg.FullName != "BUDI SANTOSO" {
		t.Fatalf("expected upper-cased name, got %q", reg.FullName)
	}
	if reg.Phone != "081234567890" {
		t.Fatalf("expected normalized phone, got %q", reg.Phone)
	}
	if reg.Status != model.StatusPending || reg.SlotDate != "2030-03-10" || reg.SlotHour != 9 {
		t.Fatalf("unexpected registration %+v", reg)
	}
	if !f.store.Slot(slot.ID).IsBooked || !f.store.Code(code.ID).IsUsed {
		t.Fatal("expected slot booked and code used")
	}

	days, err := NewCatalog(f.store, f.store).Available(ctx, "2030-03-01", "")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(days) != 0 {
		t.Fatalf("expected booked slot to disappear from catalog, got %+v", days)
	}
}

// Scenario B: two submissions race for one slot.
func TestSubmitSlotRace(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	slot := f.store.AddSlot("2030-03-10", 10, false)
	codes := []model.AccessCode{f.store.AddCode("1111", false), f.store.AddCode("2222", false)}

	var wg sync.WaitGroup
	errs := make([]error, len(codes))
	for i, c := range codes {
		wg.Add(1)
		go func(i int, codeID string) {
			defer wg.Done()
			_, errs[i] = f.flow.Submit(ctx, slot.ID, codeID, f.form("patient"))
		}(i, c.ID)
	}
	wg.Wait()

	var won, lost int
	for i, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSlotAlreadyTaken):
			lost++
			if f.store.Code(codes[i].ID).IsUsed {
				t.Fatal("losing submission must leave its code unused")
			}
			p, ok := ProgressOf(err)
			if !ok || p.SlotClaimed || p.CodeConsumed {
				t.Fatalf("expected empty progress on loss, got %+v", p)
			}
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected one winner and one loser, got %d/%d", won, lost)
	}
	if n := len(f.store.Registrations()); n != 1 {
		t.Fatalf("expected exactly one registration, got %d", n)
	}
}

// A code is consumed at most once even when two submissions hold it. The
// second one is turned away before it can claim a slot.
func TestSubmitSingleUseCode(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	code := f.store.AddCode("3333", false)
	first := f.store.AddSlot("2030-03-11", 8, false)
	second := f.store.AddSlot("2030-03-11", 9, false)

	if _, err := f.flow.Submit(ctx, first.ID, code.ID, f.form("a")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := f.flow.Submit(ctx, second.ID, code.ID, f.form("b"))
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for a used code, got %v", err)
	}
	if p, _ := ProgressOf(err); p.SlotClaimed || p.CodeConsumed {
		t.Fatalf("expected nothing modified, got %+v", p)
	}
	if f.store.Slot(second.ID).IsBooked {
		t.Fatal("used code must not claim another slot")
	}
	if _, err := f.gate.Validate(ctx, "3333"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected used code to be rejected by gate, got %v", err)
	}
	if n := len(f.store.Registrations()); n != 1 {
		t.Fatalf("expected one registration, got %d", n)
	}
	if n := len(f.store.Incidents()); n != 0 {
		t.Fatalf("expected no incidents, got %d", n)
	}
}

// Scenario C: the code check passes but consuming it fails after the claim.
func TestSubmitConsumeFailureKeepsSlotClaimed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	code := f.store.AddCode("3434", false)
	slot := f.store.AddSlot("2030-03-11", 10, false)
	f.store.ConsumeErr = errors.New("connection reset")

	_, err := f.flow.Submit(ctx, slot.ID, code.ID, f.form("a"))
	var ccf *CodeConsumptionFailed
	if !errors.As(err, &ccf) || ccf.SlotID != slot.ID {
		t.Fatalf("expected CodeConsumptionFailed for the slot, got %v", err)
	}
	p, _ := ProgressOf(err)
	if !p.SlotClaimed || p.CodeConsumed {
		t.Fatalf("unexpected progress %+v", p)
	}
	if !f.store.Slot(slot.ID).IsBooked || f.store.Code(code.ID).IsUsed {
		t.Fatal("expected slot left claimed and code left unused")
	}
	incidents := f.store.Incidents()
	if len(incidents) != 1 || incidents[0].Kind != model.IncidentCodeConsumptionFailed {
		t.Fatalf("expected one code consumption incident, got %+v", incidents)
	}
}

func TestSubmitRejectsUnknownOrInactiveDepartment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	code := f.store.AddCode("3535", false)
	slot := f.store.AddSlot("2030-03-11", 11, false)
	closed := f.store.AddDepartment("Closed", false)

	for _, deptID := range []string{closed.ID, uuid.NewString()} {
		form := f.form("a")
		form.DepartmentID = deptID
		_, err := f.flow.Submit(ctx, slot.ID, code.ID, form)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Fields["department_id"] == "" {
			t.Fatalf("department %s: expected department_id error, got %v", deptID, err)
		}
	}
	if f.store.Slot(slot.ID).IsBooked || f.store.Code(code.ID).IsUsed {
		t.Fatal("a rejected department must not modify the slot or code")
	}
	if f.store.Calls["Claim"] != 0 {
		t.Fatalf("expected no claim attempts, got %d", f.store.Calls["Claim"])
	}
}

func TestClaimDataExceptionIsValidation(t *testing.T) {
	f := newFixture()
	slot := f.store.AddSlot("2030-03-12", 16, false)
	code := f.store.AddCode("3636", false)
	f.store.ClaimErr = &pgconn.PgError{Code: "22P02"}

	_, err := f.flow.Submit(context.Background(), slot.ID, code.ID, f.form("e"))
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Fields["slot_id"] == "" {
		t.Fatalf("expected slot_id validation error, got %v", err)
	}
	if errors.Is(err, ErrNetwork) {
		t.Fatal("bad input must not be reported as a network error")
	}
}

func TestSubmitPersistFailureReportsBothIDs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	code := f.store.AddCode("4444", false)
	slot := f.store.AddSlot("2030-03-12", 13, false)
	f.store.CreateErr = errors.New("insert failed")

	_, err := f.flow.Submit(ctx, slot.ID, code.ID, f.form("c"))
	var rpf *RegistrationPersistFailed
	if !errors.As(err, &rpf) {
		t.Fatalf("expected RegistrationPersistFailed, got %v", err)
	}
	if rpf.SlotID != slot.ID || rpf.CodeID != code.ID {
		t.Fatalf("expected both ids, got %+v", rpf)
	}
	p, _ := ProgressOf(err)
	if !p.SlotClaimed || !p.CodeConsumed {
		t.Fatalf("expected both steps recorded, got %+v", p)
	}
	if !f.store.Slot(slot.ID).IsBooked || !f.store.Code(code.ID).IsUsed {
		t.Fatal("partial failure must not be compensated")
	}
	if len(f.store.Incidents()) != 1 {
		t.Fatal("expected persist failure to be recorded as an incident")
	}
}

func TestSubmitValidationMakesNoStoreCalls(t *testing.T) {
	f := newFixture()
	slot := f.store.AddSlot("2030-03-12", 14, false)
	code := f.store.AddCode("5555", false)

	form := f.form("d")
	form.Phone = "12345"
	form.Complaint = "   "

	_, err := f.flow.Submit(context.Background(), slot.ID, code.ID, form)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Fields["phone"] == "" || ve.Fields["complaint"] == "" {
		t.Fatalf("expected phone and complaint errors, got %v", ve.Fields)
	}
	if n := f.store.CallCount(); n != 0 {
		t.Fatalf("expected no store calls, got %d (%v)", n, f.store.Calls)
	}
}

func TestClaimTransportErrorIsNetwork(t *testing.T) {
	f := newFixture()
	slot := f.store.AddSlot("2030-03-12", 15, false)
	code := f.store.AddCode("6666", false)
	f.store.ClaimErr = errors.New("connection reset")

	_, err := f.flow.Submit(context.Background(), slot.ID, code.ID, f.form("e"))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if f.store.Code(code.ID).IsUsed {
		t.Fatal("code must stay unused")
	}
}

func TestGateRejectsMalformedWithoutLookup(t *testing.T) {
	f := newFixture()
	for _, code := range []string{"", "123", "12345", "12a4", " 1234"} {
		if _, err := f.gate.Validate(context.Background(), code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("code %q: expected ErrInvalidCode, got %v", code, err)
		}
	}
	if n := f.store.Calls["FindUnused"]; n != 0 {
		t.Fatalf("expected no lookups, got %d", n)
	}

	if _, err := f.gate.Validate(context.Background(), "9999"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected unknown code rejected, got %v", err)
	}
}

func TestCatalogIsDeterministic(t *testing.T) {
	f := newFixture()
	f.store.AddSlot("2030-03-02", 15, false)
	f.store.AddSlot("2030-03-01", 9, false)
	f.store.AddSlot("2030-03-02", 8, false)
	f.store.AddSlot("2030-03-01", 7, true)
	f.store.AddSlot("2030-02-27", 8, false)

	c := NewCatalog(f.store, f.store)
	ctx := context.Background()
	first, err := c.Available(ctx, "2030-03-01", "")
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	second, _ := c.Available(ctx, "2030-03-01", "")

	if len(first) != 2 || first[0].Date != "2030-03-01" || first[1].Date != "2030-03-02" {
		t.Fatalf("unexpected days %+v", first)
	}
	if len(first[0].Slots) != 1 || first[1].Slots[0].Hour != 8 || first[1].Slots[1].Hour != 15 {
		t.Fatalf("unexpected ordering %+v", first)
	}
	for i := range first {
		for j := range first[i].Slots {
			if first[i].Slots[j].ID != second[i].Slots[j].ID {
				t.Fatal("listing twice must give identical output")
			}
		}
	}

	one, _ := c.Available(ctx, "2030-03-01", "2030-03-02")
	if len(one) != 1 || one[0].Date != "2030-03-02" {
		t.Fatalf("expected date filter to narrow result, got %+v", one)
	}
	past, _ := c.Available(ctx, "2030-03-01", "2030-02-27")
	if len(past) != 0 {
		t.Fatalf("expected no past days, got %+v", past)
	}
}
