package auth

import "testing"

func TestParseRoleAliases(t *testing.T) {
	cases := map[string]Role{
		"admin":           RoleAdmin,
		"Dokter":          RolePhysician,
		"physician":       RolePhysician,
		" fisioterapis ":  RolePhysiotherapist,
		"physiotherapist": RolePhysiotherapist,
	}
	for raw, want := range cases {
		got, err := ParseRole(raw)
		if err != nil {
			t.Fatalf("ParseRole(%q) failed: %v", raw, err)
		}
		if got != want {
			t.Errorf("ParseRole(%q) = %q, want %q", raw, got, want)
		}
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Fatal("expected unknown role to fail")
	}
	if _, err := ParseRole(""); err == nil {
		t.Fatal("expected empty role to fail")
	}
}

func TestRoleCapabilities(t *testing.T) {
	admin := RoleCapabilities(RoleAdmin)
	if !admin.Has(CapManageUsers) || admin.Has(CapFileMedicalRecord) {
		t.Fatalf("unexpected admin capabilities %v", admin.List())
	}

	physician := RoleCapabilities(RolePhysician)
	if physician.Has(CapManageUsers) {
		t.Fatal("physician must not manage users")
	}
	if !physician.Has(CapViewPatientQueue) || !physician.Has(CapManageSlots) {
		t.Fatalf("unexpected physician capabilities %v", physician.List())
	}

	physio := RoleCapabilities(RolePhysiotherapist)
	if !physio.Has(CapFileMedicalRecord) || physio.Has(CapViewStats) {
		t.Fatalf("unexpected physiotherapist capabilities %v", physio.List())
	}

	if len(RoleCapabilities(Role("owner"))) != 0 {
		t.Fatal("unknown role must have no capabilities")
	}
}

func TestRoutesFor(t *testing.T) {
	adminRoutes := RoutesFor(RoleCapabilities(RoleAdmin))
	var sawUsers, sawQueue bool
	for _, r := range adminRoutes {
		sawUsers = sawUsers || r.Path == "/admin/users"
		sawQueue = sawQueue || r.Path == "/clinic/queue"
	}
	if !sawUsers || sawQueue {
		t.Fatalf("unexpected admin routes %+v", adminRoutes)
	}

	physioRoutes := RoutesFor(RoleCapabilities(RolePhysiotherapist))
	if len(physioRoutes) != 2 {
		t.Fatalf("expected queue + history for physiotherapist, got %+v", physioRoutes)
	}
	if physioRoutes[0].Path != "/clinic/queue" || physioRoutes[1].Path != "/clinic/history" {
		t.Fatalf("routes out of order: %+v", physioRoutes)
	}
}
