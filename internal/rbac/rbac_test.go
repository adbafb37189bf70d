package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "student read", role: RoleStudent, action: ActionRead, allow: true},
		{name: "student write", role: RoleStudent, action: ActionWrite, allow: true},
		{name: "student submit", role: RoleStudent, action: ActionSubmit, allow: true},
		{name: "student comment", role: RoleStudent, action: ActionComment, allow: false},
		{name: "student approve", role: RoleStudent, action: ActionApprove, allow: false},
		{name: "supervisor comment", role: RoleSupervisor, action: ActionComment, allow: true},
		{name: "supervisor approve", role: RoleSupervisor, action: ActionApprove, allow: true},
		{name: "supervisor write", role: RoleSupervisor, action: ActionWrite, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "superadmin admin", role: RoleSuperadmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("supervisor"); got != RoleSupervisor {
		t.Fatalf("Normalize(supervisor) = %q", got)
	}
	if got := Normalize("bogus"); got != RoleStudent {
		t.Fatalf("expected unknown roles to fall back to student, got %q", got)
	}
}
