package access

import "testing"

func TestScopeFor(t *testing.T) {
	tests := []struct {
		role Role
		want []Collection
	}{
		{RoleFinance, []Collection{CollectionFinance, CollectionGeneral}},
		{RoleMarketing, []Collection{CollectionMarketing, CollectionGeneral}},
		{RoleHR, []Collection{CollectionHR, CollectionGeneral}},
		{RoleEngineering, []Collection{CollectionEngineering, CollectionGeneral}},
		{RoleEmployee, []Collection{CollectionGeneral}},
		{RoleCLevel, []Collection{CollectionFinance, CollectionMarketing, CollectionHR, CollectionEngineering, CollectionGeneral}},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			got := ScopeFor(tt.role)
			if len(got) != len(tt.want) {
				t.Fatalf("ScopeFor(%s): got %v, want %v", tt.role, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ScopeFor(%s)[%d]: got %s, want %s", tt.role, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestScopeFor_UnknownRole(t *testing.T) {
	if got := ScopeFor(Role("intern")); got != nil {
		t.Errorf("expected nil scope for unknown role, got %v", got)
	}
}

func TestScopeAllows(t *testing.T) {
	scope := NewScope(RoleEmployee)
	if scope.Allows(CollectionFinance) {
		t.Error("employee scope must not allow finance")
	}
	if !scope.Allows(CollectionGeneral) {
		t.Error("employee scope must allow general")
	}

	clevel := NewScope(RoleCLevel)
	for _, c := range AllCollections {
		if !clevel.Allows(c) {
			t.Errorf("c-level scope must allow %s", c)
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range AllRoles {
		got, err := ParseRole(string(r))
		if err != nil {
			t.Fatalf("ParseRole(%s): %v", r, err)
		}
		if got != r {
			t.Errorf("ParseRole(%s): got %s", r, got)
		}
	}

	if _, err := ParseRole("superadmin"); err == nil {
		t.Error("expected error for unknown role")
	}
	if _, err := ParseRole(""); err == nil {
		t.Error("expected error for empty role")
	}
}

func TestParseCollection(t *testing.T) {
	for _, c := range AllCollections {
		got, err := ParseCollection(string(c))
		if err != nil {
			t.Fatalf("ParseCollection(%s): %v", c, err)
		}
		if got != c {
			t.Errorf("ParseCollection(%s): got %s", c, got)
		}
	}

	if _, err := ParseCollection("legal"); err == nil {
		t.Error("expected error for unknown collection")
	}
	if _, err := ParseCollection(""); err == nil {
		t.Error("expected error for empty collection")
	}
}

func TestScopeForReturnsCopy(t *testing.T) {
	first := ScopeFor(RoleFinance)
	first[0] = CollectionHR
	second := ScopeFor(RoleFinance)
	if second[0] != CollectionFinance {
		t.Error("mutating a returned scope must not affect later calls")
	}
}
