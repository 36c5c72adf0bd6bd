// Package access maps user roles to the document collections they may
// query. The mapping is a fixed table resolved once per request; retrieval
// code never receives a caller-supplied collection list.
package access

import "fmt"

// Role identifies a user's position in the company.
type Role string

const (
	RoleFinance     Role = "finance"
	RoleMarketing   Role = "marketing"
	RoleHR          Role = "hr"
	RoleEngineering Role = "engineering"
	RoleEmployee    Role = "employee"
	RoleCLevel      Role = "c-level"
)

// Collection identifies a department-scoped partition of document chunks.
type Collection string

const (
	CollectionFinance     Collection = "finance"
	CollectionMarketing   Collection = "marketing"
	CollectionHR          Collection = "hr"
	CollectionEngineering Collection = "engineering"
	CollectionGeneral     Collection = "general"
)

// AllRoles lists every recognized role.
var AllRoles = []Role{
	RoleFinance,
	RoleMarketing,
	RoleHR,
	RoleEngineering,
	RoleEmployee,
	RoleCLevel,
}

// AllCollections lists every department collection.
var AllCollections = []Collection{
	CollectionFinance,
	CollectionMarketing,
	CollectionHR,
	CollectionEngineering,
	CollectionGeneral,
}

// scopeTable is the single source of truth for role-based read access.
// Every department role additionally reads the shared general collection.
var scopeTable = map[Role][]Collection{
	RoleFinance:     {CollectionFinance, CollectionGeneral},
	RoleMarketing:   {CollectionMarketing, CollectionGeneral},
	RoleHR:          {CollectionHR, CollectionGeneral},
	RoleEngineering: {CollectionEngineering, CollectionGeneral},
	RoleEmployee:    {CollectionGeneral},
	RoleCLevel:      {CollectionFinance, CollectionMarketing, CollectionHR, CollectionEngineering, CollectionGeneral},
}

// ParseRole validates a role string against the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := scopeTable[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is a recognized role.
func (r Role) Valid() bool {
	_, ok := scopeTable[r]
	return ok
}

// ParseCollection validates a collection string against the closed set.
func ParseCollection(s string) (Collection, error) {
	c := Collection(s)
	for _, known := range AllCollections {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown collection %q", s)
}

// ScopeFor returns the collections the given role may query. The returned
// slice is a copy; callers can't mutate the table. Unknown roles get no
// access at all.
func ScopeFor(role Role) []Collection {
	cols, ok := scopeTable[role]
	if !ok {
		return nil
	}
	out := make([]Collection, len(cols))
	copy(out, cols)
	return out
}

// Scope is the resolved, immutable access scope for one request.
type Scope struct {
	Role        Role
	collections map[Collection]struct{}
	ordered     []Collection
}

// NewScope resolves a role into its Scope.
func NewScope(role Role) Scope {
	cols := ScopeFor(role)
	set := make(map[Collection]struct{}, len(cols))
	for _, c := range cols {
		set[c] = struct{}{}
	}
	return Scope{Role: role, collections: set, ordered: cols}
}

// Collections returns the collections in the scope in table order.
func (s Scope) Collections() []Collection {
	out := make([]Collection, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Allows reports whether the scope covers the given collection.
func (s Scope) Allows(c Collection) bool {
	_, ok := s.collections[c]
	return ok
}
