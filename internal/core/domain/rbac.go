package domain

// Role defines a named collection of permissions within a tenant scope.
// Roles form a directed acyclic graph through Parents; a role inherits every
// permission granted to its ascendants. Admin roles live in a hierarchy of
// their own, flagged by Admin.
type Role struct {
	ContextID   string
	Name        string
	Admin       bool
	Parents     []string
	Constraint  *Constraint
	Description *string
}

// Relationship is an ordered (child, parent) hierarchy edge, the unit of
// hierarchy mutation.
type Relationship struct {
	Child  string
	Parent string
}

// PermObj is the protected resource a set of operations belongs to.
type PermObj struct {
	ContextID   string
	ObjName     string
	OrgUnit     string
	Type        *string
	Description *string
}

// Permission is an (object, operation) pair together with the roles and users
// granted it. The (object, operation, admin) triple is unique within a tenant
// scope.
type Permission struct {
	ContextID string
	ObjName   string
	OpName    string
	Admin     bool
	Type      *string
	Roles     []string
	Users     []string
}

// Ident returns the canonical object:operation identifier.
func (p Permission) Ident() string {
	return p.ObjName + ":" + p.OpName
}

// HasRole reports whether the named role is granted this permission.
func (p Permission) HasRole(role string) bool {
	for _, name := range p.Roles {
		if name == role {
			return true
		}
	}
	return false
}

// HasUser reports whether the user is granted this permission directly.
func (p Permission) HasUser(userID string) bool {
	for _, id := range p.Users {
		if id == userID {
			return true
		}
	}
	return false
}

// SDSetKind distinguishes static from dynamic separation-of-duty sets.
type SDSetKind string

const (
	// SDStatic constrains role assignment: a user may never hold
	// Cardinality or more member roles at once.
	SDStatic SDSetKind = "static"
	// SDDynamic constrains role activation: a session may never have
	// Cardinality or more member roles active at once.
	SDDynamic SDSetKind = "dynamic"
)

// SDSet is a named mutual-exclusion set over role names with a cardinality
// bound. Cardinality must be at least 2.
type SDSet struct {
	ContextID   string
	Name        string
	Kind        SDSetKind
	Members     []string
	Cardinality int
	Description *string
}

// HasMember reports whether the role belongs to the set.
func (s SDSet) HasMember(role string) bool {
	for _, name := range s.Members {
		if name == role {
			return true
		}
	}
	return false
}
