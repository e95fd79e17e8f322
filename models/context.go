package models

import (
	"fmt"
	"strings"
)

// Context is a persona a single user identity may hold
type Context string

const (
	ContextExplorer  Context = "explorer"
	ContextStartup   Context = "startup"
	ContextMentor    Context = "mentor"
	ContextInstitute Context = "institute"
	ContextAdmin     Context = "admin"
)

// AllContexts lists the closed set of contexts
var AllContexts = []Context{ContextExplorer, ContextStartup, ContextMentor, ContextInstitute, ContextAdmin}

// ParseContext validates a raw context name
func ParseContext(s string) (Context, error) {
	c := Context(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown context %q", s)
	}
	return c, nil
}

// Valid reports whether c is one of the known contexts
func (c Context) Valid() bool {
	switch c {
	case ContextExplorer, ContextStartup, ContextMentor, ContextInstitute, ContextAdmin:
		return true
	}
	return false
}

// RequiresEntity reports whether tokens for c must be bound to an entity id
func (c Context) RequiresEntity() bool {
	return c == ContextStartup || c == ContextInstitute
}

// ContainsContext reports whether c is present in set
func ContainsContext(set []Context, c Context) bool {
	for _, v := range set {
		if v == c {
			return true
		}
	}
	return false
}

// AdminLevel is an ordinal admin privilege tier
type AdminLevel string

const (
	AdminLevelL1 AdminLevel = "L1"
	AdminLevelL2 AdminLevel = "L2"
	AdminLevelL3 AdminLevel = "L3"
)

// Rank returns the ordinal of the level, 0 for unknown or empty
func (l AdminLevel) Rank() int {
	switch l {
	case AdminLevelL1:
		return 1
	case AdminLevelL2:
		return 2
	case AdminLevelL3:
		return 3
	}
	return 0
}

// Valid reports whether l is a known level
func (l AdminLevel) Valid() bool {
	return l.Rank() > 0
}

// AtLeast reports whether l meets the minimum level
func (l AdminLevel) AtLeast(min AdminLevel) bool {
	return l.Rank() > 0 && l.Rank() >= min.Rank()
}

// LegacyRole is a pre-unification per-role account type
type LegacyRole string

const (
	LegacyRoleFounder     LegacyRole = "founder"
	LegacyRoleMentor      LegacyRole = "mentor"
	LegacyRoleInstitution LegacyRole = "institution"
	LegacyRoleInvestor    LegacyRole = "investor"
)

// LegacyRoles is the fixed scan order used when no role hint is given
var LegacyRoles = []LegacyRole{LegacyRoleFounder, LegacyRoleMentor, LegacyRoleInstitution, LegacyRoleInvestor}

// ParseLegacyRole validates a raw role name
func ParseLegacyRole(s string) (LegacyRole, error) {
	r := LegacyRole(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range LegacyRoles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown legacy role %q", s)
}

// TokenKey is the cookie and client storage key of the role's token
func (r LegacyRole) TokenKey() string {
	return string(r) + "_token"
}

// Context maps the role to its unified context. Investors have none.
func (r LegacyRole) Context() (Context, bool) {
	switch r {
	case LegacyRoleFounder:
		return ContextStartup, true
	case LegacyRoleMentor:
		return ContextMentor, true
	case LegacyRoleInstitution:
		return ContextInstitute, true
	}
	return "", false
}
