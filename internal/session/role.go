// Package session holds the session variable vocabulary shared by request
// authentication and permission resolution.
package session

import (
	"sort"
	"strings"
)

// Role is a named privilege level. Roles are case-sensitive.
type Role string

// NewRole creates a role from its name.
func NewRole(name string) Role {
	return Role(name)
}

func (r Role) String() string {
	return string(r)
}

// SortRoles sorts roles by value, in place.
func SortRoles(roles []Role) {
	sort.Slice(roles, func(i, j int) bool {
		return strings.Compare(string(roles[i]), string(roles[j])) < 0
	})
}
