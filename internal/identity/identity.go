// Package identity defines the output of request authentication: the caller
// role and what that role is allowed to assert about the session.
package identity

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/matthisholleville/authgate/internal/session"
)

// ErrRoleNotAllowed is returned when the caller requests a role the identity does not hold.
var ErrRoleNotAllowed = errors.New("role is not allowed for this identity")

// VariableList is either every session variable or an explicit set of names.
type VariableList struct {
	all   bool
	names map[session.VariableName]struct{}
}

// AllVariables matches every session variable name.
func AllVariables() VariableList {
	return VariableList{all: true}
}

// SomeVariables matches only the given names.
func SomeVariables(names ...session.VariableName) VariableList {
	set := make(map[session.VariableName]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return VariableList{names: set}
}

// Contains reports whether name is part of the list.
func (l VariableList) Contains(name session.VariableName) bool {
	if l.all {
		return true
	}
	_, ok := l.names[name]
	return ok
}

// IsEmpty reports whether the list matches nothing.
func (l VariableList) IsEmpty() bool {
	return !l.all && len(l.names) == 0
}

// RoleAuthorization is what a role is allowed after authentication.
type RoleAuthorization struct {
	Role             session.Role
	SessionVariables session.Variables
	// AllowedFromRequest lists the session variables the caller may assert
	// through request headers on top of the ones returned by the hook.
	AllowedFromRequest VariableList
}

// Identity is the authenticated caller. It is either Specific or RoleEmulationEnabled.
type Identity interface {
	isIdentity()
}

// Specific is an identity bound to a fixed set of roles.
type Specific struct {
	DefaultRole  session.Role
	AllowedRoles map[session.Role]RoleAuthorization
}

// RoleEmulationEnabled is an identity allowed to emulate any role.
type RoleEmulationEnabled struct {
	Role session.Role
}

func (Specific) isIdentity()             {}
func (RoleEmulationEnabled) isIdentity() {}

// NewSpecific builds a Specific identity. The default role must be part of allowedRoles.
func NewSpecific(defaultRole session.Role, allowedRoles map[session.Role]RoleAuthorization) (Specific, error) {
	if _, ok := allowedRoles[defaultRole]; !ok {
		return Specific{}, fmt.Errorf("default role %q is missing from the allowed roles", defaultRole)
	}
	return Specific{DefaultRole: defaultRole, AllowedRoles: allowedRoles}, nil
}

// Session is the effective role and session variables of a request.
type Session struct {
	Role      session.Role      `json:"role"`
	Variables session.Variables `json:"sessionVariables"`
}

// Authorize resolves the session of a request from its identity, the role
// requested by the client (if any) and the client headers.
func Authorize(id Identity, requestedRole *session.Role, clientHeaders http.Header) (Session, error) {
	switch id := id.(type) {
	case Specific:
		role := id.DefaultRole
		if requestedRole != nil {
			role = *requestedRole
		}
		authorization, ok := id.AllowedRoles[role]
		if !ok {
			return Session{}, fmt.Errorf("%w: %s", ErrRoleNotAllowed, role)
		}
		vars := sessionVariablesFromHeaders(clientHeaders, authorization.AllowedFromRequest)
		// values returned by the hook always win
		for name, value := range authorization.SessionVariables {
			vars[name] = value
		}
		return Session{Role: role, Variables: vars}, nil
	case RoleEmulationEnabled:
		role := id.Role
		if requestedRole != nil {
			role = *requestedRole
		}
		vars := sessionVariablesFromHeaders(clientHeaders, AllVariables())
		vars[session.RoleVariable] = session.NewVariableValue(role.String())
		return Session{Role: role, Variables: vars}, nil
	default:
		return Session{}, fmt.Errorf("unsupported identity %T", id)
	}
}

// RequestedRole returns the role asked for through the x-hasura-role header.
func RequestedRole(clientHeaders http.Header) *session.Role {
	value := clientHeaders.Get(session.RoleVariable.String())
	if value == "" {
		return nil
	}
	role := session.NewRole(value)
	return &role
}

func sessionVariablesFromHeaders(headers http.Header, allowed VariableList) session.Variables {
	vars := session.Variables{}
	if allowed.IsEmpty() {
		return vars
	}
	for header, values := range headers {
		if len(values) == 0 || !session.IsSessionHeader(header) {
			continue
		}
		name, err := session.ParseVariableName(header)
		if err != nil || name == session.RoleVariable || !allowed.Contains(name) {
			continue
		}
		vars[name] = session.NewVariableValue(values[0])
	}
	return vars
}
