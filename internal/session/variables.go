package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// HeaderPrefix is the prefix of client headers carrying session variables.
	HeaderPrefix = "x-hasura-"

	// RoleVariable is the reserved session variable holding the caller role.
	RoleVariable VariableName = "x-hasura-role"
)

// ErrInvalidVariableName is returned when a session variable name cannot be parsed.
var ErrInvalidVariableName = errors.New("invalid session variable name")

// VariableName is a normalized (lower-case) session variable name.
type VariableName string

// ParseVariableName normalizes s into a VariableName.
func ParseVariableName(s string) (VariableName, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidVariableName)
	}
	for _, c := range name {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' && c != '_' {
			return "", fmt.Errorf("%w: %q", ErrInvalidVariableName, s)
		}
	}
	return VariableName(name), nil
}

// MustParseVariableName is like ParseVariableName but panics on error.
func MustParseVariableName(s string) VariableName {
	name, err := ParseVariableName(s)
	if err != nil {
		panic(err)
	}
	return name
}

func (n VariableName) String() string {
	return string(n)
}

// IsSessionHeader reports whether a client header carries a session variable.
func IsSessionHeader(header string) bool {
	return strings.HasPrefix(strings.ToLower(header), HeaderPrefix)
}

// VariableValue is a parsed JSON value. It is opaque to the authenticator.
type VariableValue struct {
	raw any
}

// NewVariableValue wraps a value decoded by encoding/json.
func NewVariableValue(raw any) VariableValue {
	return VariableValue{raw: raw}
}

// Raw returns the underlying JSON value.
func (v VariableValue) Raw() any {
	return v.raw
}

// AsString returns the value if it is a JSON string.
func (v VariableValue) AsString() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok
}

// MarshalJSON renders the wrapped value.
func (v VariableValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.raw)
}

// Variables maps session variable names to their values.
type Variables map[VariableName]VariableValue

// Get returns the value of a session variable.
func (v Variables) Get(name VariableName) (VariableValue, bool) {
	value, ok := v[name]
	return value, ok
}

// Clone returns a shallow copy.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for name, value := range v {
		out[name] = value
	}
	return out
}

// Names returns the variable names in sorted order.
func (v Variables) Names() []VariableName {
	names := make([]VariableName, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
