// Package metadata holds the declarative inputs of permission resolution:
// commands, their argument types, the type registry and the value
// expressions used as argument presets.
package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned when a type reference names a type that is not declared.
var ErrUnknownType = errors.New("unknown type")

// Qualified scopes a name to the subgraph declaring it.
type Qualified[T ~string] struct {
	Subgraph string
	Name     T
}

// Qualify builds a Qualified name.
func Qualify[T ~string](subgraph string, name T) Qualified[T] {
	return Qualified[T]{Subgraph: subgraph, Name: name}
}

func (q Qualified[T]) String() string {
	return fmt.Sprintf("%s (in subgraph %s)", string(q.Name), q.Subgraph)
}

type (
	CommandName    string
	ArgumentName   string
	CustomTypeName string
	FieldName      string
)

// InbuiltType is one of the scalar types every subgraph knows about.
type InbuiltType string

const (
	InbuiltInt     InbuiltType = "Int"
	InbuiltFloat   InbuiltType = "Float"
	InbuiltString  InbuiltType = "String"
	InbuiltBoolean InbuiltType = "Boolean"
	InbuiltID      InbuiltType = "ID"
)

func inbuiltType(name string) (InbuiltType, bool) {
	switch t := InbuiltType(name); t {
	case InbuiltInt, InbuiltFloat, InbuiltString, InbuiltBoolean, InbuiltID:
		return t, true
	}
	return "", false
}

// TypeName is either an inbuilt scalar or a custom type declared in a subgraph.
type TypeName struct {
	Inbuilt InbuiltType
	Custom  Qualified[CustomTypeName]
}

// IsInbuilt reports whether the name refers to an inbuilt scalar.
func (n TypeName) IsInbuilt() bool {
	return n.Inbuilt != ""
}

func (n TypeName) String() string {
	if n.IsInbuilt() {
		return string(n.Inbuilt)
	}
	return string(n.Custom.Name)
}

// TypeReference is a possibly nullable named or list type.
// Exactly one of Name or Element is meaningful: Element is set for lists.
type TypeReference struct {
	Name     TypeName
	Element  *TypeReference
	Nullable bool
}

// IsList reports whether the reference is a list type.
func (r TypeReference) IsList() bool {
	return r.Element != nil
}

// String renders the reference in its GraphQL-like form, e.g. "[Int!]".
func (r TypeReference) String() string {
	var s string
	if r.IsList() {
		s = "[" + r.Element.String() + "]"
	} else {
		s = r.Name.String()
	}
	if !r.Nullable {
		s += "!"
	}
	return s
}

// ParseTypeReference parses the textual form of a type ("Int!", "[String!]",
// "my_type") declared in subgraph.
func ParseTypeReference(subgraph, raw string) (TypeReference, error) {
	s := strings.TrimSpace(raw)
	ref, err := parseTypeReference(subgraph, s)
	if err != nil {
		return TypeReference{}, fmt.Errorf("invalid type reference %q: %w", raw, err)
	}
	return ref, nil
}

func parseTypeReference(subgraph, s string) (TypeReference, error) {
	nullable := true
	if strings.HasSuffix(s, "!") {
		nullable = false
		s = strings.TrimSpace(strings.TrimSuffix(s, "!"))
	}
	if s == "" {
		return TypeReference{}, errors.New("empty type name")
	}

	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return TypeReference{}, errors.New("unterminated list type")
		}
		element, err := parseTypeReference(subgraph, strings.TrimSpace(s[1:len(s)-1]))
		if err != nil {
			return TypeReference{}, err
		}
		return TypeReference{Element: &element, Nullable: nullable}, nil
	}

	if !validIdentifier(s) {
		return TypeReference{}, fmt.Errorf("invalid type name %q", s)
	}
	if inbuilt, ok := inbuiltType(s); ok {
		return TypeReference{Name: TypeName{Inbuilt: inbuilt}, Nullable: nullable}, nil
	}
	return TypeReference{
		Name:     TypeName{Custom: Qualify(subgraph, CustomTypeName(s))},
		Nullable: nullable,
	}, nil
}

// MustParseTypeReference is like ParseTypeReference but panics on error.
func MustParseTypeReference(subgraph, raw string) TypeReference {
	ref, err := ParseTypeReference(subgraph, raw)
	if err != nil {
		panic(err)
	}
	return ref
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// ScalarType is a custom scalar. A non-empty Representation makes literals
// typecheck as that inbuilt scalar; otherwise any non-null value is accepted.
type ScalarType struct {
	Name           Qualified[CustomTypeName]
	Representation InbuiltType
}

// ObjectField is a field of an object type.
type ObjectField struct {
	Type TypeReference
}

// ObjectType is a custom type made of named fields.
type ObjectType struct {
	Name   Qualified[CustomTypeName]
	Fields map[FieldName]ObjectField
}

// TypeRegistry holds every custom type known to the resolver. It is read-only
// once built and safe for concurrent use.
type TypeRegistry struct {
	Scalars map[Qualified[CustomTypeName]]ScalarType
	Objects map[Qualified[CustomTypeName]]ObjectType
}

// NewTypeRegistry returns an empty registry. Inbuilt scalars are always known.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		Scalars: map[Qualified[CustomTypeName]]ScalarType{},
		Objects: map[Qualified[CustomTypeName]]ObjectType{},
	}
}

// AddScalar registers a custom scalar. Names must be unique across scalars and objects.
func (r *TypeRegistry) AddScalar(scalar ScalarType) error {
	if r.has(scalar.Name) {
		return fmt.Errorf("duplicate type definition %s", scalar.Name)
	}
	r.Scalars[scalar.Name] = scalar
	return nil
}

// AddObject registers an object type. Names must be unique across scalars and objects.
func (r *TypeRegistry) AddObject(object ObjectType) error {
	if r.has(object.Name) {
		return fmt.Errorf("duplicate type definition %s", object.Name)
	}
	r.Objects[object.Name] = object
	return nil
}

func (r *TypeRegistry) has(name Qualified[CustomTypeName]) bool {
	_, isScalar := r.Scalars[name]
	_, isObject := r.Objects[name]
	return isScalar || isObject
}

// CheckReference verifies that every custom type named by ref, including list
// elements, is declared.
func (r *TypeRegistry) CheckReference(ref TypeReference) error {
	if ref.IsList() {
		return r.CheckReference(*ref.Element)
	}
	if ref.Name.IsInbuilt() || r.has(ref.Name.Custom) {
		return nil
	}
	return fmt.Errorf("%w %s", ErrUnknownType, ref.Name.Custom)
}
