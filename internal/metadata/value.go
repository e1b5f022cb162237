package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/matthisholleville/authgate/internal/session"
	"gopkg.in/yaml.v3"
)

var ErrEmptyValueExpression = errors.New("value expression must set either `literal` or `sessionVariable`")

// RawValueExpression is a value expression as declared, before resolution.
type RawValueExpression struct {
	Literal         any
	HasLiteral      bool
	SessionVariable string
}

// LiteralExpression declares a literal value.
func LiteralExpression(value any) RawValueExpression {
	return RawValueExpression{Literal: value, HasLiteral: true}
}

// SessionVariableExpression declares a value read from a session variable.
func SessionVariableExpression(name string) RawValueExpression {
	return RawValueExpression{SessionVariable: name}
}

// UnmarshalYAML accepts `{literal: <any>}` or `{sessionVariable: <name>}`.
func (e *RawValueExpression) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: %w", node.Line, ErrEmptyValueExpression)
	}
	key, value := node.Content[0], node.Content[1]
	switch key.Value {
	case "literal":
		var literal any
		if err := value.Decode(&literal); err != nil {
			return err
		}
		*e = LiteralExpression(normalizeYAML(literal))
	case "sessionVariable":
		var name string
		if err := value.Decode(&name); err != nil {
			return err
		}
		*e = SessionVariableExpression(name)
	default:
		return fmt.Errorf("line %d: unknown value expression %q, expected `literal` or `sessionVariable`", key.Line, key.Value)
	}
	return nil
}

// normalizeYAML converts decoded YAML into the shapes encoding/json produces,
// so literals typecheck the same way whatever their source.
func normalizeYAML(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[key] = normalizeYAML(value)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[fmt.Sprint(key)] = normalizeYAML(value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, value := range v {
			out[i] = normalizeYAML(value)
		}
		return out
	default:
		return v
	}
}

// ValueExpression is a resolved preset value: a Literal or a SessionVariable.
type ValueExpression interface {
	isValueExpression()
}

// Literal is a constant value.
type Literal struct {
	Value any
}

// SessionVariable reads the value of a session variable at request time.
type SessionVariable struct {
	Name session.VariableName
}

func (Literal) isValueExpression()         {}
func (SessionVariable) isValueExpression() {}

func (l Literal) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"literal": l.Value})
}

func (s SessionVariable) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"sessionVariable": s.Name})
}

// ResolveValueExpressionForArgument validates a declared preset value against
// the declared type of argument and resolves it.
func ResolveValueExpressionForArgument(
	argument ArgumentName,
	raw RawValueExpression,
	argumentType TypeReference,
	subgraph string,
	registry *TypeRegistry,
) (ValueExpression, error) {
	if err := registry.CheckReference(argumentType); err != nil {
		return nil, fmt.Errorf("argument %s in subgraph %s: %w", argument, subgraph, err)
	}

	switch {
	case raw.SessionVariable != "" && raw.HasLiteral:
		return nil, fmt.Errorf("argument %s: %w", argument, ErrEmptyValueExpression)
	case raw.SessionVariable != "":
		name, err := session.ParseVariableName(raw.SessionVariable)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", argument, err)
		}
		return SessionVariable{Name: name}, nil
	case raw.HasLiteral:
		return Literal{Value: raw.Literal}, nil
	default:
		return nil, fmt.Errorf("argument %s: %w", argument, ErrEmptyValueExpression)
	}
}

// IsComposite reports whether ref is a list or an object type.
func (r *TypeRegistry) IsComposite(ref TypeReference) bool {
	if ref.IsList() {
		return true
	}
	if ref.Name.IsInbuilt() {
		return false
	}
	_, ok := r.Objects[ref.Name.Custom]
	return ok
}

// TypecheckValue checks a value known at request time against ref.
func (r *TypeRegistry) TypecheckValue(ref TypeReference, value any) error {
	return r.typecheck("$", ref, value)
}

// ScalarRepresentation returns the inbuilt scalar used to check values of
// ref, if any.
func (r *TypeRegistry) ScalarRepresentation(ref TypeReference) (InbuiltType, bool) {
	if ref.IsList() {
		return "", false
	}
	if ref.Name.IsInbuilt() {
		return ref.Name.Inbuilt, true
	}
	scalar, ok := r.Scalars[ref.Name.Custom]
	if !ok || scalar.Representation == "" {
		return "", false
	}
	return scalar.Representation, true
}

// TypeError reports a literal that does not match its declared type.
type TypeError struct {
	Path     string
	Expected TypeReference
	Reason   string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type mismatch at %s: expected %s, %s", e.Path, e.Expected, e.Reason)
}

// TypecheckValueExpression checks the shape of a declared value against ref.
// Session variables always typecheck: their value is only known at request time.
func TypecheckValueExpression(ref TypeReference, raw RawValueExpression, registry *TypeRegistry) error {
	if !raw.HasLiteral {
		return nil
	}
	return registry.typecheck("$", ref, raw.Literal)
}

func (r *TypeRegistry) typecheck(path string, ref TypeReference, value any) error {
	if value == nil {
		if ref.Nullable {
			return nil
		}
		return &TypeError{Path: path, Expected: ref, Reason: "got null"}
	}

	if ref.IsList() {
		items, ok := value.([]any)
		if !ok {
			return &TypeError{Path: path, Expected: ref, Reason: "got " + describe(value)}
		}
		for i, item := range items {
			if err := r.typecheck(fmt.Sprintf("%s[%d]", path, i), *ref.Element, item); err != nil {
				return err
			}
		}
		return nil
	}

	if ref.Name.IsInbuilt() {
		if !CheckInbuilt(ref.Name.Inbuilt, value) {
			return &TypeError{Path: path, Expected: ref, Reason: "got " + describe(value)}
		}
		return nil
	}

	if scalar, ok := r.Scalars[ref.Name.Custom]; ok {
		if scalar.Representation != "" && !CheckInbuilt(scalar.Representation, value) {
			return &TypeError{Path: path, Expected: ref, Reason: "got " + describe(value)}
		}
		return nil
	}

	object, ok := r.Objects[ref.Name.Custom]
	if !ok {
		return &TypeError{Path: path, Expected: ref, Reason: "the type is not declared"}
	}
	fields, ok := value.(map[string]any)
	if !ok {
		return &TypeError{Path: path, Expected: ref, Reason: "got " + describe(value)}
	}
	for _, key := range sortedKeys(fields) {
		if _, declared := object.Fields[FieldName(key)]; !declared {
			return &TypeError{Path: path, Expected: ref, Reason: fmt.Sprintf("got unknown field %q", key)}
		}
	}
	names := make([]string, 0, len(object.Fields))
	for name := range object.Fields {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		field := object.Fields[FieldName(name)]
		fieldValue, present := fields[name]
		if !present {
			if field.Type.Nullable {
				continue
			}
			return &TypeError{Path: path, Expected: ref, Reason: fmt.Sprintf("missing required field %q", name)}
		}
		if err := r.typecheck(path+"."+name, field.Type, fieldValue); err != nil {
			return err
		}
	}
	return nil
}

// CheckInbuilt reports whether value is a valid literal of the inbuilt scalar t.
func CheckInbuilt(t InbuiltType, value any) bool {
	switch t {
	case InbuiltInt:
		n, ok := toFloat(value)
		return ok && n == math.Trunc(n)
	case InbuiltFloat:
		_, ok := toFloat(value)
		return ok
	case InbuiltString:
		_, ok := value.(string)
		return ok
	case InbuiltID:
		if _, ok := value.(string); ok {
			return true
		}
		n, ok := toFloat(value)
		return ok && n == math.Trunc(n)
	case InbuiltBoolean:
		_, ok := value.(bool)
		return ok
	}
	return false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func describe(value any) string {
	switch value.(type) {
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case []any:
		return "a list"
	case map[string]any:
		return "an object"
	}
	if _, ok := toFloat(value); ok {
		return "a number"
	}
	return fmt.Sprintf("a value of type %T", value)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
