package permissions

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/matthisholleville/authgate/internal/metadata"
	"github.com/matthisholleville/authgate/internal/session"
)

// Table is the resolved permission table. It is immutable once built.
type Table map[metadata.Qualified[metadata.CommandName]]CommandWithPermissions

// Lookup returns the rule of role on command.
func (t Table) Lookup(command metadata.Qualified[metadata.CommandName], role session.Role) (CommandPermission, bool) {
	entry, ok := t[command]
	if !ok {
		return CommandPermission{}, false
	}
	permission, ok := entry.Permissions[role]
	return permission, ok
}

// CanExecute reports whether role may execute command.
func (t Table) CanExecute(command metadata.Qualified[metadata.CommandName], role session.Role) bool {
	permission, ok := t.Lookup(command, role)
	return ok && permission.AllowExecution
}

// Commands returns the command names sorted by subgraph then name.
func (t Table) Commands() []metadata.Qualified[metadata.CommandName] {
	names := make([]metadata.Qualified[metadata.CommandName], 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i].Subgraph != names[j].Subgraph {
			return names[i].Subgraph < names[j].Subgraph
		}
		return names[i].Name < names[j].Name
	})
	return names
}

// Roles returns the roles holding a rule on command, sorted.
func (t Table) Roles(command metadata.Qualified[metadata.CommandName]) []session.Role {
	entry := t[command]
	roles := make([]session.Role, 0, len(entry.Permissions))
	for role := range entry.Permissions {
		roles = append(roles, role)
	}
	session.SortRoles(roles)
	return roles
}

// ApplyPresets evaluates the presets of permission against the caller session
// and returns arguments with the presets applied. Presets override
// caller-supplied values; arguments is left untouched.
func ApplyPresets(
	permission CommandPermission,
	variables session.Variables,
	arguments map[metadata.ArgumentName]any,
	registry *metadata.TypeRegistry,
) (map[metadata.ArgumentName]any, error) {
	out := make(map[metadata.ArgumentName]any, len(arguments)+len(permission.ArgumentPresets))
	for name, value := range arguments {
		out[name] = value
	}

	names := make([]string, 0, len(permission.ArgumentPresets))
	for name := range permission.ArgumentPresets {
		names = append(names, string(name))
	}
	sort.Strings(names)

	for _, name := range names {
		argument := metadata.ArgumentName(name)
		preset := permission.ArgumentPresets[argument]
		switch value := preset.Value.(type) {
		case metadata.Literal:
			out[argument] = value.Value
		case metadata.SessionVariable:
			raw, ok := variables.Get(value.Name)
			if !ok {
				return nil, &MissingSessionVariableError{Argument: argument, Variable: value.Name}
			}
			coerced, ok := coerceSessionVariable(preset.Type, raw.Raw(), registry)
			if !ok {
				return nil, &SessionVariableCoercionError{Argument: argument, Variable: value.Name, Type: preset.Type}
			}
			out[argument] = coerced
		}
	}
	return out, nil
}

// coerceSessionVariable converts a session variable to the type declared for
// an argument. Session variables are usually strings, even for numeric ids;
// lists and objects are read from their JSON encoding.
func coerceSessionVariable(ref metadata.TypeReference, value any, registry *metadata.TypeRegistry) (any, bool) {
	if value == nil {
		return nil, ref.Nullable
	}
	if registry.IsComposite(ref) {
		return coerceCompositeVariable(ref, value, registry)
	}
	inbuilt, ok := registry.ScalarRepresentation(ref)
	if !ok {
		return value, true
	}
	if metadata.CheckInbuilt(inbuilt, value) {
		return value, true
	}
	s, isString := value.(string)
	if !isString {
		return nil, false
	}
	s = strings.TrimSpace(s)
	switch inbuilt {
	case metadata.InbuiltInt:
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil
	case metadata.InbuiltFloat:
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	case metadata.InbuiltBoolean:
		b, err := strconv.ParseBool(s)
		return b, err == nil
	}
	return nil, false
}

func coerceCompositeVariable(ref metadata.TypeReference, value any, registry *metadata.TypeRegistry) (any, bool) {
	if s, ok := value.(string); ok {
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err != nil || dec.More() {
			return nil, false
		}
		value = decoded
	}
	if err := registry.TypecheckValue(ref, value); err != nil {
		return nil, false
	}
	return value, true
}
