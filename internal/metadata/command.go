package metadata

import "github.com/matthisholleville/authgate/internal/session"

// Argument is a declared command argument.
type Argument struct {
	Type        TypeReference
	Description string
}

// Command is a callable operation and the arguments it declares.
type Command struct {
	Name       Qualified[CommandName]
	Arguments  map[ArgumentName]Argument
	OutputType TypeReference
}

// ArgumentPresetDeclaration presets one argument of a command for a role.
type ArgumentPresetDeclaration struct {
	Argument ArgumentName
	Value    RawValueExpression
}

// RolePermissionDeclaration is the declared rule of one role on a command.
type RolePermissionDeclaration struct {
	Role            session.Role
	AllowExecution  bool
	ArgumentPresets []ArgumentPresetDeclaration
}

// CommandPermissionsDeclaration is a permission block naming a command of
// the subgraph it is declared in.
type CommandPermissionsDeclaration struct {
	Subgraph    string
	CommandName CommandName
	Permissions []RolePermissionDeclaration
}

// QualifiedCommandName returns the command the block refers to.
func (d CommandPermissionsDeclaration) QualifiedCommandName() Qualified[CommandName] {
	return Qualify(d.Subgraph, d.CommandName)
}
