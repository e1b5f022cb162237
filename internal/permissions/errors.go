package permissions

import (
	"fmt"

	"github.com/matthisholleville/authgate/internal/metadata"
	"github.com/matthisholleville/authgate/internal/session"
)

// UnknownCommandError is returned when a permission block names a command
// that is not declared in its subgraph.
type UnknownCommandError struct {
	Command metadata.Qualified[metadata.CommandName]
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command used in command permissions definition: %s", e.Command)
}

// DuplicateCommandPermissionError is returned when a command is the subject
// of more than one permission block.
type DuplicateCommandPermissionError struct {
	Command metadata.Qualified[metadata.CommandName]
}

func (e *DuplicateCommandPermissionError) Error() string {
	return fmt.Sprintf("multiple permissions defined for command %s", e.Command)
}

// DuplicateRolePermissionError is returned when a permission block lists the same role twice.
type DuplicateRolePermissionError struct {
	Command metadata.Qualified[metadata.CommandName]
	Role    session.Role
}

func (e *DuplicateRolePermissionError) Error() string {
	return fmt.Sprintf("multiple permissions defined for role %s on command %s", e.Role, e.Command)
}

// DuplicateArgumentPresetError is returned when a role rule presets the same argument twice.
type DuplicateArgumentPresetError struct {
	Command  metadata.Qualified[metadata.CommandName]
	Argument metadata.ArgumentName
}

func (e *DuplicateArgumentPresetError) Error() string {
	return fmt.Sprintf("duplicate argument preset %s in command permissions for command %s", e.Argument, e.Command)
}

// ArgumentPresetMismatchError is returned when a preset names an argument the
// command does not declare.
type ArgumentPresetMismatchError struct {
	Command  metadata.Qualified[metadata.CommandName]
	Argument metadata.ArgumentName
}

func (e *ArgumentPresetMismatchError) Error() string {
	return fmt.Sprintf("argument %s is preset in command permissions for command %s but the command does not declare it", e.Argument, e.Command)
}

// ArgumentPresetResolutionError wraps a failure to resolve a preset value
// expression, such as a reference to an undeclared type.
type ArgumentPresetResolutionError struct {
	Command  metadata.Qualified[metadata.CommandName]
	Argument metadata.ArgumentName
	Err      error
}

func (e *ArgumentPresetResolutionError) Error() string {
	return fmt.Sprintf("error resolving preset of argument %s for command %s: %v", e.Argument, e.Command, e.Err)
}

func (e *ArgumentPresetResolutionError) Unwrap() error {
	return e.Err
}

// ArgumentPresetTypeError is returned when a preset value does not match the
// declared type of its argument.
type ArgumentPresetTypeError struct {
	Command   metadata.Qualified[metadata.CommandName]
	Argument  metadata.ArgumentName
	TypeError *metadata.TypeError
}

func (e *ArgumentPresetTypeError) Error() string {
	return fmt.Sprintf("type error in preset of argument %s for command %s: %v", e.Argument, e.Command, e.TypeError)
}

func (e *ArgumentPresetTypeError) Unwrap() error {
	return e.TypeError
}

// MissingSessionVariableError is returned at request time when a preset reads
// a session variable the caller session does not carry.
type MissingSessionVariableError struct {
	Argument metadata.ArgumentName
	Variable session.VariableName
}

func (e *MissingSessionVariableError) Error() string {
	return fmt.Sprintf("session variable %s required by the preset of argument %s is not set", e.Variable, e.Argument)
}

// SessionVariableCoercionError is returned at request time when a session
// variable cannot be converted to the declared type of the preset argument.
type SessionVariableCoercionError struct {
	Argument metadata.ArgumentName
	Variable session.VariableName
	Type     metadata.TypeReference
}

func (e *SessionVariableCoercionError) Error() string {
	return fmt.Sprintf("session variable %s cannot be used as %s for argument %s", e.Variable, e.Type, e.Argument)
}
