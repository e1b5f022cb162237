// Package permissions compiles declarative command permissions into a
// validated table and applies argument presets at request time.
package permissions

import (
	"context"
	"errors"

	"github.com/matthisholleville/authgate/internal/metadata"
	"github.com/matthisholleville/authgate/internal/session"
	"github.com/matthisholleville/authgate/internal/telemetry"
	"github.com/matthisholleville/authgate/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

// ArgumentPreset is a validated preset: the declared argument type and the
// value injected for it.
type ArgumentPreset struct {
	Type  metadata.TypeReference
	Value metadata.ValueExpression
}

// CommandPermission is the compiled rule of one role on one command.
type CommandPermission struct {
	AllowExecution  bool
	ArgumentPresets map[metadata.ArgumentName]ArgumentPreset
}

// CommandWithPermissions is a command and the rules of every role on it.
type CommandWithPermissions struct {
	Command     metadata.Command
	Permissions map[session.Role]CommandPermission
}

type resolver struct {
	concurrency int
	logger      logger.Logger
}

// Option configures Resolve.
type Option func(*resolver)

// WithConcurrency bounds the number of permission blocks resolved in parallel.
func WithConcurrency(n int) Option {
	return func(r *resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger used to report resolved commands.
func WithLogger(l logger.Logger) Option {
	return func(r *resolver) {
		r.logger = l
	}
}

// Resolve compiles the permission blocks against the declared commands. Every
// declared command is part of the result, with no permission unless a block
// grants some. Either the whole table is valid or the first error in
// declaration order is returned.
func Resolve(
	ctx context.Context,
	commands map[metadata.Qualified[metadata.CommandName]]metadata.Command,
	blocks []metadata.CommandPermissionsDeclaration,
	registry *metadata.TypeRegistry,
	opts ...Option,
) (Table, error) {
	r := &resolver{concurrency: defaultConcurrency, logger: logger.NewNoopLogger()}
	for _, opt := range opts {
		opt(r)
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerPermissions, "resolve_command_permissions",
		attribute.Int("permissions.commands", len(commands)),
		attribute.Int("permissions.blocks", len(blocks)),
	)
	defer span.End()

	table, err := r.resolve(ctx, commands, blocks, registry)
	telemetry.RecordError(span, err)
	return table, err
}

func (r *resolver) resolve(
	ctx context.Context,
	commands map[metadata.Qualified[metadata.CommandName]]metadata.Command,
	blocks []metadata.CommandPermissionsDeclaration,
	registry *metadata.TypeRegistry,
) (Table, error) {
	table := make(Table, len(commands))
	for name, command := range commands {
		table[name] = CommandWithPermissions{
			Command:     command,
			Permissions: map[session.Role]CommandPermission{},
		}
	}

	// Blocks past the first structural error are never reported, so only the
	// ones before it are resolved.
	var structuralErr error
	valid := blocks
	claimed := make(map[metadata.Qualified[metadata.CommandName]]struct{}, len(blocks))
	for i, block := range blocks {
		name := block.QualifiedCommandName()
		if _, ok := table[name]; !ok {
			structuralErr = &UnknownCommandError{Command: name}
		} else if _, ok := claimed[name]; ok {
			structuralErr = &DuplicateCommandPermissionError{Command: name}
		}
		if structuralErr != nil {
			valid = blocks[:i]
			break
		}
		claimed[name] = struct{}{}
	}

	resolved := make([]map[session.Role]CommandPermission, len(valid))
	errs := make([]error, len(valid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, block := range valid {
		command := table[block.QualifiedCommandName()].Command
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resolved[i], errs[i] = resolveCommandPermissions(command, block, registry)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if structuralErr != nil {
		return nil, structuralErr
	}

	for i, block := range valid {
		name := block.QualifiedCommandName()
		entry := table[name]
		entry.Permissions = resolved[i]
		table[name] = entry
		r.logger.DebugWithContext(ctx, "Resolved command permissions",
			zap.Stringer("command", name), zap.Int("roles", len(resolved[i])))
	}
	return table, nil
}

func resolveCommandPermissions(
	command metadata.Command,
	block metadata.CommandPermissionsDeclaration,
	registry *metadata.TypeRegistry,
) (map[session.Role]CommandPermission, error) {
	permissions := make(map[session.Role]CommandPermission, len(block.Permissions))
	for _, rule := range block.Permissions {
		if _, ok := permissions[rule.Role]; ok {
			return nil, &DuplicateRolePermissionError{Command: command.Name, Role: rule.Role}
		}

		presets := make(map[metadata.ArgumentName]ArgumentPreset, len(rule.ArgumentPresets))
		for _, preset := range rule.ArgumentPresets {
			if _, ok := presets[preset.Argument]; ok {
				return nil, &DuplicateArgumentPresetError{Command: command.Name, Argument: preset.Argument}
			}
			argument, ok := command.Arguments[preset.Argument]
			if !ok {
				return nil, &ArgumentPresetMismatchError{Command: command.Name, Argument: preset.Argument}
			}

			value, err := metadata.ResolveValueExpressionForArgument(
				preset.Argument, preset.Value, argument.Type, block.Subgraph, registry)
			if err != nil {
				return nil, &ArgumentPresetResolutionError{Command: command.Name, Argument: preset.Argument, Err: err}
			}

			// checked apart from resolution so a wrong shape reports the command and argument
			if err := metadata.TypecheckValueExpression(argument.Type, preset.Value, registry); err != nil {
				var typeErr *metadata.TypeError
				if errors.As(err, &typeErr) {
					return nil, &ArgumentPresetTypeError{Command: command.Name, Argument: preset.Argument, TypeError: typeErr}
				}
				return nil, &ArgumentPresetResolutionError{Command: command.Name, Argument: preset.Argument, Err: err}
			}

			presets[preset.Argument] = ArgumentPreset{Type: argument.Type, Value: value}
		}

		permissions[rule.Role] = CommandPermission{
			AllowExecution:  rule.AllowExecution,
			ArgumentPresets: presets,
		}
	}
	return permissions, nil
}
