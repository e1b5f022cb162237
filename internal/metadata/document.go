package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/matthisholleville/authgate/internal/session"
	"gopkg.in/yaml.v3"
)

// Document is the declarative metadata file: a list of subgraphs, each
// declaring types, commands and command permissions.
type Document struct {
	Subgraphs []SubgraphDocument `yaml:"subgraphs"`
}

type SubgraphDocument struct {
	Name               string                       `yaml:"name"`
	ScalarTypes        []ScalarTypeDocument         `yaml:"scalarTypes"`
	ObjectTypes        []ObjectTypeDocument         `yaml:"objectTypes"`
	Commands           []CommandDocument            `yaml:"commands"`
	CommandPermissions []CommandPermissionsDocument `yaml:"commandPermissions"`
}

type ScalarTypeDocument struct {
	Name           string `yaml:"name"`
	Representation string `yaml:"representation,omitempty"`
}

type ObjectTypeDocument struct {
	Name   string          `yaml:"name"`
	Fields []FieldDocument `yaml:"fields"`
}

type FieldDocument struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type CommandDocument struct {
	Name       string             `yaml:"name"`
	OutputType string             `yaml:"outputType"`
	Arguments  []ArgumentDocument `yaml:"arguments"`
}

type ArgumentDocument struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
}

type CommandPermissionsDocument struct {
	CommandName string                   `yaml:"commandName"`
	Permissions []RolePermissionDocument `yaml:"permissions"`
}

type RolePermissionDocument struct {
	Role            string                   `yaml:"role"`
	AllowExecution  bool                     `yaml:"allowExecution"`
	ArgumentPresets []ArgumentPresetDocument `yaml:"argumentPresets"`
}

type ArgumentPresetDocument struct {
	Argument string             `yaml:"argument"`
	Value    RawValueExpression `yaml:"value"`
}

// ParseDocument decodes a metadata document. Unknown fields are rejected.
func ParseDocument(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty metadata document")
		}
		return nil, fmt.Errorf("invalid metadata document: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Subgraphs))
	for _, subgraph := range doc.Subgraphs {
		if subgraph.Name == "" {
			return nil, errors.New("invalid metadata document: subgraph without a name")
		}
		if _, ok := seen[subgraph.Name]; ok {
			return nil, fmt.Errorf("invalid metadata document: duplicate subgraph %q", subgraph.Name)
		}
		seen[subgraph.Name] = struct{}{}
	}
	return &doc, nil
}

// LoadDocument reads a metadata document from a YAML file.
func LoadDocument(path string) (*Document, error) {
	filename, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to read metadata %s: %w", filename, err)
	}
	return ParseDocument(data)
}

// TypeRegistry builds the registry of every custom type of the document.
func (d *Document) TypeRegistry() (*TypeRegistry, error) {
	registry := NewTypeRegistry()
	for _, subgraph := range d.Subgraphs {
		for _, scalar := range subgraph.ScalarTypes {
			name, err := customTypeName(subgraph.Name, scalar.Name)
			if err != nil {
				return nil, err
			}
			representation := InbuiltType(scalar.Representation)
			if scalar.Representation != "" {
				if _, ok := inbuiltType(scalar.Representation); !ok {
					return nil, fmt.Errorf("scalar type %s: unknown representation %q", name, scalar.Representation)
				}
			}
			if err := registry.AddScalar(ScalarType{Name: name, Representation: representation}); err != nil {
				return nil, err
			}
		}
		for _, object := range subgraph.ObjectTypes {
			name, err := customTypeName(subgraph.Name, object.Name)
			if err != nil {
				return nil, err
			}
			fields := make(map[FieldName]ObjectField, len(object.Fields))
			for _, field := range object.Fields {
				if field.Name == "" {
					return nil, fmt.Errorf("object type %s: field without a name", name)
				}
				if _, ok := fields[FieldName(field.Name)]; ok {
					return nil, fmt.Errorf("object type %s: duplicate field %q", name, field.Name)
				}
				ref, err := ParseTypeReference(subgraph.Name, field.Type)
				if err != nil {
					return nil, fmt.Errorf("object type %s, field %s: %w", name, field.Name, err)
				}
				fields[FieldName(field.Name)] = ObjectField{Type: ref}
			}
			if err := registry.AddObject(ObjectType{Name: name, Fields: fields}); err != nil {
				return nil, err
			}
		}
	}

	// field types may reference types declared later in the document
	for _, object := range registry.Objects {
		for fieldName, field := range object.Fields {
			if err := registry.CheckReference(field.Type); err != nil {
				return nil, fmt.Errorf("object type %s, field %s: %w", object.Name, fieldName, err)
			}
		}
	}
	return registry, nil
}

func customTypeName(subgraph, name string) (Qualified[CustomTypeName], error) {
	if !validIdentifier(name) {
		return Qualified[CustomTypeName]{}, fmt.Errorf("invalid type name %q in subgraph %s", name, subgraph)
	}
	if _, ok := inbuiltType(name); ok {
		return Qualified[CustomTypeName]{}, fmt.Errorf("type %q in subgraph %s conflicts with an inbuilt type", name, subgraph)
	}
	return Qualify(subgraph, CustomTypeName(name)), nil
}

// Commands builds every declared command, keyed by qualified name.
func (d *Document) Commands() (map[Qualified[CommandName]]Command, error) {
	commands := map[Qualified[CommandName]]Command{}
	for _, subgraph := range d.Subgraphs {
		for _, declared := range subgraph.Commands {
			if !validIdentifier(declared.Name) {
				return nil, fmt.Errorf("invalid command name %q in subgraph %s", declared.Name, subgraph.Name)
			}
			name := Qualify(subgraph.Name, CommandName(declared.Name))
			if _, ok := commands[name]; ok {
				return nil, fmt.Errorf("duplicate command definition %s", name)
			}

			command := Command{Name: name, Arguments: make(map[ArgumentName]Argument, len(declared.Arguments))}
			if declared.OutputType != "" {
				ref, err := ParseTypeReference(subgraph.Name, declared.OutputType)
				if err != nil {
					return nil, fmt.Errorf("command %s: %w", name, err)
				}
				command.OutputType = ref
			}
			for _, argument := range declared.Arguments {
				if argument.Name == "" {
					return nil, fmt.Errorf("command %s: argument without a name", name)
				}
				if _, ok := command.Arguments[ArgumentName(argument.Name)]; ok {
					return nil, fmt.Errorf("command %s: duplicate argument %q", name, argument.Name)
				}
				ref, err := ParseTypeReference(subgraph.Name, argument.Type)
				if err != nil {
					return nil, fmt.Errorf("command %s, argument %s: %w", name, argument.Name, err)
				}
				command.Arguments[ArgumentName(argument.Name)] = Argument{Type: ref, Description: argument.Description}
			}
			commands[name] = command
		}
	}
	return commands, nil
}

// CommandPermissions returns every permission block, in declaration order.
func (d *Document) CommandPermissions() []CommandPermissionsDeclaration {
	var blocks []CommandPermissionsDeclaration
	for _, subgraph := range d.Subgraphs {
		for _, declared := range subgraph.CommandPermissions {
			block := CommandPermissionsDeclaration{
				Subgraph:    subgraph.Name,
				CommandName: CommandName(declared.CommandName),
				Permissions: make([]RolePermissionDeclaration, 0, len(declared.Permissions)),
			}
			for _, permission := range declared.Permissions {
				rule := RolePermissionDeclaration{
					Role:            session.NewRole(permission.Role),
					AllowExecution:  permission.AllowExecution,
					ArgumentPresets: make([]ArgumentPresetDeclaration, 0, len(permission.ArgumentPresets)),
				}
				for _, preset := range permission.ArgumentPresets {
					rule.ArgumentPresets = append(rule.ArgumentPresets, ArgumentPresetDeclaration{
						Argument: ArgumentName(preset.Argument),
						Value:    preset.Value,
					})
				}
				block.Permissions = append(block.Permissions, rule)
			}
			blocks = append(blocks, block)
		}
	}
	return blocks
}
