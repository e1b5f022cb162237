package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/matthisholleville/authgate/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocument = `
subgraphs:
  - name: app
    scalarTypes:
      - name: Uuid
        representation: String
      - name: Json
    objectTypes:
      - name: Address
        fields:
          - name: city
            type: String!
          - name: zip
            type: Int
    commands:
      - name: get_user
        outputType: User
        arguments:
          - name: id
            type: Int!
          - name: tags
            type: "[String!]"
          - name: address
            type: Address
    commandPermissions:
      - commandName: get_user
        permissions:
          - role: admin
            allowExecution: true
          - role: user
            allowExecution: true
            argumentPresets:
              - argument: id
                value:
                  sessionVariable: x-hasura-user-id
              - argument: tags
                value:
                  literal: ["a", "b"]
`

func TestParseTypeReference(t *testing.T) {
	for _, test := range []struct {
		input    string
		expected TypeReference
		str      string
	}{
		{
			input:    "Int!",
			expected: TypeReference{Name: TypeName{Inbuilt: InbuiltInt}},
			str:      "Int!",
		},
		{
			input:    "String",
			expected: TypeReference{Name: TypeName{Inbuilt: InbuiltString}, Nullable: true},
			str:      "String",
		},
		{
			input: "[String!]",
			expected: TypeReference{
				Element:  &TypeReference{Name: TypeName{Inbuilt: InbuiltString}},
				Nullable: true,
			},
			str: "[String!]",
		},
		{
			input: " [[my_type]!]! ",
			expected: TypeReference{
				Element: &TypeReference{
					Element: &TypeReference{
						Name:     TypeName{Custom: Qualify("app", CustomTypeName("my_type"))},
						Nullable: true,
					},
				},
			},
			str: "[[my_type]!]!",
		},
	} {
		t.Run(test.input, func(t *testing.T) {
			ref, err := ParseTypeReference("app", test.input)
			require.NoError(t, err)
			assert.Equal(t, test.expected, ref)
			assert.Equal(t, test.str, ref.String())
		})
	}

	for _, input := range []string{"", "!", "[Int", "Int!!", "1abc", "my-type", "[]"} {
		t.Run("invalid "+input, func(t *testing.T) {
			_, err := ParseTypeReference("app", input)
			assert.Error(t, err)
		})
	}
}

func TestQualifiedString(t *testing.T) {
	assert.Equal(t, "get_user (in subgraph app)", Qualify("app", CommandName("get_user")).String())
}

func testRegistry(t *testing.T) *TypeRegistry {
	t.Helper()
	registry := NewTypeRegistry()
	require.NoError(t, registry.AddScalar(ScalarType{Name: Qualify("app", CustomTypeName("Uuid")), Representation: InbuiltString}))
	require.NoError(t, registry.AddScalar(ScalarType{Name: Qualify("app", CustomTypeName("Json"))}))
	require.NoError(t, registry.AddObject(ObjectType{
		Name: Qualify("app", CustomTypeName("Address")),
		Fields: map[FieldName]ObjectField{
			"city": {Type: MustParseTypeReference("app", "String!")},
			"zip":  {Type: MustParseTypeReference("app", "Int")},
		},
	}))
	return registry
}

func TestTypeRegistryRejectsDuplicates(t *testing.T) {
	registry := testRegistry(t)
	assert.Error(t, registry.AddScalar(ScalarType{Name: Qualify("app", CustomTypeName("Address"))}))
	assert.Error(t, registry.AddObject(ObjectType{Name: Qualify("app", CustomTypeName("Uuid"))}))
	assert.NoError(t, registry.AddScalar(ScalarType{Name: Qualify("other", CustomTypeName("Uuid"))}))
}

func TestTypecheckValueExpression(t *testing.T) {
	registry := testRegistry(t)

	for _, test := range []struct {
		name         string
		typ          string
		value        RawValueExpression
		expectedPath string
	}{
		{name: "int", typ: "Int!", value: LiteralExpression(float64(3))},
		{name: "int from yaml", typ: "Int!", value: LiteralExpression(3)},
		{name: "fractional int", typ: "Int!", value: LiteralExpression(3.5), expectedPath: "$"},
		{name: "float", typ: "Float", value: LiteralExpression(3.5)},
		{name: "string as float", typ: "Float", value: LiteralExpression("3.5"), expectedPath: "$"},
		{name: "string", typ: "String!", value: LiteralExpression("x")},
		{name: "boolean", typ: "Boolean!", value: LiteralExpression(true)},
		{name: "number as boolean", typ: "Boolean!", value: LiteralExpression(1), expectedPath: "$"},
		{name: "integer id", typ: "ID!", value: LiteralExpression(12)},
		{name: "null into nullable", typ: "Int", value: LiteralExpression(nil)},
		{name: "null into non nullable", typ: "Int!", value: LiteralExpression(nil), expectedPath: "$"},
		{name: "list", typ: "[String!]!", value: LiteralExpression([]any{"a", "b"})},
		{name: "list element", typ: "[String!]!", value: LiteralExpression([]any{"a", 1}), expectedPath: "$[1]"},
		{name: "scalar for list", typ: "[String!]", value: LiteralExpression("a"), expectedPath: "$"},
		{name: "custom scalar representation", typ: "Uuid!", value: LiteralExpression(42), expectedPath: "$"},
		{name: "opaque custom scalar", typ: "Json!", value: LiteralExpression(map[string]any{"any": true})},
		{name: "object", typ: "Address!", value: LiteralExpression(map[string]any{"city": "Paris", "zip": 75001})},
		{name: "object nullable field omitted", typ: "Address!", value: LiteralExpression(map[string]any{"city": "Paris"})},
		{name: "object missing field", typ: "Address!", value: LiteralExpression(map[string]any{"zip": 1}), expectedPath: "$"},
		{name: "object unknown field", typ: "Address!", value: LiteralExpression(map[string]any{"city": "Paris", "street": "x"}), expectedPath: "$"},
		{name: "object field type", typ: "Address!", value: LiteralExpression(map[string]any{"city": 1}), expectedPath: "$.city"},
		{name: "undeclared type", typ: "Missing", value: LiteralExpression(1), expectedPath: "$"},
		{name: "session variable", typ: "Int!", value: SessionVariableExpression("x-hasura-user-id")},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := TypecheckValueExpression(MustParseTypeReference("app", test.typ), test.value, registry)
			if test.expectedPath == "" {
				assert.NoError(t, err)
				return
			}
			var typeErr *TypeError
			require.ErrorAs(t, err, &typeErr)
			assert.Equal(t, test.expectedPath, typeErr.Path)
		})
	}
}

func TestResolveValueExpressionForArgument(t *testing.T) {
	registry := testRegistry(t)

	t.Run("literal", func(t *testing.T) {
		expr, err := ResolveValueExpressionForArgument("id", LiteralExpression(1), MustParseTypeReference("app", "Int!"), "app", registry)
		require.NoError(t, err)
		assert.Equal(t, Literal{Value: 1}, expr)
	})

	t.Run("session variable is normalized", func(t *testing.T) {
		expr, err := ResolveValueExpressionForArgument("id", SessionVariableExpression("X-Hasura-User-Id"), MustParseTypeReference("app", "Uuid"), "app", registry)
		require.NoError(t, err)
		assert.Equal(t, SessionVariable{Name: session.MustParseVariableName("x-hasura-user-id")}, expr)
	})

	t.Run("session variable into lists and objects", func(t *testing.T) {
		for _, typ := range []string{"[String]", "Address"} {
			expr, err := ResolveValueExpressionForArgument("arg", SessionVariableExpression("x-hasura-value"), MustParseTypeReference("app", typ), "app", registry)
			require.NoError(t, err)
			assert.Equal(t, SessionVariable{Name: session.MustParseVariableName("x-hasura-value")}, expr)
		}
	})

	for _, test := range []struct {
		name        string
		value       RawValueExpression
		typ         string
		expectedErr error
	}{
		{name: "unknown type", value: LiteralExpression(1), typ: "Missing!", expectedErr: ErrUnknownType},
		{name: "unknown list element type", value: LiteralExpression(nil), typ: "[Missing]", expectedErr: ErrUnknownType},
		{name: "invalid session variable", value: SessionVariableExpression("x hasura"), typ: "Int", expectedErr: session.ErrInvalidVariableName},
		{name: "empty expression", value: RawValueExpression{}, typ: "Int", expectedErr: ErrEmptyValueExpression},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := ResolveValueExpressionForArgument("arg", test.value, MustParseTypeReference("app", test.typ), "app", registry)
			assert.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestValueExpressionJSON(t *testing.T) {
	out, err := json.Marshal(map[string]ValueExpression{
		"a": Literal{Value: []any{1, "x"}},
		"b": SessionVariable{Name: "x-hasura-user-id"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"literal":[1,"x"]},"b":{"sessionVariable":"x-hasura-user-id"}}`, string(out))
}

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(testDocument))
	require.NoError(t, err)

	registry, err := doc.TypeRegistry()
	require.NoError(t, err)
	assert.Len(t, registry.Scalars, 2)
	assert.Len(t, registry.Objects, 1)
	assert.Equal(t, InbuiltString, registry.Scalars[Qualify("app", CustomTypeName("Uuid"))].Representation)

	commands, err := doc.Commands()
	require.NoError(t, err)
	require.Len(t, commands, 1)
	command := commands[Qualify("app", CommandName("get_user"))]
	assert.Equal(t, "Int!", command.Arguments["id"].Type.String())
	assert.Equal(t, "[String!]", command.Arguments["tags"].Type.String())
	assert.Equal(t, "User", command.OutputType.String())

	blocks := doc.CommandPermissions()
	require.Len(t, blocks, 1)
	assert.Equal(t, Qualify("app", CommandName("get_user")), blocks[0].QualifiedCommandName())
	require.Len(t, blocks[0].Permissions, 2)
	assert.Equal(t, session.Role("admin"), blocks[0].Permissions[0].Role)
	assert.Empty(t, blocks[0].Permissions[0].ArgumentPresets)

	user := blocks[0].Permissions[1]
	assert.True(t, user.AllowExecution)
	assert.Equal(t, []ArgumentPresetDeclaration{
		{Argument: "id", Value: SessionVariableExpression("x-hasura-user-id")},
		{Argument: "tags", Value: LiteralExpression([]any{"a", "b"})},
	}, user.ArgumentPresets)
}

func TestParseDocumentErrors(t *testing.T) {
	for _, test := range []struct {
		name  string
		input string
	}{
		{name: "empty", input: ``},
		{name: "unknown field", input: "subgraphs:\n  - name: app\n    models: []\n"},
		{name: "unnamed subgraph", input: "subgraphs:\n  - commands: []\n"},
		{name: "duplicate subgraph", input: "subgraphs:\n  - name: app\n  - name: app\n"},
		{
			name: "value expression with two keys",
			input: `
subgraphs:
  - name: app
    commandPermissions:
      - commandName: c
        permissions:
          - role: r
            argumentPresets:
              - argument: a
                value:
                  literal: 1
                  sessionVariable: x-hasura-a
`,
		},
		{
			name: "unknown value expression",
			input: `
subgraphs:
  - name: app
    commandPermissions:
      - commandName: c
        permissions:
          - role: r
            argumentPresets:
              - argument: a
                value:
                  booleanExpression: {}
`,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(test.input))
			assert.Error(t, err)
		})
	}
}

func TestDocumentBuildErrors(t *testing.T) {
	for _, test := range []struct {
		name     string
		input    string
		registry bool
	}{
		{name: "duplicate command", input: "subgraphs:\n  - name: app\n    commands:\n      - name: c\n      - name: c\n"},
		{name: "duplicate argument", input: "subgraphs:\n  - name: app\n    commands:\n      - name: c\n        arguments:\n          - {name: a, type: Int}\n          - {name: a, type: Int}\n"},
		{name: "invalid argument type", input: "subgraphs:\n  - name: app\n    commands:\n      - name: c\n        arguments:\n          - {name: a, type: \"[Int\"}\n"},
		{name: "duplicate type", input: "subgraphs:\n  - name: app\n    scalarTypes:\n      - name: T\n    objectTypes:\n      - name: T\n", registry: true},
		{name: "inbuilt type redefined", input: "subgraphs:\n  - name: app\n    scalarTypes:\n      - name: Int\n", registry: true},
		{name: "unknown representation", input: "subgraphs:\n  - name: app\n    scalarTypes:\n      - {name: T, representation: Date}\n", registry: true},
		{name: "unknown field type", input: "subgraphs:\n  - name: app\n    objectTypes:\n      - name: T\n        fields:\n          - {name: f, type: Missing}\n", registry: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(test.input))
			require.NoError(t, err)
			if test.registry {
				_, err = doc.TypeRegistry()
			} else {
				_, err = doc.Commands()
			}
			assert.Error(t, err)
		})
	}
}

func TestLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDocument), 0o600))

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Len(t, doc.Subgraphs, 1)

	_, err = LoadDocument(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
