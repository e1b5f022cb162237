package identity

import (
	"net/http"
	"testing"

	"github.com/matthisholleville/authgate/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userIdentity(t *testing.T, allowed VariableList) Specific {
	t.Helper()
	id, err := NewSpecific("user", map[session.Role]RoleAuthorization{
		"user": {
			Role: "user",
			SessionVariables: session.Variables{
				session.RoleVariable: session.NewVariableValue("user"),
				"x-hasura-user-id":   session.NewVariableValue("1"),
			},
			AllowedFromRequest: allowed,
		},
	})
	require.NoError(t, err)
	return id
}

func TestNewSpecific_DefaultRoleMustBeAllowed(t *testing.T) {
	_, err := NewSpecific("admin", map[session.Role]RoleAuthorization{"user": {Role: "user"}})
	assert.Error(t, err)
}

func TestAuthorize(t *testing.T) {
	admin := session.NewRole("admin")
	user := session.NewRole("user")

	for _, test := range []struct {
		name          string
		identity      Identity
		requestedRole *session.Role
		headers       http.Header
		expected      Session
		expectedErr   error
	}{
		{
			name:     "Specific: default role and hook variables",
			identity: userIdentity(t, SomeVariables()),
			headers:  http.Header{"X-Hasura-User-Id": {"42"}, "X-Hasura-Org": {"acme"}},
			expected: Session{Role: "user", Variables: session.Variables{
				session.RoleVariable: session.NewVariableValue("user"),
				"x-hasura-user-id":   session.NewVariableValue("1"),
			}},
		},
		{
			name:          "Specific: requested role outside allowed roles",
			identity:      userIdentity(t, SomeVariables()),
			requestedRole: &admin,
			expectedErr:   ErrRoleNotAllowed,
		},
		{
			name:          "Specific: explicit allowed role",
			identity:      userIdentity(t, SomeVariables()),
			requestedRole: &user,
			expected: Session{Role: "user", Variables: session.Variables{
				session.RoleVariable: session.NewVariableValue("user"),
				"x-hasura-user-id":   session.NewVariableValue("1"),
			}},
		},
		{
			name:     "Specific: request variables in the allowed list are taken, hook wins",
			identity: userIdentity(t, SomeVariables("x-hasura-org", "x-hasura-user-id")),
			headers:  http.Header{"X-Hasura-User-Id": {"42"}, "X-Hasura-Org": {"acme"}},
			expected: Session{Role: "user", Variables: session.Variables{
				session.RoleVariable: session.NewVariableValue("user"),
				"x-hasura-user-id":   session.NewVariableValue("1"),
				"x-hasura-org":       session.NewVariableValue("acme"),
			}},
		},
		{
			name:          "RoleEmulationEnabled: emulate another role with request variables",
			identity:      RoleEmulationEnabled{Role: admin},
			requestedRole: &user,
			headers:       http.Header{"X-Hasura-User-Id": {"7"}, "Authorization": {"Bearer x"}},
			expected: Session{Role: "user", Variables: session.Variables{
				session.RoleVariable: session.NewVariableValue("user"),
				"x-hasura-user-id":   session.NewVariableValue("7"),
			}},
		},
		{
			name:     "RoleEmulationEnabled: no requested role keeps the emulating role",
			identity: RoleEmulationEnabled{Role: admin},
			expected: Session{Role: "admin", Variables: session.Variables{
				session.RoleVariable: session.NewVariableValue("admin"),
			}},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := Authorize(test.identity, test.requestedRole, test.headers)
			if test.expectedErr != nil {
				assert.ErrorIs(t, err, test.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestRequestedRole(t *testing.T) {
	assert.Nil(t, RequestedRole(http.Header{}))
	role := RequestedRole(http.Header{"X-Hasura-Role": {"editor"}})
	require.NotNil(t, role)
	assert.Equal(t, session.Role("editor"), *role)
}
