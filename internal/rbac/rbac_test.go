package rbac

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "edms/pkg/domain-errors"
	"edms/pkg/requestcontext"
)

func TestAuthorize(t *testing.T) {
	t.Run("any overlapping role is enough", func(t *testing.T) {
		assert.NoError(t, Authorize([]Role{RoleReadOnly, RoleAuthor}, []Role{RoleAuthor, RoleAdmin}))
	})
	t.Run("no overlap is forbidden", func(t *testing.T) {
		err := Authorize([]Role{RoleReadOnly}, []Role{RoleAuthor})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	t.Run("empty role set is forbidden", func(t *testing.T) {
		err := Authorize(nil, []Role{RoleAuthor})
		assert.True(t, dErrors.IsAuthorization(err))
	})
}

func TestDefaultPolicyMatrix(t *testing.T) {
	guard := NewGuard(nil)
	cases := []struct {
		op      Operation
		allowed []Role
	}{
		{OpCreateDraft, []Role{RoleAuthor, RoleAdmin}},
		{OpSubmitReview, []Role{RoleAuthor, RoleAdmin}},
		{OpApprove, []Role{RoleApprover, RoleAdmin}},
		{OpMakeEffective, []Role{RoleApprover, RoleAdmin}},
		{OpMarkObsolete, []Role{RoleApprover, RoleAdmin}},
		{OpRequestPrint, []Role{RoleAuthor, RoleReviewer, RoleApprover, RolePrintCustodian, RoleAdmin}},
		{OpIssuePrint, []Role{RolePrintCustodian, RoleAdmin}},
		{OpReconcilePrint, []Role{RolePrintCustodian, RoleAdmin}},
		{OpRegisterUser, []Role{RoleAdmin}},
	}
	for _, tc := range cases {
		for _, role := range knownRoles {
			err := guard.Check(Actor{ID: "u1", Roles: []Role{role}}, tc.op)
			if slices.Contains(tc.allowed, role) {
				assert.NoError(t, err, "%s should be allowed to %s", role, tc.op)
			} else {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), "%s should be denied %s", role, tc.op)
			}
		}
	}
}

func TestUnknownOperationIsDenied(t *testing.T) {
	err := NewGuard(nil).Check(Actor{ID: "root", Roles: []Role{RoleAdmin}}, Operation("drop_tables"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestParseRoles(t *testing.T) {
	roles, err := ParseRoles([]string{"author", "print_custodian"})
	require.NoError(t, err)
	assert.Equal(t, []Role{RoleAuthor, RolePrintCustodian}, roles)
	assert.Equal(t, []string{"author", "print_custodian"}, Names(roles))

	_, err = ParseRoles([]string{"superuser"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestActorFromContext(t *testing.T) {
	t.Run("builds actor from principal", func(t *testing.T) {
		ctx := requestcontext.WithPrincipal(context.Background(), "alice", []string{"author", "reviewer"})
		actor, err := ActorFromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "alice", actor.ID)
		assert.Equal(t, []Role{RoleAuthor, RoleReviewer}, actor.Roles)
	})
	t.Run("missing principal is unauthorized", func(t *testing.T) {
		_, err := ActorFromContext(context.Background())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
	t.Run("unknown role is unauthorized", func(t *testing.T) {
		ctx := requestcontext.WithPrincipal(context.Background(), "mallory", []string{"superuser"})
		_, err := ActorFromContext(ctx)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
