package rbac

import (
	"context"

	dErrors "edms/pkg/domain-errors"
	"edms/pkg/requestcontext"
)

// ActorFromContext builds the acting principal placed in ctx by the auth
// middleware. A token carrying an unknown role is treated as unauthenticated.
func ActorFromContext(ctx context.Context) (Actor, error) {
	userID := requestcontext.UserID(ctx)
	if userID == "" {
		return Actor{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	roles, err := ParseRoles(requestcontext.Roles(ctx))
	if err != nil {
		return Actor{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "token carries an unknown role")
	}
	return Actor{ID: userID, Roles: roles}, nil
}
