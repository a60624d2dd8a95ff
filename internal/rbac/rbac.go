// Package rbac decides which roles may perform which operations.
//
// Authorization is a pure function of the actor's roles and the operation. It
// never consults document state, so a caller is denied before the engine
// reveals whether the target exists.
package rbac

import (
	"slices"

	dErrors "edms/pkg/domain-errors"
)

type Role string

const (
	RoleAuthor         Role = "author"
	RoleReviewer       Role = "reviewer"
	RoleApprover       Role = "approver"
	RolePrintCustodian Role = "print_custodian"
	RoleAdmin          Role = "admin"
	RoleReadOnly       Role = "read_only"
)

var knownRoles = []Role{RoleAuthor, RoleReviewer, RoleApprover, RolePrintCustodian, RoleAdmin, RoleReadOnly}

// ParseRole maps a role name to a Role.
func ParseRole(name string) (Role, error) {
	r := Role(name)
	if !slices.Contains(knownRoles, r) {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown role %q", name)
	}
	return r, nil
}

// ParseRoles maps role names, failing on the first unknown one.
func ParseRoles(names []string) ([]Role, error) {
	roles := make([]Role, 0, len(names))
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// Names returns the string form of roles.
func Names(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// Actor is an authenticated principal.
type Actor struct {
	ID    string
	Roles []Role
}

func (a Actor) Has(role Role) bool {
	return slices.Contains(a.Roles, role)
}

// Operation names a guarded engine entry point.
type Operation string

const (
	OpCreateDraft    Operation = "create_draft"
	OpAddVersion     Operation = "add_version"
	OpSubmitReview   Operation = "submit_review"
	OpReturnToDraft  Operation = "return_to_draft"
	OpReject         Operation = "reject"
	OpApprove        Operation = "approve"
	OpMakeEffective  Operation = "make_effective"
	OpMarkObsolete   Operation = "mark_obsolete"
	OpRequestPrint   Operation = "request_print"
	OpIssuePrint     Operation = "issue_print"
	OpReconcilePrint Operation = "reconcile_print"
	OpRegisterUser   Operation = "register_user"
	OpAssignTask     Operation = "assign_review_task"
	OpCompleteTask   Operation = "complete_review_task"
	OpViewReports    Operation = "view_reports"
	OpExportAudit    Operation = "export_audit"
)

// Policy maps operations to the roles allowed to run them.
type Policy map[Operation][]Role

// DefaultPolicy is the role matrix of the system.
func DefaultPolicy() Policy {
	everyoneButReadOnly := []Role{RoleAuthor, RoleReviewer, RoleApprover, RolePrintCustodian, RoleAdmin}
	return Policy{
		OpCreateDraft:    {RoleAuthor, RoleAdmin},
		OpAddVersion:     {RoleAuthor, RoleAdmin},
		OpSubmitReview:   {RoleAuthor, RoleAdmin},
		OpReturnToDraft:  {RoleAuthor, RoleAdmin},
		OpReject:         {RoleReviewer, RoleApprover, RoleAdmin},
		OpApprove:        {RoleApprover, RoleAdmin},
		OpMakeEffective:  {RoleApprover, RoleAdmin},
		OpMarkObsolete:   {RoleApprover, RoleAdmin},
		OpRequestPrint:   everyoneButReadOnly,
		OpIssuePrint:     {RolePrintCustodian, RoleAdmin},
		OpReconcilePrint: {RolePrintCustodian, RoleAdmin},
		OpRegisterUser:   {RoleAdmin},
		OpAssignTask:     {RoleAuthor, RoleApprover, RoleAdmin},
		OpCompleteTask:   {RoleReviewer, RoleApprover, RoleAdmin},
		OpViewReports:    {RoleAuthor, RoleReviewer, RoleApprover, RolePrintCustodian, RoleAdmin, RoleReadOnly},
		OpExportAudit:    {RoleApprover, RoleAdmin},
	}
}

// Authorize returns nil when at least one of roles is in allowed.
func Authorize(roles []Role, allowed []Role) error {
	for _, r := range roles {
		if slices.Contains(allowed, r) {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "actor lacks a role permitted for this operation")
}

// Guard applies a Policy.
type Guard struct {
	policy Policy
}

func NewGuard(policy Policy) *Guard {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Guard{policy: policy}
}

// Check authorizes actor for op. Unknown operations are denied.
func (g *Guard) Check(actor Actor, op Operation) error {
	allowed, ok := g.policy[op]
	if !ok {
		return dErrors.Newf(dErrors.CodeForbidden, "operation %q is not permitted", op)
	}
	if err := Authorize(actor.Roles, allowed); err != nil {
		return dErrors.Newf(dErrors.CodeForbidden, "%s may not %s", actorLabel(actor), op).
			With("operation", string(op))
	}
	return nil
}

func actorLabel(a Actor) string {
	if a.ID == "" {
		return "anonymous actor"
	}
	return "actor " + a.ID
}
