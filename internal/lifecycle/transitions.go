package lifecycle

import (
	"context"
	"maps"
	"strings"

	"edms/internal/document"
	"edms/internal/rbac"
	dErrors "edms/pkg/domain-errors"
	audit "edms/pkg/platform/audit"
	"edms/pkg/platform/tx"
	"edms/pkg/requestcontext"
)

// targetRule binds a target state to the operation that guards it and the
// audit action that records it.
type targetRule struct {
	op     rbac.Operation
	action audit.Action
}

var targetRules = map[document.State]targetRule{
	document.StateReview:    {rbac.OpSubmitReview, audit.ActionReviewSubmitted},
	document.StateRejected:  {rbac.OpReject, audit.ActionReviewRejected},
	document.StateDraft:     {rbac.OpReturnToDraft, audit.ActionReturnedToDraft},
	document.StateApproved:  {rbac.OpApprove, audit.ActionDocumentApproved},
	document.StateEffective: {rbac.OpMakeEffective, audit.ActionMadeEffective},
	document.StateArchived:  {rbac.OpMarkObsolete, audit.ActionMarkedObsolete},
}

// Transition moves a document to target. Approval is only reachable through
// the signature path, which binds a signature to the reviewed version.
func (e *Engine) Transition(ctx context.Context, actor rbac.Actor, documentID string, target document.State) (document.Document, error) {
	return e.transition(ctx, actor, documentID, target, nil)
}

func (e *Engine) SubmitReview(ctx context.Context, actor rbac.Actor, documentID string) (document.Document, error) {
	return e.transition(ctx, actor, documentID, document.StateReview, nil)
}

// Reject sends a document under review back with a stated reason.
func (e *Engine) Reject(ctx context.Context, actor rbac.Actor, documentID, reason string) (document.Document, error) {
	if err := e.guard.Check(actor, rbac.OpReject); err != nil {
		return document.Document{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return document.Document{}, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	return e.transition(ctx, actor, documentID, document.StateRejected, map[string]string{"reason": reason})
}

func (e *Engine) ReturnToDraft(ctx context.Context, actor rbac.Actor, documentID string) (document.Document, error) {
	return e.transition(ctx, actor, documentID, document.StateDraft, nil)
}

func (e *Engine) MakeEffective(ctx context.Context, actor rbac.Actor, documentID string) (document.Document, error) {
	return e.transition(ctx, actor, documentID, document.StateEffective, nil)
}

func (e *Engine) MarkObsolete(ctx context.Context, actor rbac.Actor, documentID string) (document.Document, error) {
	return e.transition(ctx, actor, documentID, document.StateArchived, nil)
}

func (e *Engine) transition(ctx context.Context, actor rbac.Actor, documentID string, target document.State, metadata map[string]string) (doc document.Document, err error) {
	ctx, span := e.startSpan(ctx, "lifecycle.Transition", documentID)
	defer func() { endSpan(span, err) }()

	rule, ok := targetRules[target]
	if !ok {
		return document.Document{}, dErrors.Newf(dErrors.CodeValidation, "unknown target state %q", target)
	}
	if err := e.guard.Check(actor, rule.op); err != nil {
		return document.Document{}, err
	}
	if target == document.StateApproved {
		return document.Document{}, dErrors.New(dErrors.CodeWorkflow, "approval requires an electronic signature").
			With("to", string(target))
	}

	var from document.State
	err = e.RunLocked(ctx, documentID, func(txCtx context.Context) error {
		current, err := e.docs.FindByID(txCtx, documentID)
		if err != nil {
			return wrapDocumentErr(err, documentID)
		}
		from = current.State
		d, err := e.ApplyTransition(txCtx, actor, documentID, target, metadata)
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return document.Document{}, err
	}
	e.logAccepted(ctx, rule.action, actor, doc.ID, "from", string(from), "to", string(target))
	return doc, nil
}

// RunLocked runs fn in the unit of work of one document.
func (e *Engine) RunLocked(ctx context.Context, documentID string, fn func(ctx context.Context) error) error {
	return e.runner.RunInTx(ctx, documentID, fn)
}

// ApplyTransition validates target against the persisted state, applies it
// and appends its audit entry with {from, to} merged into metadata. It must
// run inside RunLocked for the same document and performs no authorization;
// callers check the actor first.
func (e *Engine) ApplyTransition(ctx context.Context, actor rbac.Actor, documentID string, target document.State, metadata map[string]string) (document.Document, error) {
	if held, ok := tx.Held(ctx); !ok || held != documentID {
		return document.Document{}, dErrors.Newf(dErrors.CodeInternal, "transition of %s outside its unit of work", documentID)
	}
	rule, ok := targetRules[target]
	if !ok {
		return document.Document{}, dErrors.Newf(dErrors.CodeValidation, "unknown target state %q", target)
	}

	doc, err := e.docs.FindByID(ctx, documentID)
	if err != nil {
		return document.Document{}, wrapDocumentErr(err, documentID)
	}
	if err := doc.CanTransition(target); err != nil {
		return document.Document{}, err
	}

	from := doc.State
	doc.ApplyTransition(target, requestcontext.Now(ctx))
	if err := e.docs.Update(ctx, doc); err != nil {
		return document.Document{}, wrapDocumentErr(err, documentID)
	}

	meta := maps.Clone(metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	meta["from"] = string(from)
	meta["to"] = string(target)
	if _, err := e.ledger.Append(ctx, audit.Event{
		DocumentID: doc.ID,
		ActorID:    actor.ID,
		Action:     rule.action,
		Metadata:   meta,
	}); err != nil {
		return document.Document{}, err
	}

	e.metrics.incTransition(from, target)
	return doc, nil
}
