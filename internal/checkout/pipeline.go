package checkout

import (
	"context"
	"log/slog"

	"github.com/arinellipar/laossuicide-sub000/internal/auditlog"
)

// Stage is a single unit of work in the checkout saga. Execute mutates the
// shared per-attempt Context; Compensate undoes the stage's effects and is
// a no-op for read-only stages.
type Stage interface {
	Name() string
	Execute(ctx context.Context, chk *Context) error
	Compensate(ctx context.Context, chk *Context) error
}

// Pipeline runs stages strictly in order. On failure it compensates the
// already-executed stages in reverse and re-raises the original error;
// it never swallows the root cause.
type Pipeline struct {
	stages []Stage
	audit  auditlog.Repository // nil-safe: transitions are not persisted if nil
}

func NewPipeline(stages []Stage, audit auditlog.Repository) *Pipeline {
	return &Pipeline{stages: stages, audit: audit}
}

// Run drives the stages forward against chk.
func (p *Pipeline) Run(ctx context.Context, chk *Context) error {
	p.record(ctx, chk, auditlog.KindCheckoutStarted, "")

	var executed []Stage
	for _, stage := range p.stages {
		slog.InfoContext(ctx, "executing checkout stage",
			"stage", stage.Name(), "attempt_id", chk.AttemptID, "user_id", chk.UserID)

		if err := stage.Execute(ctx, chk); err != nil {
			slog.ErrorContext(ctx, "checkout stage failed, starting compensation",
				"stage", stage.Name(), "attempt_id", chk.AttemptID, "error", err)
			p.record(ctx, chk, auditlog.KindCheckoutCompensating, stage.Name())
			p.compensate(ctx, chk, executed)
			p.record(ctx, chk, auditlog.KindCheckoutFailed, err.Error())
			return err
		}

		executed = append(executed, stage)
		p.record(ctx, chk, auditlog.KindCheckoutStageDone, stage.Name())
	}

	p.record(ctx, chk, auditlog.KindCheckoutCompleted, "")
	return nil
}

// compensate unwinds executed stages LIFO. A failing compensation is logged
// and the unwind continues; every stage gets its chance to compensate.
func (p *Pipeline) compensate(ctx context.Context, chk *Context, executed []Stage) {
	for i := len(executed) - 1; i >= 0; i-- {
		stage := executed[i]
		slog.InfoContext(ctx, "compensating checkout stage",
			"stage", stage.Name(), "attempt_id", chk.AttemptID)
		if err := stage.Compensate(ctx, chk); err != nil {
			slog.ErrorContext(ctx, "compensation failed, continuing unwind",
				"stage", stage.Name(), "attempt_id", chk.AttemptID, "error", err)
		}
	}
}

func (p *Pipeline) record(ctx context.Context, chk *Context, kind, detail string) {
	if p.audit == nil {
		return
	}
	entry := auditlog.NewEntry(ctx, chk.OrderID, "", kind, detail, "")
	if err := p.audit.Save(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "failed to persist checkout audit entry",
			"kind", kind, "attempt_id", chk.AttemptID, "error", err)
	}
}
