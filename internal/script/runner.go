package script

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/micss-lab/modelexpr/internal/logging"
	"github.com/micss-lab/modelexpr/pkg/schema"
)

// Runner validates a whole model against a constraint suite. Elements are
// checked concurrently with bounded parallelism; the model and metamodel are
// treated as immutable snapshots for the duration of the pass.
type Runner struct {
	validator   *Validator
	logger      *slog.Logger
	concurrency int
}

// NewRunner creates a Runner. Concurrency below 1 defaults to 4.
func NewRunner(validator *Validator, logger *slog.Logger, concurrency int) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 4
	}
	return &Runner{validator: validator, logger: logger, concurrency: concurrency}
}

// Run executes every applicable (element, constraint) pair and collects the
// failing outcomes into a report. Constraints flagged invalid by a previous
// syntax probe are excluded from execution and surfaced once as a warning;
// constraints that fail the probe here are handled the same way. The pass
// itself never fails: context cancellation simply truncates it.
func (r *Runner) Run(ctx context.Context, model *schema.Model, metamodel *schema.Metamodel, constraints []schema.ScriptConstraint) *schema.ValidationReport {
	report := &schema.ValidationReport{ID: uuid.NewString()}
	if model != nil {
		report.ModelID = model.ID
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithModelID(ctx, report.ModelID)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i := range constraints {
		c := constraints[i]

		if !c.IsValid && c.ErrorMessage != "" {
			report.Add(schema.ValidationIssue{
				Severity:     schema.SeverityWarning,
				Message:      "constraint skipped, fix its syntax first: " + c.ErrorMessage,
				ConstraintID: c.ID,
				Expression:   c.Expression,
			})
			continue
		}
		if probe := r.validator.ValidateSyntax(c.Language, c.Expression); !probe.Valid {
			msg := "constraint skipped, fix its syntax first"
			if len(probe.Issues) > 0 {
				msg += ": " + probe.Issues[0]
			}
			report.Add(schema.ValidationIssue{
				Severity:     schema.SeverityWarning,
				Message:      msg,
				ConstraintID: c.ID,
				Expression:   c.Expression,
			})
			continue
		}

		for _, element := range r.applicableElements(model, metamodel, &c) {
			el := element
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return nil
				default:
				}

				evalCtx := logging.WithIDs(gctx, report.ModelID, el.ID, c.ID)
				outcome := r.validator.Evaluate(evalCtx, &c, el, model, metamodel)

				mu.Lock()
				report.Checked++
				if !outcome.Passed {
					report.Add(schema.ValidationIssue{
						Severity:     c.Severity,
						Message:      outcome.Message,
						ElementID:    el.ID,
						ConstraintID: c.ID,
						Expression:   c.Expression,
					})
				}
				mu.Unlock()
				return nil
			})
		}
	}

	_ = g.Wait()

	// Stable ordering for renderers and tests.
	sort.SliceStable(report.Issues, func(i, j int) bool {
		if report.Issues[i].ElementID != report.Issues[j].ElementID {
			return report.Issues[i].ElementID < report.Issues[j].ElementID
		}
		return report.Issues[i].ConstraintID < report.Issues[j].ConstraintID
	})

	logging.LogWith(ctx, r.logger).Info("validation pass complete",
		slog.String("report_id", report.ID),
		slog.String("summary", report.Summary()))
	return report
}

// applicableElements selects the model elements instantiating the
// constraint's context class, matching by class ID first and class name as a
// fallback for suites authored against exported metamodels.
func (r *Runner) applicableElements(model *schema.Model, metamodel *schema.Metamodel, c *schema.ScriptConstraint) []*schema.ModelElement {
	if model == nil {
		return nil
	}
	if c.ContextClassID != "" {
		if out := model.ElementsOfType(c.ContextClassID); len(out) > 0 {
			return out
		}
	}
	if c.ContextClassName != "" {
		if cls := metamodel.ClassByName(c.ContextClassName); cls != nil {
			return model.ElementsOfType(cls.ID)
		}
	}
	return nil
}
