// Package federation stitches department-store rows to the patients they
// reference in the central store. No query ever spans both stores: the
// engine collects the foreign identities of a result set and resolves them
// with a single batched read.
package federation

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hospital/hospital/internal/platform/apperr"
	"github.com/hospital/hospital/internal/platform/telemetry"
)

// PatientSummary is the slice of a central patient record embedded in
// composite views.
type PatientSummary struct {
	ID        int64  `json:"id"`
	Cedula    string `json:"cedula"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	State     string `json:"state"`
}

func (p PatientSummary) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// PatientSource is the central-store side of the join.
type PatientSource interface {
	// PatientsByIDs returns the patients that exist among ids, in any order.
	// Absent ids are simply missing from the result.
	PatientsByIDs(ctx context.Context, ids []int64) ([]PatientSummary, error)
	// RecordOwner returns the patient a clinical record belongs to, or a
	// NotFound error.
	RecordOwner(ctx context.Context, recordID int64) (int64, error)
}

type LinkStatus string

const (
	Resolved   LinkStatus = "RESOLVED"
	Unresolved LinkStatus = LinkStatus(apperr.KindUnresolvedForeignReference)
)

// Link is a foreign patient reference after resolution. Patient is nil
// exactly when Status is Unresolved.
type Link struct {
	PatientID int64           `json:"patient_id"`
	Status    LinkStatus      `json:"status"`
	Patient   *PatientSummary `json:"patient"`
}

func (l Link) IsResolved() bool { return l.Status == Resolved }

// Composite pairs a local row with its patient link.
type Composite[T any] struct {
	Record  T    `json:"record"`
	Patient Link `json:"patient"`
}

type Engine struct {
	source  PatientSource
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	logger  zerolog.Logger
}

func NewEngine(source PatientSource, metrics *telemetry.Metrics, logger zerolog.Logger) *Engine {
	return &Engine{
		source:  source,
		metrics: metrics,
		tracer:  telemetry.Tracer("federation"),
		logger:  logger.With().Str("component", "federation").Logger(),
	}
}

// Resolve fetches the distinct patients among ids in one round trip. An
// empty id set issues no fetch.
func (e *Engine) Resolve(ctx context.Context, ids []int64) (map[int64]PatientSummary, error) {
	distinct := dedupe(ids)
	if len(distinct) == 0 {
		return map[int64]PatientSummary{}, nil
	}

	kind := "batch"
	if len(distinct) == 1 {
		kind = "single"
	}
	ctx, span := e.tracer.Start(ctx, "federation.resolve_patients",
		trace.WithAttributes(
			attribute.String("federation.kind", kind),
			attribute.Int("federation.batch_size", len(distinct)),
		))
	defer span.End()

	found, err := e.source.PatientsByIDs(ctx, distinct)
	if err != nil {
		outcome := "error"
		if apperr.IsKind(err, apperr.KindDependencyUnavailable) {
			outcome = "unavailable"
		}
		e.metrics.FederatedFetch(kind, outcome, len(distinct))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	e.metrics.FederatedFetch(kind, "ok", len(distinct))

	out := make(map[int64]PatientSummary, len(found))
	for _, p := range found {
		out[p.ID] = p
	}
	span.SetAttributes(attribute.Int("federation.resolved", len(out)))
	return out, nil
}

// LinkFor builds the link for id from a Resolve result.
func LinkFor(id int64, resolved map[int64]PatientSummary) Link {
	if p, ok := resolved[id]; ok {
		return Link{PatientID: id, Status: Resolved, Patient: &p}
	}
	return Link{PatientID: id, Status: Unresolved}
}

// Lookup resolves a single reference for a detail view. A patient missing
// from the central store is an unresolved link, not an error.
func (e *Engine) Lookup(ctx context.Context, source string, patientID int64) (Link, error) {
	resolved, err := e.Resolve(ctx, []int64{patientID})
	if err != nil {
		return Link{}, err
	}
	link := LinkFor(patientID, resolved)
	if !link.IsResolved() {
		e.unresolved(source, []int64{patientID})
	}
	return link, nil
}

// Join resolves the patients of rows with one batched fetch and returns the
// composites in input order. Each sidecar is a local-store read needed to
// render the same page; sidecars run concurrently with the central fetch and
// the join fails if any of them fails.
func Join[T any](ctx context.Context, e *Engine, source string, rows []T, patientID func(T) int64, sidecars ...func(context.Context) error) ([]Composite[T], error) {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = patientID(r)
	}

	var resolved map[int64]PatientSummary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resolved, err = e.Resolve(gctx, ids)
		return err
	})
	for _, sc := range sidecars {
		g.Go(func() error { return sc(gctx) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Composite[T], len(rows))
	var missing []int64
	for i, r := range rows {
		link := LinkFor(ids[i], resolved)
		if !link.IsResolved() {
			missing = append(missing, ids[i])
		}
		out[i] = Composite[T]{Record: r, Patient: link}
	}
	if len(missing) > 0 {
		e.unresolved(source, missing)
	}
	return out, nil
}

// RequirePatient is the write-time existence check for a new cross-store
// reference.
func (e *Engine) RequirePatient(ctx context.Context, patientID int64) (PatientSummary, error) {
	resolved, err := e.Resolve(ctx, []int64{patientID})
	if err != nil {
		return PatientSummary{}, err
	}
	p, ok := resolved[patientID]
	if !ok {
		return PatientSummary{}, apperr.NotFound("patient", patientID)
	}
	return p, nil
}

// RequireClinicalRecord checks that recordID exists and belongs to patientID.
func (e *Engine) RequireClinicalRecord(ctx context.Context, patientID, recordID int64) error {
	ctx, span := e.tracer.Start(ctx, "federation.require_clinical_record",
		trace.WithAttributes(attribute.Int64("clinical_record.id", recordID)))
	defer span.End()

	owner, err := e.source.RecordOwner(ctx, recordID)
	if err != nil {
		if !apperr.IsKind(err, apperr.KindNotFound) {
			span.RecordError(err)
		}
		return err
	}
	if owner != patientID {
		return apperr.Validationf("clinical record %d does not belong to patient %d", recordID, patientID).
			WithDetail("clinical_record_id", recordID)
	}
	return nil
}

func (e *Engine) unresolved(source string, ids []int64) {
	e.metrics.Unresolved(source, len(ids))
	e.logger.Debug().Str("source", source).Ints64("patient_ids", ids).Msg("unresolved patient references")
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
