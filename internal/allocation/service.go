// Package allocation is the call surface of the bed-allocation core. It ties
// the scoring engine, the alert monitor, the assignment coordinator and the
// discharge estimator together behind one service.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/hospital-bed-platform/internal/alerts"
	"github.com/wolfman30/hospital-bed-platform/internal/audit"
	"github.com/wolfman30/hospital-bed-platform/internal/beds"
	"github.com/wolfman30/hospital-bed-platform/internal/discharge"
	"github.com/wolfman30/hospital-bed-platform/internal/observability/metrics"
	"github.com/wolfman30/hospital-bed-platform/internal/policy"
	"github.com/wolfman30/hospital-bed-platform/internal/scoring"
	"github.com/wolfman30/hospital-bed-platform/internal/workflow"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

var allocationTracer = otel.Tracer("hospital.internal.allocation")

// ErrPatientAdmitted is returned when registering a patient who already occupies a bed.
var ErrPatientAdmitted = errors.New("allocation: patient is already admitted")

// RecommendationAuditor keeps a short-lived record of each recommendation.
type RecommendationAuditor interface {
	Put(ctx context.Context, rec audit.RecommendationRecord) error
}

// OutcomeReader lists finished assignment workflows.
type OutcomeReader interface {
	Recent(ctx context.Context, limit int) ([]audit.LedgerEntry, error)
}

// Recommendation is a ranked placement with optional policy justification.
type Recommendation struct {
	scoring.Result
	RecommendationID string `json:"recommendation_id,omitempty"`
	Justification    string `json:"justification,omitempty"`
}

// Service implements the allocation call surface.
type Service struct {
	inventory   beds.Inventory
	engine      *scoring.Engine
	coordinator *workflow.Coordinator
	monitor     *alerts.Monitor
	discharge   *discharge.Service

	enricher        *policy.Enricher
	auditor         RecommendationAuditor
	outcomes        OutcomeReader
	metrics         *metrics.BedMetrics
	gatherer        prometheus.Gatherer
	sweeper         workflow.SweepTrigger
	cleaningOverdue time.Duration

	logger *logging.Logger
	now    func() time.Time
}

// NewService wires the decision core components.
func NewService(inventory beds.Inventory, engine *scoring.Engine, coordinator *workflow.Coordinator, monitor *alerts.Monitor, estimator *discharge.Service, logger *logging.Logger) *Service {
	if inventory == nil {
		panic("allocation: inventory required")
	}
	if engine == nil || coordinator == nil || monitor == nil || estimator == nil {
		panic("allocation: engine, coordinator, monitor and discharge service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		inventory:       inventory,
		engine:          engine,
		coordinator:     coordinator,
		monitor:         monitor,
		discharge:       estimator,
		cleaningOverdue: alerts.DefaultThresholds().CleaningOverdueAfter,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithEnricher attaches best-effort policy justifications to recommendations.
func (s *Service) WithEnricher(e *policy.Enricher) *Service {
	s.enricher = e
	return s
}

// WithAuditor records every non-empty recommendation.
func (s *Service) WithAuditor(a RecommendationAuditor) *Service {
	s.auditor = a
	return s
}

// WithOutcomes enables RecentOutcomes.
func (s *Service) WithOutcomes(o OutcomeReader) *Service {
	s.outcomes = o
	return s
}

// WithMetrics attaches metrics and the gatherer the dashboard reads them from.
func (s *Service) WithMetrics(m *metrics.BedMetrics, gatherer prometheus.Gatherer) *Service {
	s.metrics = m
	s.gatherer = gatherer
	return s
}

// WithCleaningOverdue sets the threshold used for dashboard snapshots.
func (s *Service) WithCleaningOverdue(d time.Duration) *Service {
	if d > 0 {
		s.cleaningOverdue = d
	}
	return s
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// RegisterPatient stores a pending admission so an assignment can later be
// started from the patient id alone. An id is generated when none is given.
func (s *Service) RegisterPatient(ctx context.Context, req beds.AdmissionRequest) (beds.Patient, error) {
	req.PatientID = strings.TrimSpace(req.PatientID)
	if req.PatientID == "" {
		req.PatientID = uuid.NewString()
	}
	if err := req.Validate(); err != nil {
		return beds.Patient{}, fmt.Errorf("%w: %w", scoring.ErrInvalidInput, err)
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = s.now()
	}

	existing, err := s.inventory.GetPatient(ctx, req.PatientID)
	switch {
	case err == nil && existing.Status == beds.PatientAdmitted:
		return existing, ErrPatientAdmitted
	case err != nil && !errors.Is(err, beds.ErrPatientNotFound):
		return beds.Patient{}, fmt.Errorf("allocation: load patient: %w", err)
	}

	patient := beds.Patient{AdmissionRequest: req, Status: beds.PatientPending, UpdatedAt: s.now()}
	id, err := s.inventory.UpsertPatient(ctx, patient)
	if err != nil {
		return beds.Patient{}, fmt.Errorf("allocation: register patient: %w", err)
	}
	patient.PatientID = id
	s.logger.Info("patient registered", "patient_id", id, "severity", req.Severity)
	return patient, nil
}

// RecommendBed ranks the vacant beds for req. An empty inventory yields a
// result with no candidates and an explanatory reason, not an error.
func (s *Service) RecommendBed(ctx context.Context, req beds.AdmissionRequest) (Recommendation, error) {
	ctx, span := allocationTracer.Start(ctx, "allocation.recommend")
	defer span.End()
	span.SetAttributes(attribute.String("hospital.patient_id", req.PatientID))

	if err := req.Validate(); err != nil {
		s.metrics.ObserveRecommendation("invalid")
		return Recommendation{}, fmt.Errorf("%w: %w", scoring.ErrInvalidInput, err)
	}

	vacant, err := s.inventory.VacantBeds(ctx, "")
	if err != nil {
		span.RecordError(err)
		return Recommendation{}, fmt.Errorf("allocation: load vacant beds: %w", err)
	}
	roster, err := s.inventory.Roster(ctx)
	if err != nil {
		s.logger.Warn("roster unavailable, scoring specialization as neutral", "error", err)
		roster = nil
	}

	result, err := s.engine.Rank(req, vacant, roster)
	if err != nil {
		s.metrics.ObserveRecommendation("invalid")
		return Recommendation{}, err
	}
	rec := Recommendation{Result: result}

	best, ok := result.Best()
	if !ok {
		s.metrics.ObserveRecommendation("empty")
		s.logger.Info("no bed to recommend", "patient_id", req.PatientID, "reason", result.Reason)
		return rec, nil
	}
	span.SetAttributes(
		attribute.String("hospital.bed_id", best.BedID),
		attribute.Int("hospital.candidates", len(result.Candidates)),
	)

	rec.Justification = s.enricher.Justify(ctx, req, best)

	if s.auditor != nil {
		record := audit.NewRecommendationRecord(result, rec.Justification, s.now())
		if err := s.auditor.Put(ctx, record); err != nil {
			s.logger.Warn("recommendation audit failed", "patient_id", req.PatientID, "error", err)
		} else {
			rec.RecommendationID = record.RecommendationID
		}
	}

	s.metrics.ObserveRecommendation("ranked")
	s.logger.Info("bed recommended",
		"patient_id", req.PatientID,
		"bed_id", best.BedID,
		"ward", best.Ward,
		"confidence", best.Confidence,
		"alternatives", len(result.Alternatives()),
	)
	return rec, nil
}

// StartAssignment begins an assignment workflow and returns its handle
// without waiting. bedID may be empty to let the engine choose.
func (s *Service) StartAssignment(ctx context.Context, patientID, bedID string) (workflow.Workflow, error) {
	return s.coordinator.Start(ctx, workflow.Request{PatientID: patientID, BedID: bedID})
}

// AwaitAssignment blocks until the workflow finishes or ctx ends.
func (s *Service) AwaitAssignment(ctx context.Context, id string) (workflow.Workflow, error) {
	return s.coordinator.Wait(ctx, id)
}

// GetWorkflow returns the current snapshot of a workflow.
func (s *Service) GetWorkflow(id string) (workflow.Workflow, error) {
	return s.coordinator.Get(id)
}

// CancelWorkflow cancels a running workflow and waits for its rollback.
func (s *Service) CancelWorkflow(ctx context.Context, id string) (workflow.Workflow, error) {
	return s.coordinator.Cancel(ctx, id)
}

// SweepAlerts runs one alert sweep now and returns the active alerts.
func (s *Service) SweepAlerts(ctx context.Context) ([]alerts.Alert, error) {
	report, err := s.monitor.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	if len(report.FailedWards) > 0 {
		s.logger.Warn("on-demand sweep skipped wards", "failed_wards", report.FailedWards)
	}
	if report.Active == nil {
		return []alerts.Alert{}, nil
	}
	return report.Active, nil
}

// ListAlerts returns alerts for display.
func (s *Service) ListAlerts(ctx context.Context, filter alerts.ListFilter) ([]alerts.Alert, error) {
	list, err := s.monitor.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []alerts.Alert{}
	}
	return list, nil
}

// AcknowledgeAlert records that by has seen the alert.
func (s *Service) AcknowledgeAlert(ctx context.Context, id, by string) (alerts.Alert, error) {
	return s.monitor.Acknowledge(ctx, id, by)
}

// ResolveAlert closes the alert on behalf of by.
func (s *Service) ResolveAlert(ctx context.Context, id, by string) (alerts.Alert, error) {
	return s.monitor.Resolve(ctx, id, by)
}

// EstimateDischarge estimates discharge readiness for an admitted patient.
func (s *Service) EstimateDischarge(ctx context.Context, patientID string) (discharge.Estimate, error) {
	return s.discharge.EstimateForPatient(ctx, patientID)
}

// ListBeds returns the inventory, optionally narrowed to one ward.
func (s *Service) ListBeds(ctx context.Context, ward string) ([]beds.Bed, error) {
	list, err := s.inventory.ListBeds(ctx, ward)
	if err != nil {
		return nil, fmt.Errorf("allocation: list beds: %w", err)
	}
	if list == nil {
		list = []beds.Bed{}
	}
	return list, nil
}

// RecentOutcomes lists finished workflows from the ledger. Without a ledger
// it returns an empty list.
func (s *Service) RecentOutcomes(ctx context.Context, limit int) ([]audit.LedgerEntry, error) {
	if s.outcomes == nil {
		return []audit.LedgerEntry{}, nil
	}
	return s.outcomes.Recent(ctx, limit)
}
