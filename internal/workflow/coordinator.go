package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/hospital-bed-platform/internal/beds"
	"github.com/wolfman30/hospital-bed-platform/internal/events"
	"github.com/wolfman30/hospital-bed-platform/internal/observability/metrics"
	"github.com/wolfman30/hospital-bed-platform/internal/retry"
	"github.com/wolfman30/hospital-bed-platform/internal/scoring"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

const (
	historyActor   = "assignment-workflow"
	releaseTimeout = 10 * time.Second
)

var (
	errReclaimed         = errors.New("workflow: reclaimed by reaper")
	errCancelledByCaller = errors.New("workflow: cancelled by caller")
	errDeadline          = errors.New("workflow: deadline exceeded")
)

// SweepTrigger asks the alert monitor for an extra sweep without blocking.
type SweepTrigger interface {
	TriggerAsync()
}

// OutcomeRecorder stores finished workflows.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, wf Workflow) error
}

type instance struct {
	wf     Workflow
	cancel context.CancelCauseFunc
	done   chan struct{}

	// held is true while this workflow may own a Reserved bed. An errored
	// reservation attempt sets it too, since the swap may have applied.
	held bool
	// bedID is the bed held is about.
	bedID string
	// original is the patient record to restore if an admitted upsert must be undone.
	original *beds.Patient
	// committing blocks the reaper while the final Reserved to Occupied swap runs.
	committing bool
}

// Coordinator runs assignment workflows concurrently. The bed inventory's
// compare-and-swap is the only serialization point between workflows.
type Coordinator struct {
	inventory beds.Inventory
	engine    *scoring.Engine
	publisher events.Publisher
	ledger    OutcomeRecorder
	sweeper   SweepTrigger
	metrics   *metrics.BedMetrics
	retry     retry.Policy
	tracer    trace.Tracer
	logger    *logging.Logger
	deadline  time.Duration
	retention time.Duration
	now       func() time.Time

	mu        sync.Mutex
	workflows map[string]*instance
	// patients maps a patient id to its in-flight workflow.
	patients map[string]string
	wg       sync.WaitGroup
}

// NewCoordinator creates a coordinator. deadline bounds each workflow from
// creation to its terminal state.
func NewCoordinator(inventory beds.Inventory, engine *scoring.Engine, publisher events.Publisher, deadline time.Duration, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	if engine == nil {
		engine = scoring.NewEngine(scoring.DefaultConfig(), nil)
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &Coordinator{
		inventory: inventory,
		engine:    engine,
		publisher: publisher,
		retry:     retry.Default,
		tracer:    otel.Tracer("hospital.internal.workflow"),
		logger:    logger,
		deadline:  deadline,
		retention: time.Hour,
		now:       func() time.Time { return time.Now().UTC() },
		workflows: make(map[string]*instance),
		patients:  make(map[string]string),
	}
}

func (c *Coordinator) WithRetry(p retry.Policy) *Coordinator {
	c.retry = p
	return c
}

func (c *Coordinator) WithMetrics(m *metrics.BedMetrics) *Coordinator {
	c.metrics = m
	return c
}

func (c *Coordinator) WithLedger(l OutcomeRecorder) *Coordinator {
	c.ledger = l
	return c
}

func (c *Coordinator) WithSweepTrigger(s SweepTrigger) *Coordinator {
	c.sweeper = s
	return c
}

func (c *Coordinator) WithTracer(t trace.Tracer) *Coordinator {
	if t != nil {
		c.tracer = t
	}
	return c
}

// WithClock overrides the clock used for timestamps and deadline checks.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	if now != nil {
		c.now = now
	}
	return c
}

// WithRetention sets how long finished workflows stay queryable.
func (c *Coordinator) WithRetention(d time.Duration) *Coordinator {
	if d > 0 {
		c.retention = d
	}
	return c
}

// Start creates a workflow and runs it in the background. The returned
// snapshot is in state Created; use Wait or Get to follow it.
func (c *Coordinator) Start(ctx context.Context, req Request) (Workflow, error) {
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.BedID = strings.TrimSpace(req.BedID)
	if req.PatientID == "" {
		return Workflow{}, ErrMissingPatientID
	}

	now := c.now()
	wf := Workflow{
		ID:        uuid.NewString(),
		PatientID: req.PatientID,
		BedID:     req.BedID,
		State:     StateCreated,
		Deadline:  now.Add(c.deadline),
		CreatedAt: now,
		UpdatedAt: now,
		Steps:     []Step{{State: StateCreated, At: now, Note: "assignment requested"}},
		Reason:    "assignment requested",
	}

	// The run outlives the caller's request but keeps its values.
	runCtx, cancelTimeout := context.WithTimeoutCause(context.WithoutCancel(ctx), c.deadline, errDeadline)
	runCtx, cancel := context.WithCancelCause(runCtx)
	inst := &instance{wf: wf, cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.workflows[wf.ID] = inst
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancelTimeout()
		defer cancel(nil)
		c.run(runCtx, inst, req)
	}()
	return wf.clone(), nil
}

// Run starts a workflow and waits for it to finish.
func (c *Coordinator) Run(ctx context.Context, req Request) (Workflow, error) {
	wf, err := c.Start(ctx, req)
	if err != nil {
		return Workflow{}, err
	}
	return c.Wait(ctx, wf.ID)
}

// Wait blocks until the workflow finishes or ctx ends.
func (c *Coordinator) Wait(ctx context.Context, id string) (Workflow, error) {
	inst, err := c.lookup(id)
	if err != nil {
		return Workflow{}, err
	}
	select {
	case <-inst.done:
	case <-ctx.Done():
		return c.snapshot(inst), ctx.Err()
	}
	return c.snapshot(inst), nil
}

// Get returns the current snapshot of a workflow.
func (c *Coordinator) Get(id string) (Workflow, error) {
	inst, err := c.lookup(id)
	if err != nil {
		return Workflow{}, err
	}
	return c.snapshot(inst), nil
}

// Cancel stops a workflow that has not committed. A reserved bed is released
// through the same rollback path as a timeout.
func (c *Coordinator) Cancel(ctx context.Context, id string) (Workflow, error) {
	inst, err := c.lookup(id)
	if err != nil {
		return Workflow{}, err
	}
	c.mu.Lock()
	terminal := inst.wf.State.Terminal()
	c.mu.Unlock()
	if terminal {
		return c.snapshot(inst), ErrAlreadyFinished
	}

	inst.cancel(errCancelledByCaller)
	select {
	case <-inst.done:
	case <-ctx.Done():
		return c.snapshot(inst), ctx.Err()
	}
	wf := c.snapshot(inst)
	if wf.State == StateCommitted {
		return wf, ErrAlreadyFinished
	}
	return wf, nil
}

// Shutdown waits for in-flight workflows to finish.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reap rolls back every non-terminal workflow past its deadline, retries
// releasing beds whose earlier rollback failed, and forgets finished
// workflows older than the retention window. It returns how many workflows
// it rolled back.
func (c *Coordinator) Reap(ctx context.Context) int {
	now := c.now()
	var expired, stranded []*instance
	c.mu.Lock()
	for id, inst := range c.workflows {
		switch {
		case !inst.wf.State.Terminal():
			if !inst.committing && now.After(inst.wf.Deadline) {
				expired = append(expired, inst)
			}
		case inst.held:
			stranded = append(stranded, inst)
		case now.Sub(inst.wf.UpdatedAt) > c.retention:
			delete(c.workflows, id)
		}
	}
	c.mu.Unlock()

	reaped := 0
	for _, inst := range expired {
		if ctx.Err() != nil {
			break
		}
		f := &Failure{Kind: FailureTimeout, Reason: "workflow deadline exceeded"}
		snap, claimed := c.settle(inst, StateRolledBack, f, f.Reason)
		if !claimed {
			continue
		}
		inst.cancel(errDeadline)
		if _, err := c.release(inst, string(f.Kind)); err != nil {
			c.logger.Error("reaper could not release bed", "workflow_id", snap.ID, "bed_id", snap.BedID, "error", err)
		}
		c.emit(snap)
		reaped++
	}
	for _, inst := range stranded {
		if ctx.Err() != nil {
			break
		}
		if _, err := c.release(inst, "retry rollback"); err != nil {
			c.logger.Warn("bed release retry failed", "workflow_id", inst.wf.ID, "error", err)
		}
	}
	if reaped > 0 {
		c.logger.Info("reaped expired workflows", "count", reaped)
	}
	return reaped
}

func (c *Coordinator) run(ctx context.Context, inst *instance, req Request) {
	defer close(inst.done)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("assignment workflow crashed, leaving it to the reaper", "workflow_id", inst.wf.ID, "panic", fmt.Sprint(r))
		}
	}()

	ctx, span := c.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("hospital.workflow.id", inst.wf.ID),
		attribute.String("hospital.workflow.patient_id", req.PatientID),
	))
	defer span.End()

	if err := c.claimPatient(inst); err != nil {
		c.abort(ctx, inst, err)
		return
	}
	defer c.releasePatient(inst)

	patient, err := c.loadPatient(ctx, req.PatientID)
	if err != nil {
		span.RecordError(err)
		c.abort(ctx, inst, err)
		return
	}

	if err := c.advance(inst, StateScoring, "ranking candidate beds"); err != nil {
		return
	}
	candidates, err := c.rank(ctx, patient, req.BedID)
	if err != nil {
		span.RecordError(err)
		c.abort(ctx, inst, err)
		return
	}
	c.mu.Lock()
	inst.wf.Candidates = candidates
	c.mu.Unlock()

	chosen, err := c.reserve(ctx, inst, candidates, req.BedID != "")
	if errors.Is(err, errReclaimed) {
		return
	}
	if err != nil {
		span.RecordError(err)
		c.abort(ctx, inst, err)
		return
	}

	if err := c.commit(ctx, inst, patient, chosen); err != nil {
		if errors.Is(err, errReclaimed) {
			return
		}
		span.RecordError(err)
		c.abort(ctx, inst, err)
		return
	}

	snap, ok := c.settle(inst, StateCommitted, nil, fmt.Sprintf("patient %s admitted to bed %s in %s", patient.PatientID, chosen.BedID, chosen.Ward))
	if !ok {
		return
	}
	span.SetAttributes(
		attribute.String("hospital.workflow.bed_id", chosen.BedID),
		attribute.Int("hospital.workflow.retries", snap.RetryCount),
	)
	c.emit(snap)
}

// claimPatient makes inst the only in-flight workflow for its patient. The
// claim lasts until the run goroutine exits, past any reaper settlement, so a
// late write from a reclaimed run cannot race a newer workflow.
func (c *Coordinator) claimPatient(inst *instance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if other, ok := c.patients[inst.wf.PatientID]; ok && other != inst.wf.ID {
		return &Failure{Kind: FailureInvalidPatientData, Reason: fmt.Sprintf("patient %s already has assignment workflow %s in progress", inst.wf.PatientID, other)}
	}
	c.patients[inst.wf.PatientID] = inst.wf.ID
	return nil
}

func (c *Coordinator) releasePatient(inst *instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.patients[inst.wf.PatientID] == inst.wf.ID {
		delete(c.patients, inst.wf.PatientID)
	}
}

// permanent stops retries of errors another attempt cannot fix.
func permanent(err error) error {
	if errors.Is(err, beds.ErrBedNotFound) || errors.Is(err, beds.ErrInvalidTransition) || errors.Is(err, beds.ErrMissingHolder) {
		return retry.Permanent(err)
	}
	return err
}

func (c *Coordinator) loadPatient(ctx context.Context, id string) (beds.Patient, error) {
	var patient beds.Patient
	err := c.retry.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		patient, err = c.inventory.GetPatient(ctx, id)
		if errors.Is(err, beds.ErrPatientNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	switch {
	case errors.Is(err, beds.ErrPatientNotFound):
		return patient, &Failure{Kind: FailureInvalidPatientData, Reason: fmt.Sprintf("patient %s is not registered", id)}
	case err != nil:
		return patient, fmt.Errorf("load patient: %w", err)
	case patient.Status == beds.PatientAdmitted:
		return patient, &Failure{Kind: FailureInvalidPatientData, Reason: fmt.Sprintf("patient %s is already admitted to bed %s", id, patient.BedID)}
	}
	if err := patient.Validate(); err != nil {
		return patient, &Failure{Kind: FailureInvalidPatientData, Reason: err.Error()}
	}
	return patient, nil
}

// rank returns the ordered beds to try. A pre-selected bed skips scoring
// unless it is vacant, in which case it is scored for the explanation only.
func (c *Coordinator) rank(ctx context.Context, patient beds.Patient, bedID string) ([]scoring.CandidateScore, error) {
	var pool []beds.Bed
	if bedID != "" {
		var bed beds.Bed
		err := c.retry.Do(ctx, func(ctx context.Context, _ int) error {
			var err error
			bed, err = c.inventory.GetBed(ctx, bedID)
			return permanent(err)
		})
		if errors.Is(err, beds.ErrBedNotFound) {
			return nil, &Failure{Kind: FailureNoAvailableBed, Reason: fmt.Sprintf("bed %s does not exist", bedID)}
		}
		if err != nil {
			return nil, fmt.Errorf("load bed: %w", err)
		}
		if bed.Status != beds.StatusVacant {
			return []scoring.CandidateScore{{BedID: bed.ID, PatientID: patient.PatientID, Ward: bed.Ward, DailyRateCents: bed.DailyRateCents}}, nil
		}
		pool = []beds.Bed{bed}
	} else {
		err := c.retry.Do(ctx, func(ctx context.Context, _ int) error {
			var err error
			pool, err = c.inventory.VacantBeds(ctx, "")
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list vacant beds: %w", err)
		}
	}

	roster, err := c.inventory.Roster(ctx)
	if err != nil {
		c.logger.Warn("roster unavailable, scoring specialization as neutral", "error", err)
		roster = nil
	}
	result, err := c.engine.Rank(patient.AdmissionRequest, pool, roster)
	if err != nil {
		return nil, &Failure{Kind: FailureInvalidPatientData, Reason: err.Error()}
	}
	if len(result.Candidates) == 0 {
		return nil, &Failure{Kind: FailureNoAvailableBed, Reason: result.Reason}
	}
	return result.Candidates, nil
}

// reserve swaps the first candidate it can from Vacant to Reserved, moving
// down the ranked list when another workflow wins the race.
func (c *Coordinator) reserve(ctx context.Context, inst *instance, candidates []scoring.CandidateScore, preselected bool) (scoring.CandidateScore, error) {
	for i, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return scoring.CandidateScore{}, err
		}
		if i > 0 {
			c.mu.Lock()
			inst.wf.RetryCount++
			c.mu.Unlock()
		}

		var ok bool
		err := c.retry.Do(ctx, func(ctx context.Context, _ int) error {
			var err error
			ok, err = c.inventory.CompareAndSwapHeld(ctx, cand.BedID, beds.StatusVacant, beds.StatusReserved, inst.wf.ID)
			return permanent(err)
		})
		if errors.Is(err, beds.ErrBedNotFound) {
			c.addAttempt(inst, cand.BedID, "bed no longer exists")
			continue
		}
		if err != nil {
			if !errors.Is(err, beds.ErrInvalidTransition) && !errors.Is(err, beds.ErrMissingHolder) {
				c.suspectHeld(inst, cand.BedID)
			}
			return scoring.CandidateScore{}, fmt.Errorf("reserve bed %s: %w", cand.BedID, err)
		}
		if !ok {
			c.metrics.ObserveReservationConflict()
			c.addAttempt(inst, cand.BedID, "bed was no longer vacant")
			c.logger.Debug("reservation lost, trying next candidate", "workflow_id", inst.wf.ID, "bed_id", cand.BedID)
			continue
		}

		if err := c.markReserved(inst, cand); err != nil {
			c.releaseUnowned(cand.BedID, inst.wf.ID, inst.wf.PatientID)
			return scoring.CandidateScore{}, err
		}
		return cand, nil
	}

	kind := FailureNoAvailableBed
	if preselected {
		kind = FailureReservationConflict
	}
	return scoring.CandidateScore{}, &Failure{
		Kind:   kind,
		Reason: fmt.Sprintf("all %d candidate bed(s) were taken before they could be reserved", len(candidates)),
	}
}

// commit upserts the admitted patient, appends history and moves the bed
// from Reserved to Occupied, in that order.
func (c *Coordinator) commit(ctx context.Context, inst *instance, patient beds.Patient, bed scoring.CandidateScore) error {
	if err := c.markAdmitting(inst, patient); err != nil {
		return err
	}

	now := c.now()
	admitted := patient
	admitted.Status = beds.PatientAdmitted
	admitted.BedID = bed.BedID
	admitted.AdmittedAt = &now
	admitted.UpdatedAt = now
	err := c.retry.Do(ctx, func(ctx context.Context, _ int) error {
		_, err := c.inventory.UpsertPatient(ctx, admitted)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert patient: %w", err)
	}
	if err := c.checkLive(inst); err != nil {
		c.restorePatient(patient, inst.wf.ID)
		return err
	}

	entry := beds.HistoryEntry{
		BedID:     bed.BedID,
		PatientID: patient.PatientID,
		Status:    beds.StatusOccupied,
		Reason:    "admitted by workflow " + inst.wf.ID,
		Actor:     historyActor,
		At:        now,
	}
	err = c.retry.Do(ctx, func(ctx context.Context, _ int) error {
		return c.inventory.AppendOccupancyHistory(ctx, entry)
	})
	if err != nil {
		return fmt.Errorf("append occupancy history: %w", err)
	}

	if err := c.beginCommit(inst); err != nil {
		return err
	}
	// Once the final swap starts, cancellation no longer applies.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	var ok bool
	err = c.retry.Do(commitCtx, func(ctx context.Context, _ int) error {
		var err error
		ok, err = c.inventory.CompareAndSwapHeld(ctx, bed.BedID, beds.StatusReserved, beds.StatusOccupied, inst.wf.ID)
		return permanent(err)
	})
	if err != nil && c.occupiedBy(commitCtx, bed.BedID, inst.wf.ID) {
		c.logger.Warn("occupy swap reported an error but applied", "workflow_id", inst.wf.ID, "bed_id", bed.BedID, "error", err)
		err, ok = nil, true
	}
	if err == nil && !ok {
		err = fmt.Errorf("bed %s was no longer reserved", bed.BedID)
	}
	if err != nil {
		c.mu.Lock()
		inst.committing = false
		c.mu.Unlock()
		return fmt.Errorf("occupy bed: %w", err)
	}

	c.mu.Lock()
	inst.held = false
	inst.original = nil
	c.mu.Unlock()
	return nil
}

// abort releases whatever the workflow holds and settles it. A workflow that
// released a reservation, or was cancelled or timed out, ends RolledBack;
// anything else ends Failed.
func (c *Coordinator) abort(ctx context.Context, inst *instance, err error) {
	f := classify(ctx, err)
	hadBed, releaseErr := c.release(inst, string(f.Kind))

	state := StateFailed
	reason := f.Reason
	switch {
	case releaseErr != nil:
		reason = fmt.Sprintf("%s; releasing the reserved bed failed: %v", f.Reason, releaseErr)
	case hadBed, f.Kind == FailureCancelled, f.Kind == FailureTimeout:
		state = StateRolledBack
	}
	if snap, ok := c.settle(inst, state, f, reason); ok {
		c.emit(snap)
	}
}

// classify maps err to a failure, preferring the run context's cause.
func classify(ctx context.Context, err error) *Failure {
	if ctx.Err() != nil {
		if errors.Is(context.Cause(ctx), errCancelledByCaller) {
			return &Failure{Kind: FailureCancelled, Reason: "cancelled by caller"}
		}
		return &Failure{Kind: FailureTimeout, Reason: "workflow deadline exceeded"}
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: FailurePersistence, Reason: err.Error()}
}

// release undoes the patient upsert and returns a held bed to Vacant. The
// held flag is claimed under the lock so only one caller ever swaps the bed.
func (c *Coordinator) release(inst *instance, reason string) (bool, error) {
	c.mu.Lock()
	held, original := inst.held, inst.original
	inst.held, inst.original = false, nil
	id, bedID, patientID := inst.wf.ID, inst.bedID, inst.wf.PatientID
	c.mu.Unlock()

	if original != nil {
		c.restorePatient(*original, id)
	}
	if !held {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	var ok bool
	err := c.retry.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		ok, err = c.inventory.CompareAndSwapHeld(ctx, bedID, beds.StatusReserved, beds.StatusVacant, id)
		return permanent(err)
	})
	if err != nil {
		c.mu.Lock()
		inst.held = true
		c.mu.Unlock()
		return true, err
	}
	if !ok {
		c.logger.Debug("no reservation held to release", "workflow_id", id, "bed_id", bedID)
		return false, nil
	}
	c.appendRollbackHistory(ctx, bedID, patientID, "rollback: "+reason)
	c.logger.Info("released reserved bed", "workflow_id", id, "bed_id", bedID, "reason", reason)
	return true, nil
}

// releaseUnowned returns a bed this goroutine reserved after the reaper had
// already settled the workflow.
func (c *Coordinator) releaseUnowned(bedID, workflowID, patientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	err := c.retry.Do(ctx, func(ctx context.Context, _ int) error {
		_, err := c.inventory.CompareAndSwapHeld(ctx, bedID, beds.StatusReserved, beds.StatusVacant, workflowID)
		return permanent(err)
	})
	if err != nil {
		c.logger.Error("failed to release bed reserved after reclaim", "bed_id", bedID, "error", err)
		return
	}
	c.appendRollbackHistory(ctx, bedID, patientID, "rollback: reclaimed")
}

// occupiedBy reports whether the bed is Occupied under workflowID.
func (c *Coordinator) occupiedBy(ctx context.Context, bedID, workflowID string) bool {
	bed, err := c.inventory.GetBed(ctx, bedID)
	if err != nil {
		return false
	}
	return bed.Status == beds.StatusOccupied && bed.HeldBy == workflowID
}

func (c *Coordinator) restorePatient(original beds.Patient, workflowID string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	original.UpdatedAt = c.now()
	err := c.retry.Do(ctx, func(ctx context.Context, _ int) error {
		_, err := c.inventory.UpsertPatient(ctx, original)
		return err
	})
	if err != nil {
		c.logger.Error("failed to restore patient record", "workflow_id", workflowID, "patient_id", original.PatientID, "error", err)
	}
}

func (c *Coordinator) appendRollbackHistory(ctx context.Context, bedID, patientID, reason string) {
	entry := beds.HistoryEntry{BedID: bedID, PatientID: patientID, Status: beds.StatusVacant, Reason: reason, Actor: historyActor, At: c.now()}
	if err := c.inventory.AppendOccupancyHistory(ctx, entry); err != nil {
		c.logger.Warn("failed to record rollback history", "bed_id", bedID, "error", err)
	}
}

func (c *Coordinator) advance(inst *instance, state State, note string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst.wf.State.Terminal() {
		return errReclaimed
	}
	c.stepLocked(inst, state, note)
	return nil
}

func (c *Coordinator) markReserved(inst *instance, cand scoring.CandidateScore) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst.wf.State.Terminal() {
		return errReclaimed
	}
	inst.held = true
	inst.bedID = cand.BedID
	inst.wf.BedID = cand.BedID
	inst.wf.Ward = cand.Ward
	c.stepLocked(inst, StateReserved, "reserved bed "+cand.BedID)
	return nil
}

// suspectHeld records that an errored reservation attempt on bedID may have
// applied, so rollback and the reaper try to release it.
func (c *Coordinator) suspectHeld(inst *instance, bedID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst.held = true
	inst.bedID = bedID
}

func (c *Coordinator) markAdmitting(inst *instance, patient beds.Patient) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst.wf.State.Terminal() {
		return errReclaimed
	}
	original := patient
	inst.original = &original
	return nil
}

func (c *Coordinator) checkLive(inst *instance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst.wf.State.Terminal() {
		return errReclaimed
	}
	return nil
}

func (c *Coordinator) beginCommit(inst *instance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst.wf.State.Terminal() {
		return errReclaimed
	}
	inst.committing = true
	return nil
}

func (c *Coordinator) addAttempt(inst *instance, bedID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst.wf.Attempts = append(inst.wf.Attempts, Attempt{BedID: bedID, Reason: reason})
}

func (c *Coordinator) stepLocked(inst *instance, state State, note string) {
	now := c.now()
	inst.wf.State = state
	inst.wf.UpdatedAt = now
	inst.wf.Reason = note
	inst.wf.Steps = append(inst.wf.Steps, Step{State: state, At: now, Note: note})
}

// settle moves the workflow to a terminal state. Only the first caller wins.
func (c *Coordinator) settle(inst *instance, state State, f *Failure, reason string) (Workflow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst.wf.State.Terminal() {
		return Workflow{}, false
	}
	inst.wf.Failure = f
	inst.committing = false
	c.stepLocked(inst, state, reason)
	return inst.wf.clone(), true
}

// emit publishes the outcome of a settled workflow.
func (c *Coordinator) emit(wf Workflow) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	kind := ""
	if wf.Failure != nil {
		kind = string(wf.Failure.Kind)
	}
	c.metrics.ObserveWorkflow(string(wf.State), kind, wf.UpdatedAt.Sub(wf.CreatedAt).Seconds())

	var evt events.CanonicalEvent
	if wf.State == StateCommitted {
		evt = events.AssignmentCommittedV1{
			WorkflowID:  wf.ID,
			PatientID:   wf.PatientID,
			BedID:       wf.BedID,
			Ward:        wf.Ward,
			RetryCount:  wf.RetryCount,
			Attempts:    wf.eventAttempts(),
			CommittedAt: wf.UpdatedAt,
		}
		c.logger.Info("assignment committed", "workflow_id", wf.ID, "patient_id", wf.PatientID, "bed_id", wf.BedID, "retries", wf.RetryCount)
		if c.sweeper != nil {
			c.sweeper.TriggerAsync()
		}
	} else {
		evt = events.AssignmentFailedV1{
			WorkflowID: wf.ID,
			PatientID:  wf.PatientID,
			State:      string(wf.State),
			Kind:       kind,
			Reason:     wf.Reason,
			Attempts:   wf.eventAttempts(),
			FailedAt:   wf.UpdatedAt,
		}
		c.logger.Warn("assignment did not commit", "workflow_id", wf.ID, "patient_id", wf.PatientID, "state", wf.State, "kind", kind, "reason", wf.Reason)
	}
	if err := c.publisher.Publish(ctx, "workflow:"+wf.ID, evt); err != nil {
		c.logger.Warn("workflow event publish failed", "workflow_id", wf.ID, "error", err)
	}
	if c.ledger != nil {
		if err := c.ledger.RecordOutcome(ctx, wf); err != nil {
			c.logger.Warn("workflow ledger write failed", "workflow_id", wf.ID, "error", err)
		}
	}
}

func (c *Coordinator) lookup(id string) (*instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return inst, nil
}

func (c *Coordinator) snapshot(inst *instance) Workflow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return inst.wf.clone()
}
