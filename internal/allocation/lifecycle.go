package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/hospital-bed-platform/internal/beds"
	"github.com/wolfman30/hospital-bed-platform/internal/discharge"
	"github.com/wolfman30/hospital-bed-platform/internal/workflow"
)

const defaultBedActor = "bed-management"

// ErrBedStatusConflict is returned when a bed is not in the status an
// operation moves it from.
var ErrBedStatusConflict = errors.New("allocation: bed is not in the expected status")

// WithSweepTrigger requests an alert sweep after every bed status change.
func (s *Service) WithSweepTrigger(t workflow.SweepTrigger) *Service {
	s.sweeper = t
	return s
}

// DischargePatient ends an admission and sends the bed to cleaning. A call
// repeated after the bed already moved completes the patient update.
func (s *Service) DischargePatient(ctx context.Context, patientID, by string) (beds.Patient, error) {
	ctx, span := allocationTracer.Start(ctx, "allocation.discharge")
	defer span.End()
	span.SetAttributes(attribute.String("hospital.patient_id", patientID))

	patient, err := s.inventory.GetPatient(ctx, strings.TrimSpace(patientID))
	if err != nil {
		return beds.Patient{}, fmt.Errorf("allocation: load patient: %w", err)
	}
	if patient.Status != beds.PatientAdmitted || patient.BedID == "" {
		return patient, fmt.Errorf("allocation: discharge %s: %w", patient.PatientID, discharge.ErrNotAdmitted)
	}

	by = actorOrDefault(by)
	if _, err := s.transition(ctx, patient.BedID, beds.StatusOccupied, beds.StatusCleaning, patient.PatientID, "patient discharged", by); err != nil {
		if !errors.Is(err, ErrBedStatusConflict) {
			span.RecordError(err)
			return patient, err
		}
		bed, getErr := s.inventory.GetBed(ctx, patient.BedID)
		if getErr != nil || bed.Status != beds.StatusCleaning {
			return patient, err
		}
	}

	now := s.now()
	patient.Status = beds.PatientDischarged
	patient.DischargedAt = &now
	patient.UpdatedAt = now
	if _, err := s.inventory.UpsertPatient(ctx, patient); err != nil {
		span.RecordError(err)
		return patient, fmt.Errorf("allocation: record discharge: %w", err)
	}
	s.logger.Info("patient discharged", "patient_id", patient.PatientID, "bed_id", patient.BedID, "by", by)
	return patient, nil
}

// CompleteCleaning returns a cleaned bed to the vacant pool.
func (s *Service) CompleteCleaning(ctx context.Context, bedID, by string) (beds.Bed, error) {
	return s.transition(ctx, bedID, beds.StatusCleaning, beds.StatusVacant, "", "cleaning completed", actorOrDefault(by))
}

// StartMaintenance takes a vacant bed out of service.
func (s *Service) StartMaintenance(ctx context.Context, bedID, by, reason string) (beds.Bed, error) {
	note := "maintenance started"
	if reason = strings.TrimSpace(reason); reason != "" {
		note += ": " + reason
	}
	return s.transition(ctx, bedID, beds.StatusVacant, beds.StatusMaintenance, "", note, actorOrDefault(by))
}

// EndMaintenance returns a bed from maintenance to the vacant pool.
func (s *Service) EndMaintenance(ctx context.Context, bedID, by string) (beds.Bed, error) {
	return s.transition(ctx, bedID, beds.StatusMaintenance, beds.StatusVacant, "", "maintenance finished", actorOrDefault(by))
}

// transition swaps one bed's status, records the change and asks for a sweep.
func (s *Service) transition(ctx context.Context, bedID string, from, to beds.Status, patientID, reason, by string) (beds.Bed, error) {
	bedID = strings.TrimSpace(bedID)
	ok, err := s.inventory.CompareAndSwapStatus(ctx, bedID, from, to)
	if err != nil {
		return beds.Bed{}, fmt.Errorf("allocation: %s bed %s: %w", to, bedID, err)
	}
	if !ok {
		current, getErr := s.inventory.GetBed(ctx, bedID)
		if getErr != nil {
			return beds.Bed{}, fmt.Errorf("allocation: load bed: %w", getErr)
		}
		return current, fmt.Errorf("%w: bed %s is %s, not %s", ErrBedStatusConflict, bedID, current.Status, from)
	}

	entry := beds.HistoryEntry{BedID: bedID, PatientID: patientID, Status: to, Reason: reason, Actor: by, At: s.now()}
	if err := s.inventory.AppendOccupancyHistory(ctx, entry); err != nil {
		s.logger.Warn("failed to record bed history", "bed_id", bedID, "status", to, "error", err)
	}
	if s.sweeper != nil {
		s.sweeper.TriggerAsync()
	}
	s.logger.Info("bed status changed", "bed_id", bedID, "from", from, "to", to, "by", by)

	bed, err := s.inventory.GetBed(ctx, bedID)
	if err != nil {
		return beds.Bed{}, fmt.Errorf("allocation: load bed: %w", err)
	}
	return bed, nil
}

func actorOrDefault(by string) string {
	if by = strings.TrimSpace(by); by != "" {
		return by
	}
	return defaultBedActor
}
