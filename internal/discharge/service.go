package discharge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/hospital-bed-platform/internal/beds"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

// ErrNotAdmitted is returned for patients without an admission timestamp.
var ErrNotAdmitted = errors.New("discharge: patient is not admitted")

// Service resolves the length of stay for a patient and runs the model.
type Service struct {
	patients beds.PatientStore
	model    Model
	now      func() time.Time
	logger   *logging.Logger
}

// NewService creates a discharge service over the patient store.
func NewService(patients beds.PatientStore, model Model, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if len(model.Buckets) == 0 {
		model = DefaultModel()
	}
	return &Service{
		patients: patients,
		model:    model,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// WithClock overrides the clock used to count days admitted.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// EstimateForPatient estimates discharge readiness for an admitted patient.
func (s *Service) EstimateForPatient(ctx context.Context, patientID string) (Estimate, error) {
	if patientID == "" {
		return Estimate{}, beds.ErrMissingPatientID
	}
	patient, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return Estimate{}, fmt.Errorf("discharge: load patient: %w", err)
	}
	if patient.Status != beds.PatientAdmitted || patient.AdmittedAt == nil {
		return Estimate{}, ErrNotAdmitted
	}

	days := int(s.now().Sub(*patient.AdmittedAt) / (24 * time.Hour))
	est := s.model.Estimate(days, patient.Condition)
	est.PatientID = patientID

	s.logger.Debug("discharge estimate computed",
		"patient_id", patientID,
		"days_admitted", est.DaysAdmitted,
		"probability", est.Probability,
		"readiness", est.Readiness,
	)
	return est, nil
}
