package discharge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/hospital-bed-platform/internal/beds"
)

func TestEstimateFixtures(t *testing.T) {
	tests := []struct {
		name        string
		days        int
		condition   string
		base        float64
		factor      float64
		probability float64
		readiness   Readiness
	}{
		{"six days stable", 6, "stable", 0.70, 1.3, 0.91, ReadinessHigh},
		{"five days no keyword", 5, "pneumonia", 0.45, 1.0, 0.45, ReadinessMedium},
		{"two days critical", 2, "Critical sepsis", 0.15, 0.7, 0.105, ReadinessLow},
		{"ten days recovering", 10, "recovering well", 0.85, 1.3, 1.0, ReadinessHigh},
		{"seven days severe", 7, "severe burns", 0.70, 0.7, 0.49, ReadinessMedium},
		{"negative stay", -3, "", 0.15, 1.0, 0.15, ReadinessLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := EstimateDefault(tt.days, tt.condition)
			assert.InDelta(t, tt.base, est.BaseProbability, 1e-9)
			assert.InDelta(t, tt.factor, est.ConditionFactor, 1e-9)
			assert.InDelta(t, tt.probability, est.Probability, 1e-9)
			assert.Equal(t, tt.readiness, est.Readiness)
			assert.NotEmpty(t, est.RecommendedAction)
		})
	}
}

func TestEstimateExtendedStayNote(t *testing.T) {
	est := EstimateDefault(8, "")
	assert.Contains(t, est.Recommendations, "Review case for extended stay justification")
	assert.Equal(t, "high", est.Confidence)

	est = EstimateDefault(4, "")
	assert.NotContains(t, est.Recommendations, "Review case for extended stay justification")
	assert.Equal(t, "medium", est.Confidence)
}

func TestEstimateReducingKeywordWins(t *testing.T) {
	est := EstimateDefault(6, "stable but severe anemia")
	assert.InDelta(t, 0.7, est.ConditionFactor, 1e-9)
}

func TestServiceEstimateForPatient(t *testing.T) {
	admitted := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	inv := beds.NewMemoryInventory(nil, nil)
	ctx := context.Background()
	_, err := inv.UpsertPatient(ctx, beds.Patient{
		AdmissionRequest: beds.AdmissionRequest{PatientID: "P1", Condition: "stable"},
		Status:           beds.PatientAdmitted,
		AdmittedAt:       &admitted,
	})
	require.NoError(t, err)
	_, err = inv.UpsertPatient(ctx, beds.Patient{
		AdmissionRequest: beds.AdmissionRequest{PatientID: "P2"},
		Status:           beds.PatientPending,
	})
	require.NoError(t, err)

	svc := NewService(inv, Model{}, nil).WithClock(func() time.Time {
		return admitted.Add(6*24*time.Hour + 5*time.Hour)
	})

	est, err := svc.EstimateForPatient(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "P1", est.PatientID)
	assert.Equal(t, 6, est.DaysAdmitted)
	assert.InDelta(t, 0.91, est.Probability, 1e-9)
	assert.Equal(t, ReadinessHigh, est.Readiness)

	_, err = svc.EstimateForPatient(ctx, "P2")
	assert.ErrorIs(t, err, ErrNotAdmitted)

	_, err = svc.EstimateForPatient(ctx, "missing")
	assert.ErrorIs(t, err, beds.ErrPatientNotFound)

	_, err = svc.EstimateForPatient(ctx, "")
	assert.ErrorIs(t, err, beds.ErrMissingPatientID)
}
