package scoring

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/hospital-bed-platform/internal/beds"
)

func TestKeywordClassifierPrecedence(t *testing.T) {
	c := NewKeywordClassifier(nil)

	got := c.Classify("Cardiac Emergency", beds.SeverityCritical)
	assert.True(t, got.Known)
	assert.Equal(t, []string{"ICU", "Cardiac"}, got.PrimaryWards)
	assert.Equal(t, []string{"Emergency"}, got.SecondaryWards)
	assert.Equal(t, "cardiology", got.Specialty)

	got = c.Classify("post-surgical recovery", beds.SeverityStable)
	assert.Equal(t, []string{"General", "Surgical"}, got.PrimaryWards)
	assert.Equal(t, []string{"Recovery"}, got.SecondaryWards)

	got = c.Classify("fractured wrist", beds.SeverityCritical)
	assert.False(t, got.Known)
	assert.Empty(t, got.PrimaryWards)
	assert.Empty(t, got.SecondaryWards)
}

func TestCriticalSeverityMakesICUCompatible(t *testing.T) {
	c := NewKeywordClassifier(nil)
	icu := beds.Bed{ID: "ICU-01", Ward: "ICU"}
	peds := beds.Bed{ID: "PED-01", Ward: "Pediatric"}

	critical := c.Classify("post-surgical recovery", beds.SeverityCritical)
	assert.Equal(t, []string{"Recovery", "ICU"}, critical.SecondaryWards)
	assert.Equal(t, secondaryWardCredit, conditionScore(icu, critical))
	assert.Zero(t, conditionScore(peds, critical))

	stable := c.Classify("post-surgical recovery", beds.SeverityStable)
	assert.Zero(t, conditionScore(icu, stable))

	unknown := c.Classify("fractured wrist", beds.SeverityCritical)
	assert.Equal(t, neutralScore, conditionScore(icu, unknown))
	assert.Equal(t, neutralScore, conditionScore(peds, unknown))
}

func TestRankCardiacEmergencyPrefersEquippedICU(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	req := beds.AdmissionRequest{
		PatientID:         "P-100",
		Condition:         "cardiac emergency",
		Severity:          beds.SeverityCritical,
		PreferredWard:     "ICU",
		RequiredEquipment: []string{"cardiac_monitor", "ventilator"},
	}
	candidates := []beds.Bed{
		{ID: "GEN-01", Ward: "General", Status: beds.StatusVacant, DailyRateCents: 80000},
		{ID: "ICU-01", Ward: "ICU", Status: beds.StatusVacant, Equipment: []string{"cardiac_monitor", "ventilator", "defibrillator"}, IsolationCapable: true, DailyRateCents: 250000},
	}
	roster := beds.Roster{"ICU": {"cardiology", "critical_care"}, "General": {"internal_medicine"}}

	result, err := engine.Rank(req, candidates, roster)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)

	best, ok := result.Best()
	require.True(t, ok)
	assert.Equal(t, "ICU-01", best.BedID)
	assert.Greater(t, best.Aggregate, result.Candidates[1].Aggregate)
	assert.Equal(t, 1.0, best.Scores.Condition)
	assert.Equal(t, 0.5, best.Scores.Specialization)
	assert.Equal(t, 1.0, best.Scores.Equipment)
	assert.Equal(t, 1.0, best.Scores.Preference)
	assert.InDelta(t, best.Aggregate*100, best.Confidence, 0.05)
	assert.Contains(t, best.Reasons, "matches preferred ward ICU")
	assert.Len(t, result.Alternatives(), 1)
}

func TestRankUnknownConditionIsNeutral(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	result, err := engine.Rank(beds.AdmissionRequest{PatientID: "P1", Condition: "sprained ankle"},
		[]beds.Bed{{ID: "B1", Ward: "Orthopedics", Status: beds.StatusVacant}}, nil)
	require.NoError(t, err)
	best, _ := result.Best()
	assert.Equal(t, 0.5, best.Scores.Condition)
	assert.Equal(t, 0.5, best.Scores.Specialization)
}

func TestRankSubScores(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	req := beds.AdmissionRequest{
		PatientID:         "P1",
		Condition:         "respiratory failure",
		RequiredEquipment: []string{"ventilator", "oxygen"},
		RequiredSpecialty: "pulmonology",
		IsolationRequired: true,
	}
	bed := beds.Bed{ID: "PUL-01", Ward: "Pulmonary", Status: beds.StatusVacant, Equipment: []string{"oxygen"}}
	roster := beds.Roster{"Pulmonary": {"pulmonology", "pulmonology", "internal_medicine", "surgery"}}

	result, err := engine.Rank(req, []beds.Bed{bed}, roster)
	require.NoError(t, err)
	s := result.Candidates[0].Scores
	assert.Equal(t, 1.0, s.Condition)
	assert.Equal(t, 0.5, s.Specialization)
	assert.Equal(t, 0.5, s.Equipment)
	assert.Equal(t, 0.5, s.Infection)
	assert.Equal(t, 0.5, s.Preference)
	assert.InDelta(t, 0.35+0.125+0.10+0.075+0.025, result.Candidates[0].Aggregate, 1e-9)
}

func TestRankTieBreakOrder(t *testing.T) {
	engine := NewEngine(Config{Weights: DefaultWeights, MaxAlternatives: 10, NotableThreshold: 0.8}, nil)
	// Identical vacant beds tie on aggregate and equipment, so rate then id decide.
	req := beds.AdmissionRequest{PatientID: "P1", Condition: "stable"}
	candidates := []beds.Bed{
		{ID: "GEN-03", Ward: "General", Status: beds.StatusVacant, DailyRateCents: 90000},
		{ID: "GEN-02", Ward: "General", Status: beds.StatusVacant, DailyRateCents: 80000},
		{ID: "GEN-01", Ward: "General", Status: beds.StatusVacant, DailyRateCents: 80000},
		{ID: "GEN-00", Ward: "General", Status: beds.StatusOccupied, DailyRateCents: 10},
	}
	result, err := engine.Rank(req, candidates, nil)
	require.NoError(t, err)

	var ids []string
	for _, c := range result.Candidates {
		ids = append(ids, c.BedID)
	}
	assert.Equal(t, []string{"GEN-01", "GEN-02", "GEN-03"}, ids)
}

func TestRankEquipmentBreaksTieBeforeRate(t *testing.T) {
	// Only equipment differs and its weight is zero, so aggregates tie.
	cfg := Config{Weights: Weights{Condition: 1}, MaxAlternatives: 3}
	engine := NewEngine(cfg, nil)
	req := beds.AdmissionRequest{PatientID: "P1", Condition: "stable", RequiredEquipment: []string{"oxygen"}}
	candidates := []beds.Bed{
		{ID: "A", Ward: "General", Status: beds.StatusVacant, DailyRateCents: 1},
		{ID: "B", Ward: "General", Status: beds.StatusVacant, DailyRateCents: 99, Equipment: []string{"Oxygen"}},
	}
	result, err := engine.Rank(req, candidates, nil)
	require.NoError(t, err)
	assert.Equal(t, "B", result.Candidates[0].BedID)
	assert.Equal(t, result.Candidates[0].Aggregate, result.Candidates[1].Aggregate)
}

func TestRankNormalisesWeightTotal(t *testing.T) {
	req := beds.AdmissionRequest{PatientID: "P1", Condition: "cardiac arrest", Severity: beds.SeverityCritical, RequiredEquipment: []string{"ventilator"}}
	candidates := []beds.Bed{
		{ID: "ICU-01", Ward: "ICU", Status: beds.StatusVacant, Equipment: []string{"ventilator"}, IsolationCapable: true},
		{ID: "GEN-01", Ward: "General", Status: beds.StatusVacant},
	}
	doubled := DefaultWeights
	doubled.Condition *= 2
	doubled.Specialization *= 2
	doubled.Equipment *= 2
	doubled.Infection *= 2
	doubled.Preference *= 2

	base, err := NewEngine(DefaultConfig(), nil).Rank(req, candidates, nil)
	require.NoError(t, err)
	scaled, err := NewEngine(Config{Weights: doubled, MaxAlternatives: 3}, nil).Rank(req, candidates, nil)
	require.NoError(t, err)

	require.Len(t, scaled.Candidates, len(base.Candidates))
	for i := range base.Candidates {
		assert.Equal(t, base.Candidates[i].BedID, scaled.Candidates[i].BedID)
		assert.InDelta(t, base.Candidates[i].Aggregate, scaled.Candidates[i].Aggregate, 1e-9)
	}
}

func TestRankCapsAlternatives(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	var candidates []beds.Bed
	for i := 0; i < 8; i++ {
		candidates = append(candidates, beds.Bed{ID: fmt.Sprintf("GEN-%02d", i), Ward: "General", Status: beds.StatusVacant})
	}
	result, err := engine.Rank(beds.AdmissionRequest{PatientID: "P1"}, candidates, nil)
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 4)
	assert.Len(t, result.Alternatives(), 3)
}

func TestRankOutputIsSorted(t *testing.T) {
	engine := NewEngine(Config{Weights: DefaultWeights, MaxAlternatives: 100}, nil)
	rng := rand.New(rand.NewSource(7))
	wards := []string{"ICU", "General", "Cardiac", "Emergency", "Pediatric"}
	equipment := []string{"ventilator", "cardiac_monitor", "oxygen"}

	for round := 0; round < 25; round++ {
		var candidates []beds.Bed
		for i := 0; i < 12; i++ {
			b := beds.Bed{
				ID:               fmt.Sprintf("B-%02d", rng.Intn(50)),
				Ward:             wards[rng.Intn(len(wards))],
				Status:           beds.StatusVacant,
				IsolationCapable: rng.Intn(2) == 0,
				DailyRateCents:   int64(rng.Intn(3)) * 1000,
			}
			for _, e := range equipment {
				if rng.Intn(2) == 0 {
					b.Equipment = append(b.Equipment, e)
				}
			}
			candidates = append(candidates, b)
		}
		req := beds.AdmissionRequest{
			PatientID:         "P",
			Condition:         []string{"cardiac", "stable", "unknown", "pediatric emergency"}[rng.Intn(4)],
			RequiredEquipment: equipment[:rng.Intn(len(equipment)+1)],
			IsolationRequired: rng.Intn(2) == 0,
		}
		result, err := engine.Rank(req, candidates, beds.Roster{"ICU": {"cardiology"}})
		require.NoError(t, err)
		assert.True(t, sort.SliceIsSorted(result.Candidates, func(i, j int) bool {
			return ranksBefore(result.Candidates[i], result.Candidates[j])
		}), "round %d not sorted", round)
		for _, c := range result.Candidates {
			assert.GreaterOrEqual(t, c.Aggregate, 0.0)
			assert.LessOrEqual(t, c.Aggregate, 1.0)
		}
	}
}

func TestRankEmptyAndInvalid(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	_, err := engine.Rank(beds.AdmissionRequest{Condition: "cardiac"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, beds.ErrMissingPatientID)

	_, err = engine.Rank(beds.AdmissionRequest{PatientID: "P1", Severity: "meh"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	result, err := engine.Rank(beds.AdmissionRequest{PatientID: "P1"},
		[]beds.Bed{{ID: "B1", Ward: "ICU", Status: beds.StatusCleaning}}, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.Equal(t, NoCandidateReason, result.Reason)
	_, ok := result.Best()
	assert.False(t, ok)
}
