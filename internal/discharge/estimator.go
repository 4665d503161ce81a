// Package discharge estimates how ready an admitted patient is to go home.
package discharge

import (
	"math"
	"strings"
)

// Readiness is the discharge probability tier.
type Readiness string

const (
	ReadinessHigh   Readiness = "High"
	ReadinessMedium Readiness = "Medium"
	ReadinessLow    Readiness = "Low"
)

// Bucket is one length-of-stay breakpoint: stays up to MaxDays get Base.
type Bucket struct {
	MaxDays    int
	Base       float64
	Confidence string
}

// Model holds the tunable estimator parameters.
type Model struct {
	// Buckets must be sorted by MaxDays; stays longer than the last one use Beyond.
	Buckets          []Bucket
	Beyond           Bucket
	ReducingKeywords []string
	ReducingFactor   float64
	RaisingKeywords  []string
	RaisingFactor    float64
	HighAt           float64
	MediumAt         float64
	ExtendedStayDays int
}

// DefaultModel returns the stock breakpoints and factors.
func DefaultModel() Model {
	return Model{
		Buckets: []Bucket{
			{MaxDays: 3, Base: 0.15, Confidence: "low"},
			{MaxDays: 5, Base: 0.45, Confidence: "medium"},
			{MaxDays: 7, Base: 0.70, Confidence: "high"},
		},
		Beyond:           Bucket{Base: 0.85, Confidence: "high"},
		ReducingKeywords: []string{"critical", "severe"},
		ReducingFactor:   0.7,
		RaisingKeywords:  []string{"stable", "recovering"},
		RaisingFactor:    1.3,
		HighAt:           0.70,
		MediumAt:         0.40,
		ExtendedStayDays: 7,
	}
}

// Estimate is the outcome for one patient.
type Estimate struct {
	PatientID         string    `json:"patient_id"`
	DaysAdmitted      int       `json:"days_admitted"`
	BaseProbability   float64   `json:"base_probability"`
	ConditionFactor   float64   `json:"condition_factor"`
	Probability       float64   `json:"probability"`
	Readiness         Readiness `json:"readiness"`
	RecommendedAction string    `json:"recommended_action"`
	Recommendations   []string  `json:"recommendations"`
	Confidence        string    `json:"confidence"`
}

// Estimate computes the discharge estimate for a stay of daysAdmitted days
// with the given condition text. Negative stays count as zero.
func (m Model) Estimate(daysAdmitted int, condition string) Estimate {
	if daysAdmitted < 0 {
		daysAdmitted = 0
	}
	bucket := m.Beyond
	for _, b := range m.Buckets {
		if daysAdmitted <= b.MaxDays {
			bucket = b
			break
		}
	}
	factor := m.conditionFactor(condition)
	probability := clip(round4(bucket.Base * factor))

	est := Estimate{
		DaysAdmitted:    daysAdmitted,
		BaseProbability: bucket.Base,
		ConditionFactor: factor,
		Probability:     probability,
		Confidence:      bucket.Confidence,
	}
	switch {
	case probability >= m.HighAt:
		est.Readiness = ReadinessHigh
		est.RecommendedAction = "Ready for discharge planning"
		est.Recommendations = []string{
			"Begin discharge planning process",
			"Coordinate with social services if needed",
			"Schedule follow-up appointments",
			"Prepare discharge medications",
		}
	case probability >= m.MediumAt:
		est.Readiness = ReadinessMedium
		est.RecommendedAction = "Monitor for discharge readiness"
		est.Recommendations = []string{
			"Monitor patient progress closely",
			"Assess discharge readiness daily",
			"Consider discharge planning preparation",
		}
	default:
		est.Readiness = ReadinessLow
		est.RecommendedAction = "Continued care needed"
		est.Recommendations = []string{
			"Continue current treatment plan",
			"Monitor for improvement",
			"Reassess in 24-48 hours",
		}
	}
	if m.ExtendedStayDays > 0 && daysAdmitted >= m.ExtendedStayDays {
		est.Recommendations = append(est.Recommendations, "Review case for extended stay justification")
	}
	return est
}

// EstimateDefault estimates with DefaultModel.
func EstimateDefault(daysAdmitted int, condition string) Estimate {
	return DefaultModel().Estimate(daysAdmitted, condition)
}

func (m Model) conditionFactor(condition string) float64 {
	text := strings.ToLower(condition)
	for _, kw := range m.ReducingKeywords {
		if strings.Contains(text, kw) {
			return m.ReducingFactor
		}
	}
	for _, kw := range m.RaisingKeywords {
		if strings.Contains(text, kw) {
			return m.RaisingFactor
		}
	}
	return 1.0
}

// round4 drops floating point noise such as 0.7*1.3 = 0.9099999999999999.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func clip(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
