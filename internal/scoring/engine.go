// Package scoring ranks candidate beds for a patient using a weighted sum of
// five sub-scores. Scoring is pure: it reads its inputs and returns a result.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wolfman30/hospital-bed-platform/internal/beds"
)

var (
	// ErrInvalidInput is returned for a request the engine cannot score.
	ErrInvalidInput = errors.New("scoring: invalid input")

	// ErrNoCandidate is available to callers that treat an empty result as an error.
	ErrNoCandidate = errors.New("scoring: no candidate bed")
)

// NoCandidateReason is the Result reason when nothing could be ranked.
const NoCandidateReason = "no vacant beds in acceptable wards"

const (
	secondaryWardCredit = 0.5
	neutralScore        = 0.5
	isolationMismatch   = 0.5
	tieEpsilon          = 1e-9
)

// Weights are the multipliers for each sub-score. The aggregate is the
// weighted sum divided by the weight total, so weights that do not sum to 1
// act as relative proportions. DefaultWeights sum to 1 and divide out.
type Weights struct {
	Condition      float64
	Specialization float64
	Equipment      float64
	Infection      float64
	Preference     float64
}

// DefaultWeights are the stock multipliers.
var DefaultWeights = Weights{Condition: 0.35, Specialization: 0.25, Equipment: 0.20, Infection: 0.15, Preference: 0.05}

func (w Weights) sum() float64 {
	return w.Condition + w.Specialization + w.Equipment + w.Infection + w.Preference
}

// Config tunes the engine.
type Config struct {
	Weights          Weights
	MaxAlternatives  int
	NotableThreshold float64
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{Weights: DefaultWeights, MaxAlternatives: 3, NotableThreshold: 0.8}
}

// SubScores holds the five per-criterion scores, each in [0,1].
type SubScores struct {
	Condition      float64 `json:"condition"`
	Specialization float64 `json:"specialization"`
	Equipment      float64 `json:"equipment"`
	Infection      float64 `json:"infection_control"`
	Preference     float64 `json:"preference"`
}

// CandidateScore is the scored match between one patient and one bed.
type CandidateScore struct {
	BedID          string    `json:"bed_id"`
	PatientID      string    `json:"patient_id"`
	Ward           string    `json:"ward"`
	Scores         SubScores `json:"scores"`
	Aggregate      float64   `json:"aggregate"`
	Confidence     float64   `json:"confidence"`
	DailyRateCents int64     `json:"daily_rate_cents"`
	Reasons        []string  `json:"reasons"`
}

// Result is a ranked recommendation. Candidates is sorted best first and
// holds the best bed plus at most MaxAlternatives alternatives.
type Result struct {
	PatientID      string           `json:"patient_id"`
	Candidates     []CandidateScore `json:"candidates"`
	Classification Classification   `json:"classification"`
	Reason         string           `json:"reason"`
}

// Best returns the top candidate, if any.
func (r Result) Best() (CandidateScore, bool) {
	if len(r.Candidates) == 0 {
		return CandidateScore{}, false
	}
	return r.Candidates[0], true
}

// Alternatives returns the ranked candidates after the best one.
func (r Result) Alternatives() []CandidateScore {
	if len(r.Candidates) <= 1 {
		return nil
	}
	return r.Candidates[1:]
}

// Engine scores beds for admission requests.
type Engine struct {
	cfg        Config
	classifier Classifier
}

// NewEngine creates an engine. A nil classifier uses the default keyword table.
func NewEngine(cfg Config, classifier Classifier) *Engine {
	if cfg.Weights.sum() <= 0 {
		cfg.Weights = DefaultWeights
	}
	if cfg.MaxAlternatives < 0 {
		cfg.MaxAlternatives = 0
	}
	if cfg.NotableThreshold <= 0 {
		cfg.NotableThreshold = 0.8
	}
	if classifier == nil {
		classifier = NewKeywordClassifier(nil)
	}
	return &Engine{cfg: cfg, classifier: classifier}
}

// Rank scores every vacant candidate and returns them best first. Non-vacant
// beds are ignored. An empty result carries NoCandidateReason.
func (e *Engine) Rank(req beds.AdmissionRequest, candidates []beds.Bed, roster beds.Roster) (Result, error) {
	if strings.TrimSpace(req.PatientID) == "" {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, beds.ErrMissingPatientID)
	}
	if err := req.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	class := e.classifier.Classify(req.Condition, req.Severity)
	specialty := strings.TrimSpace(req.RequiredSpecialty)
	if specialty == "" {
		specialty = class.Specialty
	}

	scored := make([]CandidateScore, 0, len(candidates))
	for _, bed := range candidates {
		if bed.Status != beds.StatusVacant {
			continue
		}
		scored = append(scored, e.score(req, bed, class, specialty, roster))
	}

	result := Result{PatientID: req.PatientID, Classification: class}
	if len(scored) == 0 {
		result.Reason = NoCandidateReason
		return result, nil
	}

	sort.SliceStable(scored, func(i, j int) bool { return ranksBefore(scored[i], scored[j]) })

	limit := 1 + e.cfg.MaxAlternatives
	if len(scored) > limit {
		scored = scored[:limit]
	}
	result.Candidates = scored
	result.Reason = fmt.Sprintf("bed %s in %s ranked best with %.1f%% confidence", scored[0].BedID, scored[0].Ward, scored[0].Confidence)
	return result, nil
}

// ranksBefore orders by aggregate, then equipment score, then daily rate,
// then bed id.
func ranksBefore(a, b CandidateScore) bool {
	if math.Abs(a.Aggregate-b.Aggregate) > tieEpsilon {
		return a.Aggregate > b.Aggregate
	}
	if math.Abs(a.Scores.Equipment-b.Scores.Equipment) > tieEpsilon {
		return a.Scores.Equipment > b.Scores.Equipment
	}
	if a.DailyRateCents != b.DailyRateCents {
		return a.DailyRateCents < b.DailyRateCents
	}
	return a.BedID < b.BedID
}

func (e *Engine) score(req beds.AdmissionRequest, bed beds.Bed, class Classification, specialty string, roster beds.Roster) CandidateScore {
	s := SubScores{
		Condition:      conditionScore(bed, class),
		Specialization: specializationScore(bed, specialty, roster),
		Equipment:      equipmentScore(bed, req.RequiredEquipment),
		Infection:      infectionScore(bed, req.IsolationRequired),
		Preference:     preferenceScore(bed, req.PreferredWard),
	}

	w := e.cfg.Weights
	total := w.Condition*s.Condition +
		w.Specialization*s.Specialization +
		w.Equipment*s.Equipment +
		w.Infection*s.Infection +
		w.Preference*s.Preference
	aggregate := clip(total / w.sum())

	return CandidateScore{
		BedID:          bed.ID,
		PatientID:      req.PatientID,
		Ward:           bed.Ward,
		Scores:         s,
		Aggregate:      aggregate,
		Confidence:     math.Round(aggregate*1000) / 10,
		DailyRateCents: bed.DailyRateCents,
		Reasons:        e.reasons(bed, s, specialty, req),
	}
}

func (e *Engine) reasons(bed beds.Bed, s SubScores, specialty string, req beds.AdmissionRequest) []string {
	threshold := e.cfg.NotableThreshold
	var out []string
	if s.Condition > threshold {
		out = append(out, fmt.Sprintf("%s ward suits condition %q", bed.Ward, req.Condition))
	}
	if s.Specialization > threshold {
		out = append(out, fmt.Sprintf("%s specialists on duty in %s", specialty, bed.Ward))
	}
	if s.Equipment > threshold {
		if len(req.RequiredEquipment) == 0 {
			out = append(out, "no special equipment required")
		} else {
			out = append(out, "required equipment available")
		}
	}
	if s.Infection > threshold {
		if req.IsolationRequired {
			out = append(out, "isolation capable")
		} else {
			out = append(out, "no isolation required")
		}
	}
	if s.Preference > threshold {
		out = append(out, fmt.Sprintf("matches preferred ward %s", bed.Ward))
	}
	return out
}

func conditionScore(bed beds.Bed, class Classification) float64 {
	if !class.Known {
		return neutralScore
	}
	if containsFold(class.PrimaryWards, bed.Ward) {
		return 1.0
	}
	if containsFold(class.SecondaryWards, bed.Ward) {
		return secondaryWardCredit
	}
	return 0
}

func specializationScore(bed beds.Bed, specialty string, roster beds.Roster) float64 {
	if specialty == "" {
		return neutralScore
	}
	onDuty := roster.OnDuty(bed.Ward)
	if len(onDuty) == 0 {
		return neutralScore
	}
	matching := 0
	for _, s := range onDuty {
		if strings.EqualFold(strings.TrimSpace(s), specialty) {
			matching++
		}
	}
	return clip(float64(matching) / float64(len(onDuty)))
}

func equipmentScore(bed beds.Bed, required []string) float64 {
	if len(required) == 0 {
		return 1.0
	}
	have := 0
	for _, item := range required {
		if bed.HasEquipment(item) {
			have++
		}
	}
	return float64(have) / float64(len(required))
}

func infectionScore(bed beds.Bed, isolationRequired bool) float64 {
	if !isolationRequired || bed.IsolationCapable {
		return 1.0
	}
	return isolationMismatch
}

func preferenceScore(bed beds.Bed, preferred string) float64 {
	if preferred != "" && strings.EqualFold(strings.TrimSpace(preferred), bed.Ward) {
		return 1.0
	}
	return neutralScore
}

func clip(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
