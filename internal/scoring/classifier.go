package scoring

import (
	"strings"

	"github.com/wolfman30/hospital-bed-platform/internal/beds"
)

// Classification is what a Classifier derives from a condition description.
type Classification struct {
	// PrimaryWards earn full condition credit.
	PrimaryWards []string
	// SecondaryWards are compatible wards that earn partial credit.
	SecondaryWards []string
	// Specialty is the specialist type the condition calls for, if any.
	Specialty string
	// Known is false when nothing in the condition was recognised.
	Known bool
}

// Classifier maps free-text conditions to wards and specialties.
type Classifier interface {
	Classify(condition string, severity beds.Severity) Classification
}

// KeywordRule maps one condition keyword to the wards and specialty it implies.
type KeywordRule struct {
	Keyword   string
	Wards     []string
	Specialty string
}

// DefaultKeywordRules is the stock condition table. Order matters: the first
// rule whose keyword appears in the condition owns the primary wards.
var DefaultKeywordRules = []KeywordRule{
	{Keyword: "cardiac", Wards: []string{"ICU", "Cardiac"}, Specialty: "cardiology"},
	{Keyword: "respiratory", Wards: []string{"ICU", "Pulmonary"}, Specialty: "pulmonology"},
	{Keyword: "neurological", Wards: []string{"ICU", "Neurology"}, Specialty: "neurology"},
	{Keyword: "surgical", Wards: []string{"General", "Surgical"}, Specialty: "surgery"},
	{Keyword: "pediatric", Wards: []string{"Pediatric"}, Specialty: "pediatrics"},
	{Keyword: "maternity", Wards: []string{"Maternity"}, Specialty: "obstetrics"},
	{Keyword: "emergency", Wards: []string{"Emergency", "ICU"}, Specialty: "emergency_medicine"},
	{Keyword: "critical", Wards: []string{"ICU"}, Specialty: "critical_care"},
	{Keyword: "stable", Wards: []string{"General"}, Specialty: "internal_medicine"},
	{Keyword: "recovery", Wards: []string{"General", "Recovery"}, Specialty: "internal_medicine"},
}

// KeywordClassifier matches condition text against an ordered keyword table
// by case-insensitive substring.
type KeywordClassifier struct {
	rules []KeywordRule
}

// NewKeywordClassifier builds a classifier over rules, falling back to
// DefaultKeywordRules when rules is empty.
func NewKeywordClassifier(rules []KeywordRule) *KeywordClassifier {
	if len(rules) == 0 {
		rules = DefaultKeywordRules
	}
	return &KeywordClassifier{rules: rules}
}

func (k *KeywordClassifier) Classify(condition string, severity beds.Severity) Classification {
	text := strings.ToLower(condition)
	var out Classification
	seen := map[string]bool{}
	for _, rule := range k.rules {
		if rule.Keyword == "" || !strings.Contains(text, strings.ToLower(rule.Keyword)) {
			continue
		}
		if !out.Known {
			out.Known = true
			out.Specialty = rule.Specialty
			for _, w := range rule.Wards {
				out.PrimaryWards = append(out.PrimaryWards, w)
				seen[strings.ToLower(w)] = true
			}
			continue
		}
		for _, w := range rule.Wards {
			if !seen[strings.ToLower(w)] {
				out.SecondaryWards = append(out.SecondaryWards, w)
				seen[strings.ToLower(w)] = true
			}
		}
	}
	// Critical severity makes intensive care at least compatible with a
	// recognised condition. Unrecognised conditions score every ward neutral.
	if out.Known && severity == beds.SeverityCritical && !seen["icu"] {
		out.SecondaryWards = append(out.SecondaryWards, "ICU")
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
