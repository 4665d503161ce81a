package beds

import "fmt"

// wardLayout describes one ward of the development seed.
type wardLayout struct {
	ward      string
	prefix    string
	bedType   string
	count     int
	rateCents int64
	equipment []string
	isolation bool
	private   bool
}

var seedLayout = []wardLayout{
	{ward: "ICU", prefix: "ICU", bedType: "icu", count: 6, rateCents: 250000, equipment: []string{"cardiac_monitor", "ventilator", "defibrillator", "infusion_pump"}, isolation: true, private: true},
	{ward: "Cardiac", prefix: "CAR", bedType: "telemetry", count: 4, rateCents: 160000, equipment: []string{"cardiac_monitor", "telemetry"}},
	{ward: "Emergency", prefix: "ER", bedType: "emergency", count: 4, rateCents: 120000, equipment: []string{"cardiac_monitor", "defibrillator"}},
	{ward: "General", prefix: "GEN", bedType: "standard", count: 10, rateCents: 80000, equipment: []string{"oxygen"}},
	{ward: "Pediatric", prefix: "PED", bedType: "pediatric", count: 4, rateCents: 90000, equipment: []string{"pediatric_monitor"}, isolation: true},
	{ward: "Maternity", prefix: "MAT", bedType: "maternity", count: 4, rateCents: 95000, equipment: []string{"fetal_monitor"}, private: true},
}

// DefaultSeed returns the bed layout and roster used when the service runs
// against the in-memory inventory.
func DefaultSeed() ([]Bed, Roster) {
	var out []Bed
	for _, layout := range seedLayout {
		for i := 1; i <= layout.count; i++ {
			out = append(out, Bed{
				ID:               fmt.Sprintf("%s-%02d", layout.prefix, i),
				Ward:             layout.ward,
				Type:             layout.bedType,
				Room:             fmt.Sprintf("%s%d", layout.prefix, 100+i),
				Status:           StatusVacant,
				Equipment:        append([]string(nil), layout.equipment...),
				IsolationCapable: layout.isolation,
				Private:          layout.private,
				DailyRateCents:   layout.rateCents,
			})
		}
	}
	roster := Roster{
		"ICU":       {"critical_care", "cardiology", "pulmonology", "neurology"},
		"Cardiac":   {"cardiology", "cardiology"},
		"Emergency": {"emergency_medicine"},
		"General":   {"internal_medicine", "surgery"},
		"Pediatric": {"pediatrics"},
		"Maternity": {"obstetrics"},
	}
	return out, roster
}
