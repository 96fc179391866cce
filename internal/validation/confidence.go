package validation

import (
	"math"
	"regexp"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
)

// Confidence weights
const (
	weightCalculations   = 30
	weightJustifications = 20
	weightPerCitation    = 5
	maxCitationPoints    = 20
	weightCompleteness   = 25
	bonusRCD             = 5
)

var citationPattern = regexp.MustCompile(`\b\d{3}(?:\.\d+)+\b`)

// ConfidenceScore is advisory. It is derived from a design and never stored.
type ConfidenceScore struct {
	CircuitIndex   int     `json:"circuit_index"`
	Overall        int     `json:"overall"`
	Calculations   float64 `json:"calculations"`
	Justifications float64 `json:"justifications"`
	Citations      float64 `json:"citations"`
	Completeness   float64 `json:"completeness"`
	Compliance     float64 `json:"compliance"`
}

// Confidence scores d from the evidence it carries
func Confidence(d models.CircuitDesign) ConfidenceScore {
	s := ConfidenceScore{CircuitIndex: d.Index}

	if d.Calculations != nil {
		s.Calculations = weightCalculations
	}

	text := d.Justifications.Text()
	if text != "" {
		s.Justifications = weightJustifications
	}

	s.Citations = math.Min(float64(len(Citations(text))*weightPerCitation), maxCitationPoints)

	present, total := completeness(d)
	s.Completeness = weightCompleteness * float64(present) / float64(total)

	if hasRCD(d) {
		s.Compliance = bonusRCD
	}

	sum := s.Calculations + s.Justifications + s.Citations + s.Completeness + s.Compliance
	s.Overall = int(math.Round(math.Max(0, math.Min(100, sum))))
	return s
}

// Citations returns the distinct regulation numbers found in text, in order
func Citations(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range citationPattern.FindAllString(text, -1) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func completeness(d models.CircuitDesign) (present, total int) {
	checks := []bool{
		d.Name != "",
		d.LoadPowerW > 0,
		d.CableLengthM > 0,
		d.CableSizeMM2 > 0,
		d.CPCSizeMM2 > 0,
		d.CableType != "",
		d.Protection != nil && d.Protection.RatingA > 0,
		d.Calculations != nil,
	}
	for _, ok := range checks {
		if ok {
			present++
		}
	}
	return present, len(checks)
}
