package envelope

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Goal is the classified purpose of a request
type Goal string

const (
	GoalDesign       Goal = "design"
	GoalSafety       Goal = "safety"
	GoalInstallation Goal = "installation"
	GoalInspection   Goal = "inspection"
	GoalPricing      Goal = "pricing"
	GoalGeneral      Goal = "general"
)

// Complexity tiers
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

// QueryIntent is the classified intent of a request. Built once, read-only after.
type QueryIntent struct {
	PrimaryGoal        Goal     `json:"primary_goal"`
	CircuitType        string   `json:"circuit_type,omitempty"`
	PowerW             float64  `json:"power_w,omitempty"`
	Complexity         string   `json:"complexity"`
	NeedsCalculation   bool     `json:"needs_calculation"`
	NeedsRegulationRef bool     `json:"needs_regulation_ref"`
	Keywords           []string `json:"keywords,omitempty"`
}

// RAGPriority weights (0-100) how hard each knowledge domain is searched
type RAGPriority struct {
	Regulations  int `json:"regulations"`
	Design       int `json:"design"`
	HealthSafety int `json:"health_safety"`
	Installation int `json:"installation"`
	Inspection   int `json:"inspection"`
	Pricing      int `json:"pricing"`
}

var priorityTable = map[Goal]RAGPriority{
	GoalDesign:       {Regulations: 95, Design: 90, HealthSafety: 40, Installation: 60, Inspection: 30, Pricing: 10},
	GoalSafety:       {Regulations: 90, Design: 50, HealthSafety: 95, Installation: 50, Inspection: 60, Pricing: 5},
	GoalInstallation: {Regulations: 80, Design: 60, HealthSafety: 75, Installation: 95, Inspection: 40, Pricing: 20},
	GoalInspection:   {Regulations: 85, Design: 40, HealthSafety: 50, Installation: 50, Inspection: 95, Pricing: 5},
	GoalPricing:      {Regulations: 40, Design: 40, HealthSafety: 10, Installation: 50, Inspection: 10, Pricing: 95},
	GoalGeneral:      {Regulations: 70, Design: 60, HealthSafety: 50, Installation: 50, Inspection: 40, Pricing: 30},
}

// PriorityFor returns the fixed weights for goal. Unknown goals get the general row.
func PriorityFor(goal Goal) RAGPriority {
	if p, ok := priorityTable[goal]; ok {
		return p
	}
	return priorityTable[GoalGeneral]
}

// ValidateIntent rejects intents that cannot seed an envelope
func ValidateIntent(intent QueryIntent) error {
	if _, ok := priorityTable[intent.PrimaryGoal]; !ok {
		return fmt.Errorf("unknown primary goal %q", intent.PrimaryGoal)
	}
	switch intent.Complexity {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
	default:
		return fmt.Errorf("unknown complexity %q", intent.Complexity)
	}
	return nil
}

var goalKeywords = []struct {
	goal  Goal
	words []string
}{
	{GoalSafety, []string{"safety", "safe", "shock", "fire", "hazard", "isolation", "rcd trip"}},
	{GoalInspection, []string{"inspect", "inspection", "eicr", "test", "testing", "certificate"}},
	{GoalPricing, []string{"price", "pricing", "cost", "quote", "budget"}},
	{GoalInstallation, []string{"install", "installation", "containment", "routing", "fix"}},
	{GoalDesign, []string{"design", "size", "sizing", "circuit", "circuits", "cable", "breaker"}},
}

var (
	wordPattern  = regexp.MustCompile(`[a-z0-9][a-z0-9.\-]*`)
	powerPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*kw`)
	stopWords    = map[string]bool{
		"the": true, "and": true, "with": true, "for": true, "a": true, "an": true,
		"of": true, "to": true, "in": true, "on": true, "x": true, "is": true,
	}
)

// InferIntent classifies a request. fallback is used when no keyword matches;
// batch design requests pass GoalDesign.
func InferIntent(description string, circuitCount int, fallback Goal) QueryIntent {
	text := strings.ToLower(description)
	words := tokens(text)
	// keywords match whole words; phrases match runs of adjacent words
	padded := " " + strings.Join(words, " ") + " "

	goal := fallback
	best := 0
	for _, gk := range goalKeywords {
		hits := 0
		for _, w := range gk.words {
			if strings.Contains(padded, " "+w+" ") {
				hits++
			}
		}
		if hits > best {
			best, goal = hits, gk.goal
		}
	}
	if goal == "" {
		goal = GoalGeneral
	}

	intent := QueryIntent{
		PrimaryGoal:        goal,
		Complexity:         complexityFor(circuitCount),
		NeedsCalculation:   goal == GoalDesign || goal == GoalInstallation,
		NeedsRegulationRef: goal != GoalPricing,
		Keywords:           keywords(words),
	}
	if m := powerPattern.FindStringSubmatch(text); m != nil {
		var kw float64
		fmt.Sscanf(m[1], "%g", &kw)
		intent.PowerW = kw * 1000
	}
	return intent
}

func complexityFor(circuits int) string {
	switch {
	case circuits <= 3:
		return ComplexitySimple
	case circuits <= 10:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

func tokens(text string) []string {
	raw := wordPattern.FindAllString(text, -1)
	out := raw[:0]
	for _, w := range raw {
		if w = strings.TrimRight(w, ".-"); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func keywords(words []string) []string {
	seen := map[string]bool{}
	for _, w := range words {
		if len(w) < 3 || stopWords[w] {
			continue
		}
		seen[w] = true
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	if len(out) > 20 {
		out = out[:20]
	}
	return out
}
