package extraction

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
	"github.com/bizmatters/agent-builder/circuit-designer/internal/typeguard"
)

// loadPhrase matches the load descriptions the fallback recognises. Longer
// phrases come first so "socket rings" wins over "sockets".
const loadPhrase = `(` +
	`(?:garden|outdoor|outside)\s+(?:lighting|lights?|sockets?)` +
	`|socket\s*rings?|ring\s*(?:finals?|mains?)(?:\s*circuits?)?|rings?\s*circuits?` +
	`|(?:double\s+)?sockets?(?:\s*circuits?)?` +
	`|lighting(?:\s*circuits?)?|lights?(?:\s*circuits?)?` +
	`|(?:electric\s+)?showers?` +
	`|cookers?|ovens?|hobs?` +
	`|ev\s*chargers?|(?:electric\s+)?car\s*chargers?` +
	`|immersion(?:\s*heaters?)?` +
	`|heat\s*pumps?|(?:storage\s+|electric\s+)?heaters?` +
	`|smoke\s*alarms?` +
	`|motors?` +
	`)`

var (
	powerPattern   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*kw\s+` + loadPhrase + `\b`)
	countedPattern = regexp.MustCompile(`(?i)\b(\d+|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s+(?:x\s+)?` + loadPhrase + `\b`)
)

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

type match struct {
	start   int
	circuit models.ExtractedCircuit
}

// ExtractFallback pulls circuits out of description with fixed patterns:
// power-rated items ("9.5kW shower") and counted items ("4 socket rings").
// It does no I/O. Quantities are not expanded.
func ExtractFallback(description string) []models.ExtractedCircuit {
	if strings.TrimSpace(description) == "" {
		return nil
	}

	var matches []match
	var taken [][2]int

	for _, loc := range powerPattern.FindAllStringSubmatchIndex(description, -1) {
		kw, err := strconv.ParseFloat(description[loc[2]:loc[3]], 64)
		if err != nil || kw <= 0 {
			continue
		}
		c := circuitForPhrase(description[loc[4]:loc[5]])
		c.LoadPowerW = kw * 1000
		matches = append(matches, match{start: loc[0], circuit: c})
		taken = append(taken, [2]int{loc[0], loc[1]})
	}

	for _, loc := range countedPattern.FindAllStringSubmatchIndex(description, -1) {
		if overlaps(taken, loc[0], loc[1]) {
			continue
		}
		n, ok := quantityFrom(description[loc[2]:loc[3]])
		if !ok {
			continue
		}
		c := circuitForPhrase(description[loc[4]:loc[5]])
		c.Quantity = n
		matches = append(matches, match{start: loc[0], circuit: c})
		taken = append(taken, [2]int{loc[0], loc[1]})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	out := make([]models.ExtractedCircuit, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.circuit)
	}
	return out
}

// ExpandQuantities turns each circuit with quantity N > 1 into N numbered
// copies with quantity 1. N is capped at models.MaxQuantity. The original
// quantity is not kept.
func ExpandQuantities(circuits []models.ExtractedCircuit) []models.ExtractedCircuit {
	out := make([]models.ExtractedCircuit, 0, len(circuits))
	for _, c := range circuits {
		n := min(c.Quantity, models.MaxQuantity)
		if n <= 1 {
			c.Quantity = 1
			out = append(out, c)
			continue
		}
		for i := 1; i <= n; i++ {
			cp := c
			cp.Name = fmt.Sprintf("%s %d", c.Name, i)
			cp.Quantity = 1
			if c.CableLengthM != nil {
				l := *c.CableLengthM
				cp.CableLengthM = &l
			}
			out = append(out, cp)
		}
	}
	return out
}

func circuitForPhrase(phrase string) models.ExtractedCircuit {
	lower := strings.ToLower(strings.Join(strings.Fields(phrase), " "))
	loadType := typeguard.LoadTypeFrom(lower)

	location := models.LocationNone
	switch {
	case strings.HasPrefix(lower, "garden"), strings.HasPrefix(lower, "outdoor"), strings.HasPrefix(lower, "outside"):
		location = models.LocationOutdoor
	case loadType == models.LoadShower:
		location = models.LocationBathroom
	case loadType == models.LoadEVCharger:
		location = models.LocationOutdoor
	}

	d := typeguard.DefaultsFor(loadType)
	length := d.CableLengthM
	c := models.ExtractedCircuit{
		Name:            displayName(lower),
		LoadType:        loadType,
		Quantity:        1,
		CableLengthM:    &length,
		Phases:          models.PhaseSingle,
		SpecialLocation: location,
	}
	return typeguard.NormalizeCircuit(c)
}

// displayName title-cases a phrase and singularises its last word
func displayName(phrase string) string {
	words := strings.Fields(phrase)
	if n := len(words); n > 0 {
		last := words[n-1]
		if len(last) > 3 && strings.HasSuffix(last, "s") && !strings.HasSuffix(last, "ss") {
			words[n-1] = strings.TrimSuffix(last, "s")
		}
	}
	for i, w := range words {
		switch w {
		case "ev":
			words[i] = "EV"
		default:
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func quantityFrom(token string) (int, bool) {
	token = strings.ToLower(token)
	n, ok := numberWords[token]
	if !ok {
		v, err := strconv.Atoi(token)
		if err != nil {
			return 0, false
		}
		n = v
	}
	if n < 1 || n > models.MaxQuantity {
		return 0, false
	}
	return n, true
}

func overlaps(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}
