// Package validation checks designed circuits against the safety rules that
// cannot be trusted to the completion service's arithmetic.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

type Category string

const (
	CategorySafety     Category = "safety"
	CategoryCompliance Category = "compliance"
	CategoryData       Category = "data"
)

// Regulation references cited by findings
const (
	RegRCDSockets        = "411.3.3"
	RegRCDBathroom       = "701.411.3.3"
	RegRCDEVCharger      = "722.531.2.101"
	RegRCDTT             = "411.5.2"
	RegBathroomBonding   = "701.415.2"
	RegMechanicalDamage  = "522.8.10"
	RegRingFinal         = "433.1.204"
	RegBreakingCapacity  = "434.5.1"
	RegDesignInformation = "132.1"
)

// RingCableSizeMM2 is the conductor size for ring final circuits
const RingCableSizeMM2 = 2.5

// ValidationError is one finding against one circuit
type ValidationError struct {
	CircuitIndex int      `json:"circuit_index"`
	CircuitName  string   `json:"circuit_name"`
	Severity     Severity `json:"severity"`
	Category     Category `json:"category"`
	Message      string   `json:"message"`
	Regulation   string   `json:"regulation,omitempty"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
}

// Result groups findings by severity, each list in circuit order
type Result struct {
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
	Info     []ValidationError `json:"info"`
	Passed   bool              `json:"passed"`
	Scores   []ConfidenceScore `json:"confidence_scores"`
}

// Options tune the installation-class thresholds
type Options struct {
	// IndustrialMinKA is the minimum breaking capacity for industrial installs
	IndustrialMinKA float64
	// FixedLoadThresholdW is the power above which an industrial socket
	// circuit is treated as a fixed, non-portable load
	FixedLoadThresholdW float64
}

func DefaultOptions() Options {
	return Options{
		IndustrialMinKA:     10,
		FixedLoadThresholdW: 7360,
	}
}

type Validator struct {
	opts Options
}

func New(opts Options) *Validator {
	return &Validator{opts: opts}
}

// Validate checks every design. Passed is true only when no critical
// finding was produced; confidence scores never affect it.
func (v *Validator) Validate(designs []models.CircuitDesign, inst models.Installation) Result {
	res := Result{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
		Info:     []ValidationError{},
		Scores:   make([]ConfidenceScore, 0, len(designs)),
	}

	for _, d := range designs {
		idx := d.Index
		var findings []ValidationError
		findings = append(findings, v.checkRCD(d, inst)...)
		findings = append(findings, checkSpecialLocation(d)...)
		findings = append(findings, checkRing(d)...)
		findings = append(findings, checkCompleteness(d)...)
		findings = append(findings, v.checkInstallationClass(d, inst)...)

		for _, f := range findings {
			f.CircuitIndex = idx
			f.CircuitName = d.Name
			switch f.Severity {
			case SeverityCritical:
				res.Errors = append(res.Errors, f)
			case SeverityWarning:
				res.Warnings = append(res.Warnings, f)
			default:
				res.Info = append(res.Info, f)
			}
		}

		score := Confidence(d)
		score.CircuitIndex = idx
		res.Scores = append(res.Scores, score)
	}

	res.Passed = len(res.Errors) == 0
	return res
}

// rcdRequirement returns the regulation demanding RCD protection for d, or ""
func rcdRequirement(d models.CircuitDesign, inst models.Installation) string {
	switch {
	case d.SpecialLocation == models.LocationBathroom:
		return RegRCDBathroom
	case d.LoadType == models.LoadEVCharger:
		return RegRCDEVCharger
	case d.SpecialLocation == models.LocationOutdoor, d.LoadType == models.LoadOutdoor:
		return RegRCDSockets
	case d.LoadType == models.LoadSocket:
		return RegRCDSockets
	case inst.Earthing == models.EarthingTT:
		return RegRCDTT
	}
	return ""
}

func hasRCD(d models.CircuitDesign) bool {
	if d.RCDProtected {
		return true
	}
	// a substituted device says nothing about the designed protection
	if d.Protection == nil || d.Defaulted(models.FieldProtection) {
		return false
	}
	t := strings.ToUpper(d.Protection.Type)
	return strings.Contains(t, "RCBO") || strings.Contains(t, "RCD") || d.Protection.RCDRatingM > 0
}

func (v *Validator) isFixedIndustrialLoad(d models.CircuitDesign, inst models.Installation) bool {
	return inst.Class == models.InstallationIndustrial &&
		d.LoadType == models.LoadSocket &&
		d.SpecialLocation == models.LocationNone &&
		d.LoadPowerW > v.opts.FixedLoadThresholdW
}

func (v *Validator) checkRCD(d models.CircuitDesign, inst models.Installation) []ValidationError {
	reg := rcdRequirement(d, inst)
	if reg == "" || hasRCD(d) {
		return nil
	}

	if reg == RegRCDSockets && v.isFixedIndustrialLoad(d, inst) {
		return []ValidationError{{
			Severity:     SeverityWarning,
			Category:     CategorySafety,
			Message:      "Fixed industrial load without RCD protection; confirm it cannot supply portable equipment",
			Regulation:   reg,
			SuggestedFix: "Document the risk assessment or fit a 30mA RCBO",
		}}
	}

	return []ValidationError{{
		Severity:     SeverityCritical,
		Category:     CategorySafety,
		Message:      fmt.Sprintf("%s requires 30mA RCD protection", rcdReason(d, inst)),
		Regulation:   reg,
		SuggestedFix: "Protect the circuit with a 30mA RCBO or an upstream 30mA RCD",
	}}
}

func rcdReason(d models.CircuitDesign, inst models.Installation) string {
	switch {
	case d.SpecialLocation == models.LocationBathroom:
		return "A circuit in a bathroom"
	case d.LoadType == models.LoadEVCharger:
		return "An EV charging circuit"
	case d.SpecialLocation == models.LocationOutdoor, d.LoadType == models.LoadOutdoor:
		return "An outdoor circuit"
	case d.LoadType == models.LoadSocket:
		return "A socket circuit"
	case inst.Earthing == models.EarthingTT:
		return "Every circuit on a TT system"
	}
	return "This circuit"
}

func checkSpecialLocation(d models.CircuitDesign) []ValidationError {
	var out []ValidationError
	if d.SpecialLocation == models.LocationBathroom {
		out = append(out, ValidationError{
			Severity:     SeverityInfo,
			Category:     CategoryCompliance,
			Message:      "Supplementary bonding may be required in the bathroom",
			Regulation:   RegBathroomBonding,
			SuggestedFix: "Confirm main bonding and RCD conditions, otherwise install supplementary bonding",
		})
	}
	if d.SpecialLocation == models.LocationOutdoor || d.LoadType == models.LoadOutdoor {
		if !mechanicallyProtected(d.CableType) {
			out = append(out, ValidationError{
				Severity:     SeverityWarning,
				Category:     CategoryCompliance,
				Message:      "Outdoor circuit cable is not armoured or mechanically protected",
				Regulation:   RegMechanicalDamage,
				SuggestedFix: "Use SWA cable or run the cable in protective conduit",
			})
		}
	}
	return out
}

func mechanicallyProtected(cableType string) bool {
	c := strings.ToLower(cableType)
	for _, marker := range []string{"swa", "armour", "armor", "conduit", "mechanical"} {
		if strings.Contains(c, marker) {
			return true
		}
	}
	return false
}

var (
	ringName   = regexp.MustCompile(`(?i)\brings?\b`)
	radialName = regexp.MustCompile(`(?i)\bradials?\b`)
)

// IsRing reports whether d is a ring final circuit. An explicit radial marker
// wins over an explicit ring marker, which wins over the 32 A socket heuristic.
func IsRing(d models.CircuitDesign) bool {
	topology := strings.ToLower(strings.TrimSpace(d.Topology))

	if topology == "radial" || radialName.MatchString(d.Name) {
		return false
	}
	if topology == "ring" || ringName.MatchString(d.Name) {
		return true
	}
	return d.LoadType == models.LoadSocket && d.Protection != nil && d.Protection.RatingA == 32
}

func checkRing(d models.CircuitDesign) []ValidationError {
	if !IsRing(d) || d.CableSizeMM2 <= 0 || d.CableSizeMM2 == RingCableSizeMM2 {
		return nil
	}
	return []ValidationError{{
		Severity:     SeverityCritical,
		Category:     CategoryCompliance,
		Message:      fmt.Sprintf("Ring final circuits must use %.1fmm² conductors, got %gmm²", RingCableSizeMM2, d.CableSizeMM2),
		Regulation:   RegRingFinal,
		SuggestedFix: "Use 2.5mm² cable on a 32A device, or redesign as a radial circuit",
	}}
}

func checkCompleteness(d models.CircuitDesign) []ValidationError {
	var out []ValidationError
	switch {
	case d.CableSizeMM2 <= 0:
		out = append(out, missingField("Cable size is missing; the design cannot be trusted"))
	case d.Defaulted(models.FieldCableSize):
		out = append(out, missingField("Cable size was not designed and a default was substituted; the design cannot be trusted"))
	}
	switch {
	case d.Protection == nil || d.Protection.RatingA <= 0:
		out = append(out, missingField("Protection device is missing; the design cannot be trusted"))
	case d.Defaulted(models.FieldProtection):
		out = append(out, missingField("Protection device was not designed and a default was substituted; the design cannot be trusted"))
	}
	if d.Calculations == nil || d.Defaulted(models.FieldCalculations) {
		out = append(out, ValidationError{
			Severity:     SeverityWarning,
			Category:     CategoryData,
			Message:      "Calculations are missing; verify cable capacity, voltage drop and Zs manually",
			SuggestedFix: "Regenerate the design or complete the calculations by hand",
		})
	}
	if d.Incomplete {
		out = append(out, ValidationError{
			Severity:     SeverityWarning,
			Category:     CategoryData,
			Message:      "Default values were used for part of this design",
			SuggestedFix: "Review the defaulted values before installation",
		})
	}
	return out
}

func (v *Validator) checkInstallationClass(d models.CircuitDesign, inst models.Installation) []ValidationError {
	if inst.Class != models.InstallationIndustrial || d.Protection == nil {
		return nil
	}
	switch {
	case d.Protection.KARating <= 0:
		return []ValidationError{{
			Severity:     SeverityInfo,
			Category:     CategoryCompliance,
			Message:      "Breaking capacity of the protective device is not stated",
			Regulation:   RegBreakingCapacity,
			SuggestedFix: fmt.Sprintf("Confirm a breaking capacity of at least %gkA against the prospective fault current", v.opts.IndustrialMinKA),
		}}
	case d.Protection.KARating < v.opts.IndustrialMinKA:
		return []ValidationError{{
			Severity:     SeverityWarning,
			Category:     CategoryCompliance,
			Message:      fmt.Sprintf("Breaking capacity %gkA is below the %gkA expected for industrial installations", d.Protection.KARating, v.opts.IndustrialMinKA),
			Regulation:   RegBreakingCapacity,
			SuggestedFix: fmt.Sprintf("Select a device rated %gkA or higher", v.opts.IndustrialMinKA),
		}}
	}
	return nil
}

func missingField(msg string) ValidationError {
	return ValidationError{
		Severity:     SeverityCritical,
		Category:     CategoryData,
		Message:      msg,
		Regulation:   RegDesignInformation,
		SuggestedFix: "Regenerate the design for this circuit",
	}
}
