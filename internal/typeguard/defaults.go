package typeguard

import (
	"strings"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
)

// LoadDefaults are the conservative placeholder values used when a load type
// is known but details are missing.
type LoadDefaults struct {
	PowerW       float64
	CableLengthM float64
	CableSizeMM2 float64
	CPCSizeMM2   float64
	RatingA      float64
	DisplayName  string
}

var loadDefaults = map[models.LoadType]LoadDefaults{
	models.LoadSocket:     {PowerW: 7200, CableLengthM: 25, CableSizeMM2: 2.5, CPCSizeMM2: 1.5, RatingA: 32, DisplayName: "Socket Circuit"},
	models.LoadLighting:   {PowerW: 1000, CableLengthM: 30, CableSizeMM2: 1.5, CPCSizeMM2: 1.0, RatingA: 6, DisplayName: "Lighting Circuit"},
	models.LoadShower:     {PowerW: 9500, CableLengthM: 15, CableSizeMM2: 10, CPCSizeMM2: 4, RatingA: 45, DisplayName: "Electric Shower"},
	models.LoadCooker:     {PowerW: 7200, CableLengthM: 10, CableSizeMM2: 6, CPCSizeMM2: 2.5, RatingA: 32, DisplayName: "Cooker"},
	models.LoadEVCharger:  {PowerW: 7400, CableLengthM: 20, CableSizeMM2: 6, CPCSizeMM2: 2.5, RatingA: 32, DisplayName: "EV Charger"},
	models.LoadImmersion:  {PowerW: 3000, CableLengthM: 15, CableSizeMM2: 2.5, CPCSizeMM2: 1.5, RatingA: 16, DisplayName: "Immersion Heater"},
	models.LoadHeating:    {PowerW: 2000, CableLengthM: 20, CableSizeMM2: 2.5, CPCSizeMM2: 1.5, RatingA: 20, DisplayName: "Heating Circuit"},
	models.LoadHeatPump:   {PowerW: 6000, CableLengthM: 20, CableSizeMM2: 6, CPCSizeMM2: 2.5, RatingA: 32, DisplayName: "Heat Pump"},
	models.LoadSmokeAlarm: {PowerW: 50, CableLengthM: 20, CableSizeMM2: 1.5, CPCSizeMM2: 1.0, RatingA: 6, DisplayName: "Smoke Alarms"},
	models.LoadOutdoor:    {PowerW: 1000, CableLengthM: 30, CableSizeMM2: 2.5, CPCSizeMM2: 1.5, RatingA: 20, DisplayName: "Outdoor Circuit"},
	models.LoadMotor:      {PowerW: 3000, CableLengthM: 25, CableSizeMM2: 4, CPCSizeMM2: 1.5, RatingA: 32, DisplayName: "Motor Circuit"},
	models.LoadOther:      {PowerW: 2000, CableLengthM: 20, CableSizeMM2: 2.5, CPCSizeMM2: 1.5, RatingA: 20, DisplayName: "Circuit"},
}

// DefaultsFor returns the placeholder values for a load type
func DefaultsFor(t models.LoadType) LoadDefaults {
	if d, ok := loadDefaults[t]; ok {
		return d
	}
	return loadDefaults[models.LoadOther]
}

// NormalizeCircuit fills the optional fields of an extracted circuit
func NormalizeCircuit(c models.ExtractedCircuit) models.ExtractedCircuit {
	if !c.LoadType.Valid() {
		c.LoadType = models.LoadOther
	}
	d := DefaultsFor(c.LoadType)
	if c.Name == "" {
		c.Name = d.DisplayName
	}
	if c.LoadPowerW <= 0 {
		c.LoadPowerW = d.PowerW
	}
	if c.Quantity < 1 {
		c.Quantity = 1
	}
	if c.Phases != models.PhaseThree {
		c.Phases = models.PhaseSingle
	}
	return c
}

// DefaultDesign builds a default-filled placeholder for a circuit whose design
// could not be obtained. It is always marked incomplete.
func DefaultDesign(index int, c models.ExtractedCircuit, reason string) models.CircuitDesign {
	c = NormalizeCircuit(c)
	d := DefaultsFor(c.LoadType)

	length := d.CableLengthM
	if c.CableLengthM != nil && *c.CableLengthM > 0 {
		length = *c.CableLengthM
	}

	design := models.CircuitDesign{
		Index:           index,
		Name:            c.Name,
		LoadType:        c.LoadType,
		LoadPowerW:      c.LoadPowerW,
		CableLengthM:    length,
		Phases:          c.Phases,
		SpecialLocation: c.SpecialLocation,
		CableSizeMM2:    d.CableSizeMM2,
		CPCSizeMM2:      d.CPCSizeMM2,
		CableType:       "6242Y Twin & Earth",
		Protection: &models.ProtectionDevice{
			Type:       "RCBO",
			RatingA:    d.RatingA,
			Curve:      "B",
			KARating:   6,
			RCDRatingM: 30,
		},
		RCDProtected:    true,
		Incomplete:      true,
		DefaultedFields: []string{models.FieldCableSize, models.FieldCPCSize, models.FieldProtection, models.FieldCalculations},
	}
	if c.SpecialLocation == models.LocationOutdoor || c.LoadType == models.LoadEVCharger {
		design.CableType = "SWA armoured"
	}
	if reason != "" {
		design.Notes = append(design.Notes, "default values used: "+reason)
	}
	return design
}

// FillDefaults completes a returned design from its input circuit. Missing
// identity fields are copied from the input; missing engineering fields are
// taken from the placeholder, recorded in DefaultedFields and the design is
// flagged incomplete. RCDProtected is always the returned value.
func FillDefaults(index int, design models.CircuitDesign, c models.ExtractedCircuit) models.CircuitDesign {
	c = NormalizeCircuit(c)
	placeholder := DefaultDesign(index, c, "")

	design.Index = index
	if design.Name == "" {
		design.Name = c.Name
	}
	if !design.LoadType.Valid() {
		design.LoadType = c.LoadType
	}
	if design.LoadPowerW <= 0 {
		design.LoadPowerW = c.LoadPowerW
	}
	if design.CableLengthM <= 0 {
		design.CableLengthM = placeholder.CableLengthM
	}
	if design.Phases == "" {
		design.Phases = c.Phases
	}
	if design.SpecialLocation == "" {
		design.SpecialLocation = c.SpecialLocation
	}

	var filled []string
	if design.CableSizeMM2 <= 0 {
		design.CableSizeMM2 = placeholder.CableSizeMM2
		filled = append(filled, models.FieldCableSize)
	}
	if design.CPCSizeMM2 <= 0 {
		design.CPCSizeMM2 = placeholder.CPCSizeMM2
		filled = append(filled, models.FieldCPCSize)
	}
	if design.Protection == nil || design.Protection.RatingA <= 0 {
		design.Protection = placeholder.Protection
		filled = append(filled, models.FieldProtection)
	}
	if design.Calculations == nil {
		filled = append(filled, models.FieldCalculations)
	}
	if len(filled) > 0 {
		design.Incomplete = true
		design.DefaultedFields = filled
		for _, f := range filled {
			design.Notes = append(design.Notes, "missing "+strings.ReplaceAll(f, "_", " "))
		}
	}
	return design
}
