package typeguard

import (
	"fmt"
	"strings"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/models"
)

// LoadTypeFrom maps free-form load type strings onto the closed enum
func LoadTypeFrom(value any) models.LoadType {
	s, ok := String(value)
	if !ok {
		return models.LoadOther
	}
	s = strings.ToLower(strings.NewReplacer("-", "_", " ", "_").Replace(s))
	if lt := models.LoadType(s); lt.Valid() {
		return lt
	}
	switch {
	case strings.Contains(s, "socket") || strings.Contains(s, "ring"):
		return models.LoadSocket
	case strings.Contains(s, "light"):
		return models.LoadLighting
	case strings.Contains(s, "shower"):
		return models.LoadShower
	case strings.Contains(s, "cooker") || strings.Contains(s, "oven") || strings.Contains(s, "hob"):
		return models.LoadCooker
	case strings.Contains(s, "ev") || strings.Contains(s, "charger"):
		return models.LoadEVCharger
	case strings.Contains(s, "immersion"):
		return models.LoadImmersion
	case strings.Contains(s, "heat_pump"):
		return models.LoadHeatPump
	case strings.Contains(s, "heat"):
		return models.LoadHeating
	case strings.Contains(s, "smoke"):
		return models.LoadSmokeAlarm
	case strings.Contains(s, "outdoor") || strings.Contains(s, "garden"):
		return models.LoadOutdoor
	case strings.Contains(s, "motor"):
		return models.LoadMotor
	}
	return models.LoadOther
}

// LocationFrom maps free-form location strings onto the special location enum
func LocationFrom(value any) models.SpecialLocation {
	s, ok := String(value)
	if !ok {
		return models.LocationNone
	}
	s = strings.ToLower(strings.ReplaceAll(s, " ", "_"))
	for _, loc := range models.SpecialLocations {
		if s == string(loc) {
			return loc
		}
	}
	switch {
	case strings.Contains(s, "bath") || strings.Contains(s, "shower_room") || strings.Contains(s, "en_suite"):
		return models.LocationBathroom
	case strings.Contains(s, "outdoor") || strings.Contains(s, "outside") || strings.Contains(s, "garden"):
		return models.LocationOutdoor
	case strings.Contains(s, "pool"):
		return models.LocationPool
	}
	return models.LocationNone
}

// PhaseFrom maps "three", "3", "three-phase", etc. onto the phase enum
func PhaseFrom(value any) models.Phase {
	if n, ok := Int(value); ok && n == 3 {
		return models.PhaseThree
	}
	s, _ := String(value)
	s = strings.ToLower(s)
	if strings.HasPrefix(s, "three") || strings.HasPrefix(s, "3") {
		return models.PhaseThree
	}
	return models.PhaseSingle
}

// CircuitFromMap guards one extracted circuit payload. A circuit without a
// usable name or load type is rejected.
func CircuitFromMap(m map[string]any) (models.ExtractedCircuit, error) {
	name, ok := String(First(m, "name", "circuit_name", "circuitName"))
	if !ok {
		return models.ExtractedCircuit{}, fmt.Errorf("circuit has no name")
	}
	rawType := First(m, "load_type", "loadType", "type")
	if rawType == nil {
		return models.ExtractedCircuit{}, fmt.Errorf("circuit %q has no load type", name)
	}

	c := models.ExtractedCircuit{
		Name:            name,
		LoadType:        LoadTypeFrom(rawType),
		LoadPowerW:      FloatDefault(First(m, "load_power_w", "loadPower", "power"), 0),
		Quantity:        IntDefault(First(m, "quantity", "count"), 1),
		Phases:          PhaseFrom(First(m, "phases", "phase")),
		SpecialLocation: LocationFrom(First(m, "special_location", "specialLocation", "location")),
	}
	if l, ok := Float(First(m, "cable_length_m", "cableLength", "cable_length")); ok && l > 0 {
		c.CableLengthM = &l
	}
	return NormalizeCircuit(c), nil
}

// DesignFromMap guards one designed circuit payload from the completion service
func DesignFromMap(m map[string]any) models.CircuitDesign {
	d := models.CircuitDesign{
		Name:            StringDefault(First(m, "name", "circuit_name", "circuitName"), ""),
		LoadPowerW:      FloatDefault(First(m, "load_power_w", "loadPower"), 0),
		CableLengthM:    FloatDefault(First(m, "cable_length_m", "cableLength"), 0),
		SpecialLocation: LocationFrom(First(m, "special_location", "specialLocation")),
		Topology:        strings.ToLower(StringDefault(First(m, "topology", "circuit_topology", "circuitTopology"), "")),
		CableSizeMM2:    FloatDefault(First(m, "cable_size_mm2", "cableSize"), 0),
		CPCSizeMM2:      FloatDefault(First(m, "cpc_size_mm2", "cpcSize"), 0),
		CableType:       StringDefault(First(m, "cable_type", "cableType"), ""),
		RCDProtected:    BoolDefault(First(m, "rcd_protected", "rcdProtected"), false),
	}
	if raw := First(m, "load_type", "loadType"); raw != nil {
		d.LoadType = LoadTypeFrom(raw)
	}
	if raw := First(m, "phases", "phase"); raw != nil {
		d.Phases = PhaseFrom(raw)
	}

	if pm, ok := Map(First(m, "protection_device", "protectionDevice")); ok {
		d.Protection = &models.ProtectionDevice{
			Type:       strings.ToUpper(StringDefault(pm["type"], "MCB")),
			RatingA:    FloatDefault(First(pm, "rating_a", "rating"), 0),
			Curve:      StringDefault(pm["curve"], ""),
			KARating:   FloatDefault(First(pm, "ka_rating", "kaRating"), 0),
			RCDRatingM: FloatDefault(First(pm, "rcd_rating_ma", "rcdRating"), 0),
		}
		if d.Protection.Type == "RCBO" {
			d.RCDProtected = true
		}
	}

	if cm, ok := Map(First(m, "calculations")); ok {
		d.Calculations = &models.Calculations{
			DesignCurrentA:    FloatDefault(First(cm, "design_current_a", "Ib"), 0),
			CableCapacityA:    FloatDefault(First(cm, "cable_capacity_a", "Iz"), 0),
			VoltageDropV:      FloatDefault(First(cm, "voltage_drop_v", "voltageDrop"), 0),
			VoltageDropPct:    FloatDefault(First(cm, "voltage_drop_pct", "voltageDropPercent"), 0),
			Zs:                FloatDefault(cm["zs"], 0),
			MaxZs:             FloatDefault(First(cm, "max_zs", "maxZs"), 0),
			CorrectionFactors: StringDefault(First(cm, "correction_factors", "correctionFactors"), ""),
		}
	}

	if jm, ok := Map(First(m, "justifications")); ok {
		d.Justifications = &models.Justifications{
			Cable:      StringDefault(First(jm, "cable", "cableSize"), ""),
			Protection: StringDefault(jm["protection"], ""),
			RCD:        StringDefault(jm["rcd"], ""),
			General:    StringDefault(jm["general"], ""),
		}
	} else if s, ok := String(First(m, "justification")); ok {
		d.Justifications = &models.Justifications{General: s}
	}
	return d
}

// DesignsFromPayload guards a tool payload of the form {"circuits": [...]}.
// Entries that are not objects become empty designs so positions are kept.
func DesignsFromPayload(payload map[string]any) ([]models.CircuitDesign, error) {
	raw, ok := Slice(payload["circuits"])
	if !ok {
		return nil, fmt.Errorf("payload has no circuits array")
	}
	out := make([]models.CircuitDesign, len(raw))
	for i, item := range raw {
		if m, ok := Map(item); ok {
			out[i] = DesignFromMap(m)
		}
	}
	return out, nil
}
