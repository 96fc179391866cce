package models

import "strings"

// LoadType classifies what a circuit supplies
type LoadType string

const (
	LoadSocket     LoadType = "socket"
	LoadLighting   LoadType = "lighting"
	LoadShower     LoadType = "shower"
	LoadCooker     LoadType = "cooker"
	LoadEVCharger  LoadType = "ev_charger"
	LoadImmersion  LoadType = "immersion"
	LoadHeating    LoadType = "heating"
	LoadHeatPump   LoadType = "heat_pump"
	LoadSmokeAlarm LoadType = "smoke_alarm"
	LoadOutdoor    LoadType = "outdoor"
	LoadMotor      LoadType = "motor"
	LoadOther      LoadType = "other"
)

// LoadTypes lists every accepted load type in schema order
var LoadTypes = []LoadType{
	LoadSocket, LoadLighting, LoadShower, LoadCooker, LoadEVCharger, LoadImmersion,
	LoadHeating, LoadHeatPump, LoadSmokeAlarm, LoadOutdoor, LoadMotor, LoadOther,
}

// Valid reports whether t is one of the known load types
func (t LoadType) Valid() bool {
	for _, lt := range LoadTypes {
		if lt == t {
			return true
		}
	}
	return false
}

// Phase is the supply phase count of a circuit
type Phase string

const (
	PhaseSingle Phase = "single"
	PhaseThree  Phase = "three"
)

// SpecialLocation tags circuits installed in locations with extra requirements
type SpecialLocation string

const (
	LocationNone     SpecialLocation = ""
	LocationBathroom SpecialLocation = "bathroom"
	LocationOutdoor  SpecialLocation = "outdoor"
	LocationKitchen  SpecialLocation = "kitchen"
	LocationGarage   SpecialLocation = "garage"
	LocationPool     SpecialLocation = "swimming_pool"
	LocationSauna    SpecialLocation = "sauna"
)

// SpecialLocations lists every non-empty special location in schema order
var SpecialLocations = []SpecialLocation{
	LocationBathroom, LocationOutdoor, LocationKitchen, LocationGarage, LocationPool, LocationSauna,
}

// InstallationClass is the type of premises being designed for
type InstallationClass string

const (
	InstallationDomestic   InstallationClass = "domestic"
	InstallationCommercial InstallationClass = "commercial"
	InstallationIndustrial InstallationClass = "industrial"
)

// Valid reports whether c is a known installation class
func (c InstallationClass) Valid() bool {
	switch c {
	case InstallationDomestic, InstallationCommercial, InstallationIndustrial:
		return true
	}
	return false
}

// EarthingSystem is the upstream earthing arrangement
type EarthingSystem string

const (
	EarthingTNS  EarthingSystem = "TN-S"
	EarthingTNCS EarthingSystem = "TN-C-S"
	EarthingTT   EarthingSystem = "TT"
)

// MaxQuantity bounds the quantity of a single circuit requirement
const MaxQuantity = 50

// ExtractedCircuit is a circuit requirement before design
type ExtractedCircuit struct {
	Name            string          `json:"name"`
	LoadType        LoadType        `json:"load_type"`
	LoadPowerW      float64         `json:"load_power_w"`
	Quantity        int             `json:"quantity,omitempty"`
	CableLengthM    *float64        `json:"cable_length_m,omitempty"`
	Phases          Phase           `json:"phases"`
	SpecialLocation SpecialLocation `json:"special_location,omitempty"`
}

// Installation carries the metadata shared by every circuit of a request
type Installation struct {
	Class          InstallationClass `json:"class"`
	Earthing       EarthingSystem    `json:"earthing,omitempty"`
	SupplyVoltageV float64           `json:"supply_voltage_v,omitempty"`
	Ze             float64           `json:"ze,omitempty"`
	PropertyAge    string            `json:"property_age,omitempty"`
}

// ProtectionDevice describes the overcurrent/residual-current device of a circuit
type ProtectionDevice struct {
	Type       string  `json:"type"`
	RatingA    float64 `json:"rating_a"`
	Curve      string  `json:"curve,omitempty"`
	KARating   float64 `json:"ka_rating,omitempty"`
	RCDRatingM float64 `json:"rcd_rating_ma,omitempty"`
}

// Calculations holds the figures returned by the completion service
type Calculations struct {
	DesignCurrentA    float64 `json:"design_current_a"`
	CableCapacityA    float64 `json:"cable_capacity_a,omitempty"`
	VoltageDropV      float64 `json:"voltage_drop_v,omitempty"`
	VoltageDropPct    float64 `json:"voltage_drop_pct,omitempty"`
	Zs                float64 `json:"zs,omitempty"`
	MaxZs             float64 `json:"max_zs,omitempty"`
	CorrectionFactors string  `json:"correction_factors,omitempty"`
}

// Justifications are free-text explanations attached to a design
type Justifications struct {
	Cable      string `json:"cable,omitempty"`
	Protection string `json:"protection,omitempty"`
	RCD        string `json:"rcd,omitempty"`
	General    string `json:"general,omitempty"`
}

// Text joins every justification into one string
func (j *Justifications) Text() string {
	if j == nil {
		return ""
	}
	var parts []string
	for _, s := range []string{j.Cable, j.Protection, j.RCD, j.General} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// CircuitDesign is a designed circuit as merged from the completion service
type CircuitDesign struct {
	Index           int               `json:"index"`
	Name            string            `json:"name"`
	LoadType        LoadType          `json:"load_type"`
	LoadPowerW      float64           `json:"load_power_w"`
	CableLengthM    float64           `json:"cable_length_m,omitempty"`
	Phases          Phase             `json:"phases"`
	SpecialLocation SpecialLocation   `json:"special_location,omitempty"`
	Topology        string            `json:"topology,omitempty"`
	CableSizeMM2    float64           `json:"cable_size_mm2,omitempty"`
	CPCSizeMM2      float64           `json:"cpc_size_mm2,omitempty"`
	CableType       string            `json:"cable_type,omitempty"`
	Protection      *ProtectionDevice `json:"protection_device,omitempty"`
	RCDProtected    bool              `json:"rcd_protected"`
	Calculations    *Calculations     `json:"calculations,omitempty"`
	Justifications  *Justifications   `json:"justifications,omitempty"`
	Incomplete      bool              `json:"incomplete,omitempty"`
	DefaultedFields []string          `json:"defaulted_fields,omitempty"`
	Notes           []string          `json:"notes,omitempty"`
}

// Engineering fields that can be default-filled
const (
	FieldCableSize    = "cable_size"
	FieldCPCSize      = "cpc_size"
	FieldProtection   = "protection_device"
	FieldCalculations = "calculations"
)

// Defaulted reports whether field was filled from a placeholder rather than designed
func (d CircuitDesign) Defaulted(field string) bool {
	for _, f := range d.DefaultedFields {
		if f == field {
			return true
		}
	}
	return false
}
