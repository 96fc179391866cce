package models

import "fmt"

// ModeBatchDesign is the only request mode this service handles
const ModeBatchDesign = "batch-design"

// DesignRequest is the inbound batch design request
type DesignRequest struct {
	Mode         string             `json:"mode"`
	SessionID    string             `json:"session_id,omitempty"`
	Installation Installation       `json:"installation"`
	Description  string             `json:"description,omitempty"`
	Circuits     []ExtractedCircuit `json:"circuits,omitempty"`
}

// Validate rejects requests that cannot be processed at all
func (r *DesignRequest) Validate() error {
	if r.Mode != ModeBatchDesign {
		return NewInvalidInputError("unsupported mode: " + r.Mode)
	}
	if r.Installation.Class == "" {
		r.Installation.Class = InstallationDomestic
	}
	if !r.Installation.Class.Valid() {
		return NewInvalidInputError("unknown installation class: " + string(r.Installation.Class))
	}
	for i, c := range r.Circuits {
		if c.LoadPowerW < 0 {
			return NewInvalidCircuitsError(i, c.Name, "load power must be positive")
		}
		if c.Quantity < 0 {
			return NewInvalidCircuitsError(i, c.Name, "quantity must be at least 1")
		}
		if c.Quantity > MaxQuantity {
			return NewInvalidCircuitsError(i, c.Name, fmt.Sprintf("quantity must be at most %d", MaxQuantity))
		}
		if c.LoadType != "" && !c.LoadType.Valid() {
			return NewInvalidCircuitsError(i, c.Name, "unknown load type "+string(c.LoadType))
		}
	}
	return nil
}
