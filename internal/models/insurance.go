package models

import (
	"fmt"
	"strings"
)

// InsuranceOption is a fixed per-day surcharge tier on top of the base
// daily rate.
type InsuranceOption string

const (
	InsuranceNone      InsuranceOption = "NONE"
	InsuranceTeilkasko InsuranceOption = "TEILKASKO"
	InsuranceVollkasko InsuranceOption = "VOLLKASKO"
)

// Immutable tier table; there is no dynamic pricing.
var insuranceSurcharges = map[InsuranceOption]float64{
	InsuranceNone:      0,
	InsuranceTeilkasko: 10.00,
	InsuranceVollkasko: 20.00,
}

// DailySurcharge returns the per-day surcharge for the tier, 0 for
// unknown values.
func (o InsuranceOption) DailySurcharge() float64 {
	return insuranceSurcharges[o]
}

// Valid reports whether the option is one of the known tiers.
func (o InsuranceOption) Valid() bool {
	_, ok := insuranceSurcharges[o]
	return ok
}

// ParseInsuranceOption maps a request value to a tier. The empty string
// means no insurance, matching the booking form's optional select.
func ParseInsuranceOption(raw string) (InsuranceOption, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return InsuranceNone, nil
	}
	opt := InsuranceOption(trimmed)
	if !opt.Valid() {
		return "", fmt.Errorf("unknown insurance option: %s", raw)
	}
	return opt, nil
}
