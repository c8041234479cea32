// Package gas holds the gas mixture value type, the per-species constants it
// is derived from, and the data-driven reactions that run inside a mixture.
package gas

import (
	"errors"
	"fmt"
	"strings"
)

// Physical constants. They are fixed at compile time so that every consumer
// derives identical pressures and heat capacities.
const (
	// R is the ideal gas constant in J/(mol*K).
	R = 8.314462618
	// OneAtmosphere is standard pressure in kPa.
	OneAtmosphere = 101.325
	// TCMB is the cosmic microwave background temperature, the floor every
	// mixture temperature is clamped to.
	TCMB = 2.7
	// T0C is 0 degrees Celsius in Kelvin.
	T0C = 273.15
	// T20C is 20 degrees Celsius in Kelvin.
	T20C = 293.15
	// CellVolume is the volume of a single tile in litres.
	CellVolume = 2500.0
	// MinimumHeatCapacity is the heat capacity below which temperature math
	// is skipped.
	MinimumHeatCapacity = 0.0003
	// GasMinMoles is the smallest mole quantity tracked per species.
	GasMinMoles = 0.00000005
	// MinimumTemperatureDeltaToConsider gates temperature sharing between tiles.
	MinimumTemperatureDeltaToConsider = 0.5
	// MinimumMolesDeltaToMove is the smallest per-tile mole delta worth sharing.
	MinimumMolesDeltaToMove = 0.005
	// OpenHeatTransferCoefficient is the conduction coefficient between open tiles.
	OpenHeatTransferCoefficient = 0.4
	// MaxOutputPressure caps pumps and filters, in kPa.
	MaxOutputPressure = 4500.0
	// MolesCellStandard is the number of moles in a standard tile at 20C and 1 atm.
	MolesCellStandard = OneAtmosphere * CellVolume / (T20C * R)
	// OxygenStandard and NitrogenStandard are the mole fractions of station air.
	OxygenStandard   = 0.21
	NitrogenStandard = 0.79

	HazardHighPressure  = 550.0
	WarningHighPressure = 0.7 * HazardHighPressure
	WarningLowPressure  = 2.5 * HazardLowPressure
	HazardLowPressure   = 20.0
)

// Gas identifies a species slot in a Mixture.
type Gas int

const (
	Oxygen Gas = iota
	Nitrogen
	CarbonDioxide
	Plasma
	Tritium
	WaterVapor
	Ammonia
	NitrousOxide
	Frezon

	// NumGases is the number of tracked species.
	NumGases = 9
)

// ErrUnknownGas is returned when a gas name cannot be resolved.
var ErrUnknownGas = errors.New("unknown gas")

// Info describes the static properties of one gas species.
type Info struct {
	Name         string
	Symbol       string
	SpecificHeat float64
	// Reagent is the chemical a condenser turns this gas into; empty when the
	// gas does not condense.
	Reagent string
	// PricePerMole is used to appraise containers.
	PricePerMole float64
}

var gasInfo = [NumGases]Info{
	Oxygen:        {Name: "Oxygen", Symbol: "O2", SpecificHeat: 20, Reagent: "Oxygen", PricePerMole: 0.1},
	Nitrogen:      {Name: "Nitrogen", Symbol: "N2", SpecificHeat: 30, Reagent: "Nitrogen", PricePerMole: 0.1},
	CarbonDioxide: {Name: "CarbonDioxide", Symbol: "CO2", SpecificHeat: 30, Reagent: "CarbonDioxide", PricePerMole: 0.1},
	Plasma:        {Name: "Plasma", Symbol: "P", SpecificHeat: 200, Reagent: "Plasma", PricePerMole: 0.5},
	Tritium:       {Name: "Tritium", Symbol: "T", SpecificHeat: 10, Reagent: "Tritium", PricePerMole: 2.5},
	WaterVapor:    {Name: "WaterVapor", Symbol: "H2O", SpecificHeat: 40, Reagent: "Water", PricePerMole: 0.1},
	Ammonia:       {Name: "Ammonia", Symbol: "NH3", SpecificHeat: 20, Reagent: "Ammonia", PricePerMole: 0.5},
	NitrousOxide:  {Name: "NitrousOxide", Symbol: "N2O", SpecificHeat: 40, Reagent: "NitrousOxide", PricePerMole: 0.5},
	Frezon:        {Name: "Frezon", Symbol: "F", SpecificHeat: 600, Reagent: "Frezon", PricePerMole: 1},
}

// specificHeats mirrors gasInfo as a dense vector for dot products.
var specificHeats = func() [NumGases]float64 {
	var out [NumGases]float64
	for i, info := range gasInfo {
		out[i] = info.SpecificHeat
	}
	return out
}()

// Gases returns every species in slot order.
func Gases() []Gas {
	out := make([]Gas, NumGases)
	for i := range out {
		out[i] = Gas(i)
	}
	return out
}

// Info returns the static description of g.
func (g Gas) Info() Info {
	if !g.Valid() {
		return Info{}
	}
	return gasInfo[g]
}

// Valid reports whether g names a tracked species.
func (g Gas) Valid() bool { return g >= 0 && g < NumGases }

// SpecificHeat returns the molar heat capacity of g.
func (g Gas) SpecificHeat() float64 { return g.Info().SpecificHeat }

func (g Gas) String() string {
	if !g.Valid() {
		return fmt.Sprintf("Gas(%d)", int(g))
	}
	return gasInfo[g].Name
}

// ParseGas resolves a gas by name or chemical symbol, case-insensitively.
func ParseGas(name string) (Gas, error) {
	key := strings.TrimSpace(name)
	for i, info := range gasInfo {
		if strings.EqualFold(key, info.Name) || strings.EqualFold(key, info.Symbol) {
			return Gas(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownGas, name)
}

// ParseAmounts converts a name-keyed mole table into a species vector.
func ParseAmounts(in map[string]float64) ([NumGases]float64, error) {
	var out [NumGases]float64
	for name, amount := range in {
		g, err := ParseGas(name)
		if err != nil {
			return out, err
		}
		out[g] += amount
	}
	return out, nil
}
