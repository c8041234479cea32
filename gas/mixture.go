package gas

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Mixture is a fixed-size per-species mole store with a volume (L) and a
// temperature (K). Pressure, heat capacity and total moles are always derived
// from the stored moles and never cached.
//
// A Mixture is not safe for concurrent use; the atmospherics step owns every
// mixture for its duration.
type Mixture struct {
	Moles  [NumGases]float64
	Volume float64

	// Immutable mixtures (space) ignore every mutation.
	Immutable bool

	temperature float64
}

// NewMixture returns an empty mixture of the given volume at TCMB.
func NewMixture(volume float64) *Mixture {
	if volume < 0 {
		volume = 0
	}
	return &Mixture{Volume: volume, temperature: TCMB}
}

// NewSpace returns the immutable vacuum used for tiles open to space.
func NewSpace() *Mixture {
	m := NewMixture(CellVolume)
	m.Immutable = true
	return m
}

// NewStationAir returns a tile-sized mixture of standard breathable air at 20C.
func NewStationAir() *Mixture {
	m := NewMixture(CellVolume)
	m.Moles[Oxygen] = MolesCellStandard * OxygenStandard
	m.Moles[Nitrogen] = MolesCellStandard * NitrogenStandard
	m.temperature = T20C
	return m
}

// Temperature returns the mixture temperature in Kelvin.
func (m *Mixture) Temperature() float64 { return m.temperature }

// SetTemperature sets the temperature, flooring it at TCMB.
func (m *Mixture) SetTemperature(t float64) {
	if m.Immutable {
		return
	}
	if math.IsNaN(t) || t < TCMB {
		t = TCMB
	}
	m.temperature = t
}

// TotalMoles returns the sum of every species.
func (m *Mixture) TotalMoles() float64 { return floats.Sum(m.Moles[:]) }

// HeatCapacity returns sum(moles[i] * specificHeat[i]) in J/K.
func (m *Mixture) HeatCapacity() float64 { return floats.Dot(m.Moles[:], specificHeats[:]) }

// ThermalEnergy returns HeatCapacity * Temperature in J.
func (m *Mixture) ThermalEnergy() float64 { return m.HeatCapacity() * m.temperature }

// Pressure returns the ideal-gas pressure in kPa, zero for a degenerate volume.
func (m *Mixture) Pressure() float64 {
	if m.Volume <= 0 {
		return 0
	}
	return m.TotalMoles() * R * m.temperature / m.Volume
}

// GetMoles returns the moles of g.
func (m *Mixture) GetMoles(g Gas) float64 {
	if !g.Valid() {
		return 0
	}
	return m.Moles[g]
}

// SetMoles overwrites the moles of g; negative values are stored as zero.
func (m *Mixture) SetMoles(g Gas, quantity float64) {
	if m.Immutable || !g.Valid() {
		return
	}
	m.Moles[g] = math.Max(quantity, 0)
}

// AdjustMoles adds delta moles of g without changing the temperature.
func (m *Mixture) AdjustMoles(g Gas, delta float64) {
	if m.Immutable || !g.Valid() {
		return
	}
	m.Moles[g] = math.Max(m.Moles[g]+delta, 0)
}

// IsEmpty reports whether the mixture holds no trackable gas.
func (m *Mixture) IsEmpty() bool { return m.TotalMoles() < GasMinMoles }

// Remove extracts n moles proportionally across all species. Asking for more
// than is present removes everything.
func (m *Mixture) Remove(n float64) *Mixture {
	total := m.TotalMoles()
	if total <= 0 || n <= 0 {
		return m.RemoveRatio(0)
	}
	return m.RemoveRatio(n / total)
}

// RemoveVolume extracts the gas occupying v litres of this mixture.
func (m *Mixture) RemoveVolume(v float64) *Mixture {
	if m.Volume <= 0 {
		return m.RemoveRatio(0)
	}
	return m.RemoveRatio(v / m.Volume)
}

// RemoveRatio extracts ratio (clamped to [0, 1]) of every species. The
// returned mixture has this mixture's volume and temperature; callers that
// need a different container volume set it on the result. A ratio of 1 or
// more takes everything, trace amounts included.
func (m *Mixture) RemoveRatio(ratio float64) *Mixture {
	removed := &Mixture{Volume: m.Volume, temperature: m.temperature}
	if ratio <= 0 || math.IsNaN(ratio) {
		return removed
	}
	removed.Moles = m.Moles
	if ratio >= 1 {
		if !m.Immutable {
			m.Moles = [NumGases]float64{}
		}
		return removed
	}

	floats.Scale(ratio, removed.Moles[:])
	for i := range removed.Moles {
		if removed.Moles[i] < GasMinMoles {
			removed.Moles[i] = 0
			continue
		}
		if !m.Immutable {
			m.Moles[i] = math.Max(m.Moles[i]-removed.Moles[i], 0)
		}
	}
	return removed
}

// Merge adds src's moles into m. The resulting temperature is the heat
// capacity weighted mean of both sides. src is left untouched.
func (m *Mixture) Merge(src *Mixture) {
	if m.Immutable || src == nil {
		return
	}
	ours := m.HeatCapacity()
	theirs := src.HeatCapacity()
	if combined := ours + theirs; combined > MinimumHeatCapacity {
		m.SetTemperature((ours*m.temperature + theirs*src.temperature) / combined)
	}
	floats.Add(m.Moles[:], src.Moles[:])
}

// Multiply scales every species by factor.
func (m *Mixture) Multiply(factor float64) {
	if m.Immutable {
		return
	}
	if factor < 0 || math.IsNaN(factor) {
		factor = 0
	}
	floats.Scale(factor, m.Moles[:])
}

// Clear drops every mole, leaving volume and temperature alone.
func (m *Mixture) Clear() {
	if m.Immutable {
		return
	}
	m.Moles = [NumGases]float64{}
}

// AddHeat changes the thermal energy of the mixture by dQ joules. Mixtures
// below MinimumHeatCapacity are left untouched.
func (m *Mixture) AddHeat(dQ float64) {
	hc := m.HeatCapacity()
	if hc <= MinimumHeatCapacity {
		return
	}
	m.SetTemperature(m.temperature + dQ/hc)
}

// ScrubInto moves every species listed in filter from m into dst, carrying
// m's temperature with it. Species not in filter stay where they are.
func (m *Mixture) ScrubInto(dst *Mixture, filter []Gas) {
	if dst == nil || m.Immutable {
		return
	}
	buffer := &Mixture{Volume: m.Volume, temperature: m.temperature}
	for _, g := range filter {
		if !g.Valid() {
			continue
		}
		buffer.Moles[g] += m.Moles[g]
		m.Moles[g] = 0
	}
	dst.Merge(buffer)
}

// Clone returns a mutable deep copy.
func (m *Mixture) Clone() *Mixture {
	out := *m
	out.Immutable = false
	return &out
}

// CopyFrom overwrites m's moles and temperature with sample's.
func (m *Mixture) CopyFrom(sample *Mixture) {
	if m.Immutable || sample == nil {
		return
	}
	m.Moles = sample.Moles
	m.temperature = sample.temperature
}

// Fraction returns the mole fraction of g, zero for an empty mixture.
func (m *Mixture) Fraction(g Gas) float64 {
	total := m.TotalMoles()
	if total <= 0 {
		return 0
	}
	return m.GetMoles(g) / total
}

// Price appraises the mixture by summing per-species mole prices.
func (m *Mixture) Price() float64 {
	var price float64
	for i, moles := range m.Moles {
		price += moles * gasInfo[i].PricePerMole
	}
	return price
}

func (m *Mixture) String() string {
	return fmt.Sprintf("%.2f kPa %.2f K %.3f mol in %.0f L", m.Pressure(), m.temperature, m.TotalMoles(), m.Volume)
}
