package gas

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Share moves 1/(adjacent+1) of every per-species difference between m and
// sharer, carrying heat with the moved gas, then conducts heat across the
// boundary. It returns the net moles moved from m to sharer.
//
// An immutable side acts as an infinite sink or source: gas shared into space
// is gone.
func (m *Mixture) Share(sharer *Mixture, adjacent int) float64 {
	if sharer == nil {
		return 0
	}
	if adjacent < 0 {
		adjacent = 0
	}

	toSharer := &Mixture{Volume: m.Volume, temperature: m.temperature}
	toUs := &Mixture{Volume: sharer.Volume, temperature: sharer.temperature}
	var moved float64
	for i := range m.Moles {
		delta := (m.Moles[i] - sharer.Moles[i]) / float64(adjacent+1)
		if math.Abs(delta) < GasMinMoles {
			continue
		}
		if delta > 0 {
			toSharer.Moles[i] = delta
		} else {
			toUs.Moles[i] = -delta
		}
		moved += delta
	}

	if !m.Immutable {
		floats.Sub(m.Moles[:], toSharer.Moles[:])
	}
	if !sharer.Immutable {
		floats.Sub(sharer.Moles[:], toUs.Moles[:])
	}
	m.Merge(toUs)
	sharer.Merge(toSharer)

	m.TemperatureShare(sharer, OpenHeatTransferCoefficient)
	return moved
}

// TemperatureShare conducts heat between m and sharer with the given
// coefficient and returns the sharer's new temperature.
func (m *Mixture) TemperatureShare(sharer *Mixture, coefficient float64) float64 {
	delta := m.temperature - sharer.temperature
	if math.Abs(delta) <= MinimumTemperatureDeltaToConsider {
		return sharer.temperature
	}
	hc := m.HeatCapacity()
	shc := sharer.HeatCapacity()
	if hc <= MinimumHeatCapacity || shc <= MinimumHeatCapacity {
		return sharer.temperature
	}
	heat := coefficient * delta * (hc * shc / (hc + shc))
	m.SetTemperature(m.temperature - heat/hc)
	sharer.SetTemperature(sharer.temperature + heat/shc)
	return sharer.temperature
}
