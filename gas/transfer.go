package gas

import "math"

// releaseFriction is the pressure difference a release valve needs to overcome.
const releaseFriction = 10.0

// ReleaseGasTo moves gas from src towards target pressure in dst. A nil dst
// releases into space and the removed gas is discarded. It reports whether
// any gas moved.
func ReleaseGasTo(src, dst *Mixture, targetPressure float64) bool {
	var outPressure float64
	volume := CellVolume
	if dst != nil {
		outPressure = dst.Pressure()
		volume = dst.Volume
	}
	inPressure := src.Pressure()

	if outPressure >= math.Min(targetPressure, inPressure-releaseFriction) {
		return false
	}
	if !(src.TotalMoles() > 0) || !(src.Temperature() > 0) {
		return false
	}

	delta := math.Min(targetPressure-outPressure, (inPressure-outPressure)/2)
	transfer := delta * volume / (src.Temperature() * R)
	if transfer <= 0 {
		return false
	}

	removed := src.Remove(transfer)
	if dst != nil {
		dst.Merge(removed)
	}
	return true
}

// PumpGasTo moves enough gas from src to raise dst to targetPressure,
// regardless of src's own pressure. It reports whether any gas moved.
func PumpGasTo(src, dst *Mixture, targetPressure float64) bool {
	delta := targetPressure - dst.Pressure()
	if delta < 0.01 {
		return false
	}
	if !(src.TotalMoles() > 0) || !(src.Temperature() > 0) {
		return false
	}
	dst.Merge(src.Remove(delta * dst.Volume / (src.Temperature() * R)))
	return true
}

// DivideInto splits src between receivers in proportion to their volumes and
// merges each share in. Immutable receivers are skipped. src itself is not
// modified; the shares always sum to src's moles exactly.
func DivideInto(src *Mixture, receivers []*Mixture) {
	var total float64
	last := -1
	for i, r := range receivers {
		if r == nil || r.Immutable {
			continue
		}
		total += r.Volume
		last = i
	}
	if total <= 0 || last < 0 {
		return
	}

	remaining := src.Moles
	for i, r := range receivers {
		if r == nil || r.Immutable {
			continue
		}
		share := &Mixture{Volume: r.Volume, temperature: src.temperature}
		if i == last {
			share.Moles = remaining
		} else {
			fraction := r.Volume / total
			for g := range share.Moles {
				share.Moles[g] = src.Moles[g] * fraction
				remaining[g] = math.Max(remaining[g]-share.Moles[g], 0)
			}
		}
		r.Merge(share)
	}
}

// FractionToEqualizePressure returns the fraction (0..1) of the higher
// pressure mixture's moles that must move to the lower pressure mixture for
// both to end at the same pressure, accounting for the temperature change on
// the receiving side.
func FractionToEqualizePressure(a, b *Mixture) float64 {
	if a.Pressure() < b.Pressure() {
		a, b = b, a
	}
	if a.Volume <= 0 || a.TotalMoles() <= 0 || a.Temperature() <= 0 || a.HeatCapacity() <= MinimumHeatCapacity {
		return 0
	}

	volumeRatio := b.Volume / a.Volume
	molesRatio := b.TotalMoles() / a.TotalMoles()
	temperatureRatio := b.Temperature() / a.Temperature()
	heatCapacityRatio := b.HeatCapacity() / a.HeatCapacity()

	qa := 1 + volumeRatio
	qb := molesRatio - volumeRatio + heatCapacityRatio*(temperatureRatio+volumeRatio)
	qc := heatCapacityRatio * (molesRatio*temperatureRatio - volumeRatio)

	disc := qb*qb - 4*qa*qc
	if disc < 0 {
		return 0
	}
	x := (-qb + math.Sqrt(disc)) / (2 * qa)
	return math.Min(math.Max(x, 0), 1)
}

// MolesToPressureThreshold returns how many moles must leave mix for its
// pressure to fall to target, assuming free expansion at constant temperature.
func MolesToPressureThreshold(mix *Mixture, target float64) float64 {
	if mix.Temperature() <= 0 {
		return 0
	}
	return mix.TotalMoles() - target*mix.Volume/(R*mix.Temperature())
}

// IsProbablySafe reports whether a mixture is within breathable pressure and
// temperature bounds. Composition is not checked.
func IsProbablySafe(mix *Mixture) bool {
	if mix == nil {
		return false
	}
	p := mix.Pressure()
	if p <= WarningLowPressure || p >= WarningHighPressure {
		return false
	}
	t := mix.Temperature()
	return t > 260 && t < 360
}
