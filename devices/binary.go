package devices

import (
	"context"
	"math"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// pumpTargetEpsilon is how close to its target a pressure pump stops.
const pumpTargetEpsilon = 0.0000001

// PressurePumpSystem pumps inlet gas into the outlet until the outlet
// reaches the pump's target pressure.
type PressurePumpSystem struct{ w *World }

func (s *PressurePumpSystem) Name() string { return "pressure_pump" }

func (s *PressurePumpSystem) Update(_ context.Context, _ core.UpdateEvent) {
	w := s.w
	w.PressurePumps.Each(func(e model.Entity, pump *model.PressurePump) {
		on := pump.Enabled && w.active(e)
		w.Appearance.Apply(e, model.Appearance{State: onOff(on), Enabled: on, PressureTier: model.NoGauge})
		if !on {
			return
		}
		inlet, _, ok := w.nodeAir(e, pump.Inlet)
		if !ok {
			return
		}
		outlet, _, ok := w.nodeAir(e, pump.Outlet)
		if !ok {
			return
		}
		pumpPressure(*pump, inlet, outlet)
	})
}

func pumpPressure(pump model.PressurePump, inlet, outlet *gas.Mixture) float64 {
	out := outlet.Pressure()
	if math.Abs(pump.TargetPressure-out) <= pumpTargetEpsilon {
		return 0
	}
	if !(inlet.TotalMoles() > 0) || !(inlet.Temperature() > 0) {
		return 0
	}
	moles := (pump.TargetPressure - out) * outlet.Volume / (inlet.Temperature() * gas.R)
	if moles <= 0 {
		return 0
	}
	removed := inlet.Remove(moles)
	outlet.Merge(removed)
	return removed.TotalMoles()
}

// VolumePumpSystem moves a fixed volume of inlet gas per second. While
// overclocked it works against higher pressures but leaks to the tile.
type VolumePumpSystem struct{ w *World }

func (s *VolumePumpSystem) Name() string { return "volume_pump" }

func (s *VolumePumpSystem) Update(_ context.Context, ev core.UpdateEvent) {
	w := s.w
	w.VolumePumps.Each(func(e model.Entity, pump *model.VolumePump) {
		on := pump.Enabled && w.active(e)
		w.Appearance.Apply(e, model.Appearance{State: onOff(on), Enabled: on, PressureTier: model.NoGauge})
		if !on {
			return
		}
		inlet, _, ok := w.nodeAir(e, pump.Inlet)
		if !ok {
			return
		}
		outlet, _, ok := w.nodeAir(e, pump.Outlet)
		if !ok {
			return
		}
		pumpVolume(*pump, inlet, outlet, w.environment(ev, e), ev.Dt)
	})
}

// pumpVolume returns the moles that reached the outlet.
func pumpVolume(pump model.VolumePump, inlet, outlet, env *gas.Mixture, dt float64) float64 {
	in, out := inlet.Pressure(), outlet.Pressure()
	if in < pump.LowerThreshold || (out > pump.HigherThreshold && !pump.Overclocked) {
		return 0
	}
	if pump.Overclocked && out-in > pump.OverclockThreshold {
		return 0
	}
	removed := inlet.RemoveVolume(pump.TransferRate * dt)
	if pump.Overclocked && env != nil {
		env.Merge(removed.RemoveRatio(pump.LeakRatio))
	}
	outlet.Merge(removed)
	return removed.TotalMoles()
}

// PassiveGateSystem lets gas flow one way while the outlet is below target
// and the inlet is higher.
type PassiveGateSystem struct{ w *World }

func (s *PassiveGateSystem) Name() string { return "passive_gate" }

func (s *PassiveGateSystem) Update(_ context.Context, _ core.UpdateEvent) {
	w := s.w
	w.PassiveGates.Each(func(e model.Entity, gate *model.PassiveGate) {
		if !gate.Enabled || !w.active(e) {
			return
		}
		inlet, _, ok := w.nodeAir(e, gate.Inlet)
		if !ok {
			return
		}
		outlet, _, ok := w.nodeAir(e, gate.Outlet)
		if !ok {
			return
		}
		w.Atmos.ReleaseGasTo(inlet, outlet, gate.TargetPressure)
	})
}

// FilterSystem passes inlet gas to the outlet, diverting the filtered
// species to the side port.
type FilterSystem struct{ w *World }

func (s *FilterSystem) Name() string { return "filter" }

func (s *FilterSystem) Update(_ context.Context, ev core.UpdateEvent) {
	w := s.w
	w.Filters.Each(func(e model.Entity, f *model.Filter) {
		on := f.Enabled && w.active(e)
		w.Appearance.Apply(e, model.Appearance{State: onOff(on), Enabled: on, PressureTier: model.NoGauge})
		if !on {
			return
		}
		inlet, _, ok := w.nodeAir(e, f.Inlet)
		if !ok {
			return
		}
		filtered, _, ok := w.nodeAir(e, f.Filtered)
		if !ok {
			return
		}
		outlet, _, ok := w.nodeAir(e, f.Outlet)
		if !ok {
			return
		}
		filterGas(*f, inlet, outlet, filtered, ev.Dt)
	})
}

func filterGas(f model.Filter, inlet, outlet, filtered *gas.Mixture, dt float64) {
	if outlet.Pressure() >= gas.MaxOutputPressure || inlet.Volume <= 0 {
		return
	}
	ratio := f.TransferRate * dt / inlet.Volume
	if ratio <= 0 {
		return
	}
	removed := inlet.RemoveRatio(ratio)

	if f.FilteredGas != nil && f.FilteredGas.Valid() {
		g := *f.FilteredGas
		out := gas.NewMixture(removed.Volume)
		out.SetTemperature(removed.Temperature())
		out.SetMoles(g, removed.GetMoles(g))
		removed.SetMoles(g, 0)

		target := inlet
		if filtered.Pressure() < gas.MaxOutputPressure {
			target = filtered
		}
		target.Merge(out)
	}
	outlet.Merge(removed)
}

// MixerSystem draws from two inlets at a fixed concentration until the
// outlet reaches target pressure.
type MixerSystem struct{ w *World }

func (s *MixerSystem) Name() string { return "mixer" }

func (s *MixerSystem) Update(_ context.Context, _ core.UpdateEvent) {
	w := s.w
	w.Mixers.Each(func(e model.Entity, m *model.Mixer) {
		on := m.Enabled && w.active(e)
		w.Appearance.Apply(e, model.Appearance{State: onOff(on), Enabled: on, PressureTier: model.NoGauge})
		if !on {
			return
		}
		one, _, ok := w.nodeAir(e, m.InletOne)
		if !ok {
			return
		}
		two, _, ok := w.nodeAir(e, m.InletTwo)
		if !ok {
			return
		}
		outlet, _, ok := w.nodeAir(e, m.Outlet)
		if !ok {
			return
		}
		mix(*m, one, two, outlet)
	})
}

func mix(m model.Mixer, one, two, outlet *gas.Mixture) {
	out := outlet.Pressure()
	if out >= m.TargetPressure {
		return
	}
	concOne := math.Min(math.Max(m.InletOneConcentration, 0), 1)
	concTwo := 1 - concOne
	general := (m.TargetPressure - out) * outlet.Volume / gas.R

	var molesOne, molesTwo float64
	if one.Temperature() > 0 {
		molesOne = concOne * general / one.Temperature()
	}
	if two.Temperature() > 0 {
		molesTwo = concTwo * general / two.Temperature()
	}

	switch {
	case concTwo <= 0:
		if one.Temperature() <= 0 {
			return
		}
		molesOne = math.Min(molesOne, one.TotalMoles())
		molesTwo = 0
	case concOne <= 0:
		if two.Temperature() <= 0 {
			return
		}
		molesOne = 0
		molesTwo = math.Min(molesTwo, two.TotalMoles())
	default:
		if molesOne <= 0 || molesTwo <= 0 {
			return
		}
		if one.TotalMoles() < molesOne || two.TotalMoles() < molesTwo {
			ratio := math.Min(one.TotalMoles()/molesOne, two.TotalMoles()/molesTwo)
			molesOne *= ratio
			molesTwo *= ratio
		}
	}

	if molesOne > 0 {
		outlet.Merge(one.Remove(molesOne))
	}
	if molesTwo > 0 {
		outlet.Merge(two.Remove(molesTwo))
	}
}
