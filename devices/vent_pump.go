package devices

import (
	"context"
	"math"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// maxPumpPressureDelta caps a vent pump's per-tick pressure change in kPa.
const maxPumpPressureDelta = 10000.0

// VentPumpSystem releases pipe gas into the room or siphons room air into
// the pipe, within the configured pressure bounds.
type VentPumpSystem struct{ w *World }

func (s *VentPumpSystem) Name() string { return "vent_pump" }

func (s *VentPumpSystem) Update(_ context.Context, ev core.UpdateEvent) {
	w := s.w
	w.VentPumps.Each(func(e model.Entity, vent *model.VentPump) {
		app := ventPumpAppearance(*vent, w.active(e))
		w.Appearance.Apply(e, app)
		if app.State == model.VisualWelded || app.State == model.VisualOff {
			return
		}
		pipe, _, ok := w.nodeAir(e, vent.Inlet)
		if !ok {
			return
		}
		env := w.environment(ev, e)
		if env == nil {
			return
		}
		ventPumpTransfer(*vent, pipe, env)
	})
}

// ventPumpAppearance maps the pump's state machine onto its visual state.
func ventPumpAppearance(vent model.VentPump, active bool) model.Appearance {
	app := model.Appearance{PressureTier: model.NoGauge}
	switch {
	case vent.Welded:
		app.State = model.VisualWelded
	case !vent.Enabled || !active:
		app.State = model.VisualOff
	case vent.Direction == model.PumpSiphoning:
		app.State = model.VisualSiphoning
		app.Enabled = true
	default:
		app.State = model.VisualReleasing
		app.Enabled = true
	}
	return app
}

// ventPumpTransfer performs one tick of pumping and returns the moles moved
// into the environment (negative when siphoning).
func ventPumpTransfer(vent model.VentPump, pipe, env *gas.Mixture) float64 {
	switch vent.Direction {
	case model.PumpReleasing:
		delta := maxPumpPressureDelta
		if vent.PressureChecks.Has(model.BoundExternal) {
			delta = math.Min(delta, vent.ExternalPressureBound-env.Pressure())
		}
		if vent.PressureChecks.Has(model.BoundInternal) {
			delta = math.Min(delta, pipe.Pressure()-vent.InternalPressureBound)
		}
		if delta <= 0 || pipe.Temperature() <= 0 {
			return 0
		}
		removed := pipe.Remove(delta * env.Volume / (pipe.Temperature() * gas.R))
		env.Merge(removed)
		return removed.TotalMoles()

	case model.PumpSiphoning:
		if env.Pressure() <= 0 || env.Temperature() <= 0 {
			return 0
		}
		ourMultiplier := pipe.Volume / (env.Temperature() * gas.R)
		moles := maxPumpPressureDelta * ourMultiplier
		if vent.PressureChecks.Has(model.BoundExternal) {
			moles = math.Min(moles, (env.Pressure()-vent.ExternalPressureBound)*env.Volume/(env.Temperature()*gas.R))
		}
		if vent.PressureChecks.Has(model.BoundInternal) {
			moles = math.Min(moles, (vent.InternalPressureBound-pipe.Pressure())*ourMultiplier)
		}
		if moles <= 0 {
			return 0
		}
		removed := env.Remove(moles)
		pipe.Merge(removed)
		return -removed.TotalMoles()
	}
	return 0
}
