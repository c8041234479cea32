package devices

import (
	"context"
	"math"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// passiveVentThreshold is the pressure difference below which a passive
// vent does nothing.
const passiveVentThreshold = 0.5

// PassiveVentSystem equalises a pipe with its tile, unpowered.
type PassiveVentSystem struct{ w *World }

func (s *PassiveVentSystem) Name() string { return "passive_vent" }

func (s *PassiveVentSystem) Update(_ context.Context, ev core.UpdateEvent) {
	w := s.w
	w.PassiveVents.Each(func(e model.Entity, vent *model.PassiveVent) {
		if !w.active(e) {
			return
		}
		env := w.environment(ev, e)
		if env == nil {
			return
		}
		inlet, _, ok := w.nodeAir(e, vent.Inlet)
		if !ok {
			return
		}
		passiveVentTransfer(inlet, env)
	})
}

// passiveVentTransfer moves gas towards equal pressure and returns the moles
// moved into the environment (negative when drawing from it).
func passiveVentTransfer(inlet, env *gas.Mixture) float64 {
	envPressure := env.Pressure()
	inletPressure := inlet.Pressure()
	delta := math.Abs(envPressure - inletPressure)
	if delta <= passiveVentThreshold || (env.Temperature() <= 0 && inlet.Temperature() <= 0) {
		return 0
	}

	if envPressure < inletPressure {
		temperature := env.Temperature()
		if temperature <= 0 {
			temperature = inlet.Temperature()
		}
		removed := inlet.Remove(delta * env.Volume / (temperature * gas.R))
		env.Merge(removed)
		return removed.TotalMoles()
	}

	if env.Volume <= 0 {
		return 0
	}
	temperature := inlet.Temperature()
	if temperature <= 0 {
		temperature = env.Temperature()
	}
	moles := delta * inlet.Volume / (temperature * gas.R)
	moles = math.Min(moles, env.TotalMoles()*inlet.Volume/env.Volume)
	removed := env.Remove(moles)
	inlet.Merge(removed)
	return -removed.TotalMoles()
}
