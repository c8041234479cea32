package devices

import (
	"context"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// OutletInjectorSystem drains each injector's inlet into its tile at a
// fixed volume rate, with no pressure target.
type OutletInjectorSystem struct{ w *World }

func (s *OutletInjectorSystem) Name() string { return "outlet_injector" }

func (s *OutletInjectorSystem) Update(_ context.Context, ev core.UpdateEvent) {
	w := s.w
	w.Injectors.Each(func(e model.Entity, inj *model.OutletInjector) {
		on := inj.Enabled && w.active(e)
		w.Appearance.Apply(e, model.Appearance{State: onOff(on), Enabled: on, PressureTier: model.NoGauge})
		if !on {
			return
		}
		inlet, _, ok := w.nodeAir(e, inj.Inlet)
		if !ok {
			return
		}
		env := w.environment(ev, e)
		if env == nil {
			return
		}
		inject(*inj, inlet, env)
	})
}

func inject(inj model.OutletInjector, inlet, env *gas.Mixture) float64 {
	if inlet.Temperature() <= 0 {
		return 0
	}
	removed := inlet.Remove(inlet.Pressure() * inj.VolumeRate / (inlet.Temperature() * gas.R))
	env.Merge(removed)
	return removed.TotalMoles()
}

func onOff(on bool) model.VisualState {
	if on {
		return model.VisualOn
	}
	return model.VisualOff
}
