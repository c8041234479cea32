package devices

import (
	"context"
	"math"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// scrubberPressureCeiling is the outlet pressure above which a scrubber
// stops pushing gas into its pipe.
const scrubberPressureCeiling = 50 * gas.OneAtmosphere

// VentScrubberSystem pulls filtered gases (or, when siphoning, everything)
// off its tile into its outlet pipe.
type VentScrubberSystem struct{ w *World }

func (s *VentScrubberSystem) Name() string { return "vent_scrubber" }

func (s *VentScrubberSystem) Update(_ context.Context, ev core.UpdateEvent) {
	w := s.w
	w.Scrubbers.Each(func(e model.Entity, scrubber *model.VentScrubber) {
		app := scrubberAppearance(*scrubber, w.active(e))
		w.Appearance.Apply(e, app)
		if app.State == model.VisualWelded || app.State == model.VisualOff {
			return
		}
		outlet, _, ok := w.nodeAir(e, scrubber.Outlet)
		if !ok {
			return
		}
		tile := w.tile(ev, e)
		if tile == nil {
			return
		}
		scrub(*scrubber, tile.Air, outlet)
		if !scrubber.WideNet {
			return
		}
		for _, adj := range tile.Adjacent() {
			scrub(*scrubber, adj.Air, outlet)
		}
	})
}

func scrubberAppearance(scrubber model.VentScrubber, active bool) model.Appearance {
	app := model.Appearance{PressureTier: model.NoGauge}
	switch {
	case scrubber.Welded:
		app.State = model.VisualWelded
	case !scrubber.Enabled || !active:
		app.State = model.VisualOff
	case scrubber.Mode == model.ScrubberSiphoning:
		app.State = model.VisualSiphoning
		app.Enabled = true
	default:
		app.State = model.VisualScrubbing
		app.Enabled = true
	}
	return app
}

// scrub moves gas from one tile into the outlet and returns the moles that
// ended up in the outlet.
func scrub(scrubber model.VentScrubber, tile, outlet *gas.Mixture) float64 {
	if tile == nil || tile.Volume <= 0 {
		return 0
	}
	if outlet.Pressure() >= scrubberPressureCeiling {
		return 0
	}

	before := outlet.TotalMoles()
	switch scrubber.Mode {
	case model.ScrubberScrubbing:
		moles := math.Min(1, scrubber.VolumeRate/tile.Volume*tile.TotalMoles())
		removed := tile.Remove(moles)
		if removed.TotalMoles() < gas.GasMinMoles {
			tile.Merge(removed)
			return 0
		}
		removed.ScrubInto(outlet, scrubber.FilterGases)
		// Whatever the filter did not take goes back.
		tile.Merge(removed)
	case model.ScrubberSiphoning:
		removed := tile.Remove(tile.TotalMoles() * scrubber.VolumeRate / tile.Volume)
		outlet.Merge(removed)
	}
	return outlet.TotalMoles() - before
}
