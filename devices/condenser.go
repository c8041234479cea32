package devices

import (
	"context"
	"math"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// condenserAlpha tunes conversion to roughly one reagent unit per second.
const condenserAlpha = 0.8

// CondenserSystem converts inlet gas into reagents using the power it
// receives.
type CondenserSystem struct{ w *World }

func (s *CondenserSystem) Name() string { return "condenser" }

func (s *CondenserSystem) Update(_ context.Context, ev core.UpdateEvent) {
	w := s.w
	w.Condensers.Each(func(e model.Entity, c *model.Condenser) {
		if !w.active(e) {
			return
		}
		power, ok := w.Power.Get(e)
		if !ok || power.Received() <= 0 {
			return
		}
		inlet, _, ok := w.nodeAir(e, c.Inlet)
		if !ok {
			return
		}
		solution, ok := w.Solutions.Get(e)
		if !ok {
			return
		}
		moles := power.Received() * ev.Dt / (condenserAlpha * w.Atmos.GetHeatCapacity(inlet))
		condense(*c, inlet, solution, moles)
	})
}

// condense removes up to moles from inlet and turns them into reagents.
// Gas that does not fit in the solution goes back to the inlet. It returns
// the reagent units added.
func condense(c model.Condenser, inlet *gas.Mixture, solution *model.Solution, moles float64) float64 {
	if moles <= 0 || c.MolesToReagentMultiplier <= 0 {
		return 0
	}
	removed := inlet.Remove(moles)

	var added float64
	for _, g := range gas.Gases() {
		n := removed.GetMoles(g)
		if n <= 0 {
			continue
		}
		reagent := g.Info().Reagent
		if reagent == "" {
			inlet.AdjustMoles(g, n)
			continue
		}
		amount := n * c.MolesToReagentMultiplier
		accepted := addReagent(solution, reagent, amount)
		added += accepted
		if leftover := amount - accepted; leftover > 0 {
			inlet.AdjustMoles(g, leftover/c.MolesToReagentMultiplier)
		}
	}
	return added
}

// addReagent adds up to amount units of reagent, in hundredths, and returns
// what was accepted.
func addReagent(s *model.Solution, reagent string, amount float64) float64 {
	accepted := floorHundredths(math.Min(amount, s.AvailableVolume()))
	if accepted <= 0 {
		return 0
	}
	if s.Reagents == nil {
		s.Reagents = make(map[string]float64)
	}
	s.Reagents[reagent] += accepted
	return accepted
}

func floorHundredths(v float64) float64 {
	return math.Floor(v*100) / 100
}
