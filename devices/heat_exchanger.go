package devices

import (
	"context"
	"math"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// HeatExchangerSystem radiates and convects heat from pipe gas into the tile
// around each exchanger.
type HeatExchangerSystem struct{ w *World }

func (s *HeatExchangerSystem) Name() string { return "heat_exchanger" }

func (s *HeatExchangerSystem) Update(_ context.Context, ev core.UpdateEvent) {
	w := s.w
	w.HeatExchangers.Each(func(e model.Entity, hx *model.HeatExchanger) {
		if !w.active(e) {
			return
		}
		inlet, _, ok := w.nodeAir(e, hx.Inlet)
		if !ok {
			return
		}
		env := w.environment(ev, e)
		tileLoss := ev.Settings.SuperconductionTileLoss
		if hx.Outlet == "" {
			exchangeHeat(*hx, inlet, env, ev.Dt, tileLoss)
			return
		}
		outlet, _, ok := w.nodeAir(e, hx.Outlet)
		if !ok {
			return
		}
		exchangeFlow(*hx, inlet, outlet, env, ev.Dt, tileLoss)
	})
}

// exchangeFlow moves G*dP*dt moles from the higher to the lower pressure
// side, exchanging heat with the environment on the way.
func exchangeFlow(hx model.HeatExchanger, inlet, outlet, env *gas.Mixture, dt, tileLoss float64) {
	dn := hx.G * (inlet.Pressure() - outlet.Pressure()) * dt
	var xfer *gas.Mixture
	if dn > 0 {
		xfer = inlet.Remove(dn)
	} else {
		xfer = outlet.Remove(-dn)
	}
	exchangeHeat(hx, xfer, env, dt, tileLoss)
	if dn > 0 {
		outlet.Merge(xfer)
	} else {
		inlet.Merge(xfer)
	}
}

// exchangeHeat applies radiative then convective exchange between gas and
// env over dt. It returns the energy env gained, which equals the energy gas
// lost whenever env can hold heat; without env the gas radiates towards TCMB
// and the energy leaves the simulation.
func exchangeHeat(hx model.HeatExchanger, mix, env *gas.Mixture, dt, tileLoss float64) float64 {
	cx := mix.HeatCapacity()
	if cx < gas.MinimumHeatCapacity {
		return 0
	}

	radTemp := gas.TCMB
	hasEnv := false
	var cEnv float64
	if env != nil {
		cEnv = env.HeatCapacity()
		hasEnv = cEnv >= gas.MinimumHeatCapacity && env.TotalMoles() > 0
		if hasEnv {
			radTemp = env.Temperature()
		}
	}

	// How ΔT changes per joule moved, counting both sides.
	tdivq := 1 / cx
	if hasEnv {
		tdivq += 1 / cEnv
	}

	// Radiation: dT/dt = -kR*ΔT^4, integrated in closed form.
	dTR := mix.Temperature() - radTemp
	abs := math.Abs(dTR)
	a0 := tileLoss / math.Pow(gas.T20C, 4)
	kR := hx.Alpha * a0 * tdivq
	dT2R := dTR * math.Pow(1+3*kR*dt*abs*abs*abs, -1.0/3.0)
	dER := (dTR - dT2R) / tdivq
	mix.AddHeat(-dER)
	if !hasEnv {
		return 0
	}
	env.AddHeat(dER)

	// Convection: dT/dt = -k*ΔT.
	dT := mix.Temperature() - env.Temperature()
	k := hx.K * tdivq
	dT2 := dT * math.Exp(-k*dt)
	dE := (dT - dT2) / tdivq
	mix.AddHeat(-dE)
	env.AddHeat(dE)
	return dER + dE
}
