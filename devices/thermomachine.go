package devices

import (
	"context"
	"math"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// ThermoMachineSystem pulls inlet gas towards each machine's target
// temperature, weighted by the machine's own heat capacity.
type ThermoMachineSystem struct{ w *World }

func (s *ThermoMachineSystem) Name() string { return "thermomachine" }

func (s *ThermoMachineSystem) Update(_ context.Context, _ core.UpdateEvent) {
	w := s.w
	w.ThermoMachines.Each(func(e model.Entity, tm *model.ThermoMachine) {
		inlet, _, ok := w.nodeAir(e, tm.Inlet)
		on := ok && tm.Enabled && w.active(e) && w.powered(e)
		w.Appearance.Apply(e, model.Appearance{State: onOff(on), Enabled: on, PressureTier: model.NoGauge})
		if !on {
			return
		}
		thermoBlend(*tm, inlet)
	})
}

// powered reports whether e has power, treating devices without a power
// receiver as always powered.
func (w *World) powered(e model.Entity) bool {
	p, ok := w.Power.Get(e)
	return !ok || p.Powered
}

// ClampTarget limits t to the machine's range.
func ClampTarget(tm model.ThermoMachine, t float64) float64 {
	return math.Min(math.Max(t, tm.MinTemperature), tm.MaxTemperature)
}

// thermoBlend mixes the inlet's temperature with the clamped target.
func thermoBlend(tm model.ThermoMachine, inlet *gas.Mixture) {
	airCap := inlet.HeatCapacity()
	combined := airCap + tm.HeatCapacity
	if combined <= 0 {
		return
	}
	target := ClampTarget(tm, tm.TargetTemperature)
	inlet.SetTemperature((tm.HeatCapacity*target + airCap*inlet.Temperature()) / combined)
}
