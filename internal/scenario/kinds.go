package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/signalsfoundry/atmos-simulator/devices"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

type builder func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error)

var builders = map[string]builder{
	"pipe": func(ctx context.Context, w *devices.World, p devices.Placement, _ Entity) (model.Entity, error) {
		return w.SpawnPipe(ctx, p)
	},
	"gas_port": func(ctx context.Context, w *devices.World, p devices.Placement, _ Entity) (model.Entity, error) {
		return w.SpawnGasPort(ctx, p)
	},
	"vent_pump":     buildVentPump,
	"vent_scrubber": buildScrubber,
	"passive_vent": func(ctx context.Context, w *devices.World, p devices.Placement, _ Entity) (model.Entity, error) {
		return w.SpawnPassiveVent(ctx, p, model.PassiveVent{})
	},
	"outlet_injector": func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
		inj := model.DefaultOutletInjector()
		inj.Enabled = e.enabled(inj.Enabled)
		if e.TransferRate > 0 {
			inj.VolumeRate = e.TransferRate
		}
		return w.SpawnInjector(ctx, p, inj)
	},
	"freezer": func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
		return buildThermo(ctx, w, p, e, model.DefaultFreezer())
	},
	"heater": func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
		return buildThermo(ctx, w, p, e, model.DefaultHeater())
	},
	"heat_exchanger": func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
		hx := model.DefaultHeatExchanger()
		if e.Outlet != nil && !*e.Outlet {
			hx.Outlet = ""
		}
		return w.SpawnHeatExchanger(ctx, p, hx)
	},
	"condenser": func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
		maxVolume := e.MaxVolume
		if maxVolume <= 0 {
			maxVolume = 1000
		}
		return w.SpawnCondenser(ctx, p, model.DefaultCondenser(), e.power(true), maxVolume)
	},
	"gas_tank": func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
		volume := p.Volume
		if volume <= 0 {
			volume = devices.DefaultNodeVolume
		}
		air, err := e.mixture(volume)
		if err != nil {
			return model.NoEntity, err
		}
		return w.SpawnGasTank(ctx, p, air)
	},
	"canister":      buildCanister,
	"portable_tank": buildPortableTank,
	"pressure_pump": func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
		pump := model.DefaultPressurePump()
		pump.Enabled = e.enabled(pump.Enabled)
		if e.TargetPressure > 0 {
			pump.TargetPressure = e.TargetPressure
		}
		return w.SpawnPressurePump(ctx, p, pump)
	},
	"volume_pump": func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
		pump := model.DefaultVolumePump()
		pump.Enabled = e.enabled(pump.Enabled)
		pump.Overclocked = e.Overclocked
		if e.TransferRate > 0 {
			pump.TransferRate = e.TransferRate
		}
		return w.SpawnVolumePump(ctx, p, pump)
	},
	"passive_gate": func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
		gate := model.DefaultPassiveGate()
		gate.Enabled = e.enabled(gate.Enabled)
		if e.TargetPressure > 0 {
			gate.TargetPressure = e.TargetPressure
		}
		return w.SpawnPassiveGate(ctx, p, gate)
	},
	"filter": func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
		f := model.DefaultFilter()
		f.Enabled = e.enabled(f.Enabled)
		if e.TransferRate > 0 {
			f.TransferRate = e.TransferRate
		}
		if e.Gas != "" {
			g, err := gas.ParseGas(e.Gas)
			if err != nil {
				return model.NoEntity, err
			}
			f.FilteredGas = &g
		}
		return w.SpawnFilter(ctx, p, f)
	},
	"mixer": func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
		m := model.DefaultMixer()
		m.Enabled = e.enabled(m.Enabled)
		if e.TargetPressure > 0 {
			m.TargetPressure = e.TargetPressure
		}
		if e.Concentration != nil {
			if *e.Concentration < 0 || *e.Concentration > 1 {
				return model.NoEntity, fmt.Errorf("%w: concentration %v outside [0,1]", ErrInvalidScenario, *e.Concentration)
			}
			m.InletOneConcentration = *e.Concentration
		}
		return w.SpawnMixer(ctx, p, m)
	},
	"miner": func(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
		g, err := gas.ParseGas(e.Gas)
		if err != nil {
			return model.NoEntity, err
		}
		m := model.DefaultMiner(g)
		m.Enabled = e.enabled(m.Enabled)
		if e.SpawnAmount > 0 {
			m.SpawnAmount = e.SpawnAmount
		}
		if e.Temperature > 0 {
			m.SpawnTemperature = e.Temperature
		}
		return w.SpawnMiner(ctx, p, m)
	},
}

// Kinds lists the entity kinds a scenario may place.
func Kinds() []string {
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	return out
}

func buildVentPump(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
	vent := model.DefaultVentPump()
	vent.Enabled = e.enabled(vent.Enabled)
	switch strings.ToLower(e.Mode) {
	case "", "releasing":
	case "siphoning":
		vent.Direction = model.PumpSiphoning
		vent.PressureChecks = model.BoundExternal
		vent.ExternalPressureBound = 0
	default:
		return model.NoEntity, fmt.Errorf("%w: vent mode %q", ErrInvalidScenario, e.Mode)
	}
	if e.TargetPressure > 0 {
		vent.ExternalPressureBound = e.TargetPressure
	}
	return w.SpawnVentPump(ctx, p, vent)
}

func buildScrubber(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
	s := model.DefaultVentScrubber()
	s.Enabled = e.enabled(s.Enabled)
	s.WideNet = e.WideNet
	switch strings.ToLower(e.Mode) {
	case "", "scrubbing":
	case "siphoning":
		s.Mode = model.ScrubberSiphoning
	default:
		return model.NoEntity, fmt.Errorf("%w: scrubber mode %q", ErrInvalidScenario, e.Mode)
	}
	if e.TransferRate > 0 {
		s.VolumeRate = e.TransferRate
	}
	if len(e.Scrub) > 0 {
		s.FilterGases = s.FilterGases[:0:0]
		for _, name := range e.Scrub {
			g, err := gas.ParseGas(name)
			if err != nil {
				return model.NoEntity, err
			}
			s.FilterGases = append(s.FilterGases, g)
		}
	}
	return w.SpawnScrubber(ctx, p, s)
}

func buildThermo(ctx context.Context, w *devices.World, p devices.Placement, e Entity, tm model.ThermoMachine) (model.Entity, error) {
	tm.Enabled = e.enabled(true)
	if e.Temperature > 0 {
		tm.TargetTemperature = min(max(e.Temperature, tm.MinTemperature), tm.MaxTemperature)
	}
	var power *model.PowerReceiver
	if e.Powered != nil || e.Load > 0 {
		pr := e.power(true)
		power = &pr
	}
	return w.SpawnThermoMachine(ctx, p, tm, power)
}

func buildCanister(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
	c := model.DefaultCanister()
	if e.Volume > 0 {
		c.Air.Volume = e.Volume
	}
	air, err := e.mixture(c.Air.Volume)
	if err != nil {
		return model.NoEntity, err
	}
	if air != nil {
		c.Air = air
	}
	if e.ReleasePressure > 0 {
		c.ReleasePressure = min(max(e.ReleasePressure, c.MinReleasePressure), c.MaxReleasePressure)
	}
	c.ReleaseValve = e.Valve
	p.Volume = 0
	return w.SpawnCanister(ctx, p, c)
}

func buildPortableTank(ctx context.Context, w *devices.World, p devices.Placement, e Entity) (model.Entity, error) {
	volume := e.Volume
	if volume <= 0 {
		volume = 70
	}
	air, err := e.mixture(volume)
	if err != nil {
		return model.NoEntity, err
	}
	if air == nil {
		air = gas.NewMixture(volume)
		air.SetTemperature(gas.T20C)
	}
	return w.SpawnPortableTank(ctx, p.Name, p.Pos, air)
}
