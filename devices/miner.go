package devices

import (
	"context"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

// MinerSystem spawns each miner's gas onto its tile while the tile stays
// below the miner's pressure and amount limits.
type MinerSystem struct{ w *World }

func (s *MinerSystem) Name() string { return "miner" }

func (s *MinerSystem) Update(_ context.Context, ev core.UpdateEvent) {
	w := s.w
	w.Miners.Each(func(e model.Entity, m *model.Miner) {
		if !w.active(e) {
			return
		}
		tile := w.tile(ev, e)
		m.Broken = !minerOperational(*m, tile)

		app := model.Appearance{State: onOff(m.Enabled), Enabled: m.Enabled, PressureTier: model.NoGauge}
		if m.Broken {
			app.State = model.VisualBroken
		}
		w.Appearance.Apply(e, app)

		if m.Broken || !m.Enabled || !m.SpawnGas.Valid() || m.SpawnAmount <= 0 {
			return
		}
		mine(*m, tile, ev.Dt)
	})
}

// minerOperational reports whether the tile has room for more gas.
func minerOperational(m model.Miner, tile *core.TileAtmosphere) bool {
	if tile == nil || tile.Air == nil {
		return false
	}
	if tile.Air.Pressure() > m.MaxExternalPressure {
		return false
	}
	return tile.Air.TotalMoles() <= m.MaxExternalAmount
}

func mine(m model.Miner, tile *core.TileAtmosphere, dt float64) bool {
	spawned := gas.NewMixture(1)
	spawned.SetTemperature(m.SpawnTemperature)
	spawned.SetMoles(m.SpawnGas, m.SpawnAmount*dt)
	return tile.AssumeAir(spawned)
}
