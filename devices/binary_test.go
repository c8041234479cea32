package devices

import (
	"context"
	"testing"

	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPumpPressureReachesTarget(t *testing.T) {
	inlet := atPressure(gas.Nitrogen, 200, 500, gas.T20C)
	outlet := gas.NewMixture(200)
	total := inlet.TotalMoles()
	pump := model.DefaultPressurePump()

	moved := pumpPressure(pump, inlet, outlet)
	assert.Greater(t, moved, 0.0)
	assert.InDelta(t, gas.OneAtmosphere, outlet.Pressure(), 1e-9)
	assert.InDelta(t, total, inlet.TotalMoles()+outlet.TotalMoles(), 1e-9)

	assert.Zero(t, pumpPressure(pump, inlet, outlet), "already at target")
}

func TestPumpPressureNeverPullsBack(t *testing.T) {
	inlet := atPressure(gas.Nitrogen, 200, 50, gas.T20C)
	outlet := atPressure(gas.Nitrogen, 200, 300, gas.T20C)
	before := outlet.TotalMoles()

	assert.Zero(t, pumpPressure(model.DefaultPressurePump(), inlet, outlet))
	assert.Equal(t, before, outlet.TotalMoles())
}

func TestPumpVolumeMovesRateTimesDt(t *testing.T) {
	inlet := atPressure(gas.Nitrogen, 200, 500, gas.T20C)
	outlet := gas.NewMixture(200)
	total := inlet.TotalMoles()

	moved := pumpVolume(model.DefaultVolumePump(), inlet, outlet, nil, 0.5)
	assert.InDelta(t, total/2, moved, 1e-9)
	assert.InDelta(t, total/2, outlet.TotalMoles(), 1e-9)
	assert.InDelta(t, total/2, inlet.TotalMoles(), 1e-9)
}

func TestPumpVolumeThresholds(t *testing.T) {
	pump := model.DefaultVolumePump()

	empty := gas.NewMixture(200)
	assert.Zero(t, pumpVolume(pump, empty, gas.NewMixture(200), nil, 1))

	inlet := atPressure(gas.Nitrogen, 200, 500, gas.T20C)
	full := atPressure(gas.Nitrogen, 200, pump.HigherThreshold+100, gas.T20C)
	assert.Zero(t, pumpVolume(pump, inlet, full, nil, 1))

	pump.Overclocked = true
	assert.Zero(t, pumpVolume(pump, inlet, full, nil, 1), "gap above overclock threshold")

	near := atPressure(gas.Nitrogen, 200, pump.HigherThreshold+100, gas.T20C)
	highInlet := atPressure(gas.Nitrogen, 200, pump.HigherThreshold, gas.T20C)
	assert.Greater(t, pumpVolume(pump, highInlet, near, nil, 1), 0.0)
}

func TestOverclockedVolumePumpLeaks(t *testing.T) {
	pump := model.DefaultVolumePump()
	pump.Overclocked = true
	inlet := atPressure(gas.Nitrogen, 200, 500, gas.T20C)
	outlet := gas.NewMixture(200)
	env := gas.NewStationAir()
	envN2 := env.GetMoles(gas.Nitrogen)
	total := inlet.TotalMoles()

	moved := pumpVolume(pump, inlet, outlet, env, 1)
	assert.InDelta(t, 0.9*total, moved, 1e-9)
	assert.InDelta(t, 0.1*total, env.GetMoles(gas.Nitrogen)-envN2, 1e-9)
	assert.Zero(t, inlet.TotalMoles())
}

func TestFilterDivertsFilteredGas(t *testing.T) {
	plasma := gas.Plasma
	f := model.DefaultFilter()
	f.FilteredGas = &plasma
	inlet := mixture(200, gas.T20C, map[gas.Gas]float64{gas.Oxygen: 50, gas.Plasma: 50})
	outlet := gas.NewMixture(200)
	side := gas.NewMixture(200)

	filterGas(f, inlet, outlet, side, 0.5)
	assert.InDelta(t, 25.0, outlet.GetMoles(gas.Oxygen), 1e-9)
	assert.Zero(t, outlet.GetMoles(gas.Plasma))
	assert.InDelta(t, 25.0, side.GetMoles(gas.Plasma), 1e-9)
	assert.InDelta(t, 25.0, inlet.GetMoles(gas.Oxygen), 1e-9)
	assert.InDelta(t, 25.0, inlet.GetMoles(gas.Plasma), 1e-9)
}

func TestFilterReturnsGasWhenSideIsFull(t *testing.T) {
	plasma := gas.Plasma
	f := model.DefaultFilter()
	f.FilteredGas = &plasma
	inlet := mixture(200, gas.T20C, map[gas.Gas]float64{gas.Oxygen: 50, gas.Plasma: 50})
	outlet := gas.NewMixture(200)
	side := atPressure(gas.Nitrogen, 200, gas.MaxOutputPressure+500, gas.T20C)

	filterGas(f, inlet, outlet, side, 0.5)
	assert.InDelta(t, 50.0, inlet.GetMoles(gas.Plasma), 1e-9)
	assert.Zero(t, side.GetMoles(gas.Plasma))
	assert.InDelta(t, 25.0, outlet.GetMoles(gas.Oxygen), 1e-9)
}

func TestFilterWithoutGasPassesEverything(t *testing.T) {
	inlet := mixture(200, gas.T20C, map[gas.Gas]float64{gas.Oxygen: 50, gas.Plasma: 50})
	outlet := gas.NewMixture(200)
	side := gas.NewMixture(200)

	filterGas(model.DefaultFilter(), inlet, outlet, side, 1)
	assert.InDelta(t, 100.0, outlet.TotalMoles(), 1e-9)
	assert.Zero(t, side.TotalMoles())
}

func TestMixerHitsConcentrationAndTarget(t *testing.T) {
	m := model.DefaultMixer()
	m.InletOneConcentration = 0.25
	one := atPressure(gas.Oxygen, 200, 500, gas.T20C)
	two := atPressure(gas.Nitrogen, 200, 500, gas.T20C)
	outlet := gas.NewMixture(200)

	mix(m, one, two, outlet)
	assert.InDelta(t, gas.OneAtmosphere, outlet.Pressure(), 1e-9)
	assert.InDelta(t, 0.25, outlet.Fraction(gas.Oxygen), 1e-12)

	before := outlet.TotalMoles()
	mix(m, one, two, outlet)
	assert.InDelta(t, before, outlet.TotalMoles(), 1e-9, "outlet already at target")
}

func TestMixerScalesDownWhenAnInletRunsShort(t *testing.T) {
	m := model.DefaultMixer()
	one := mixture(200, gas.T20C, map[gas.Gas]float64{gas.Oxygen: 1})
	two := atPressure(gas.Nitrogen, 200, 500, gas.T20C)
	outlet := gas.NewMixture(200)

	mix(m, one, two, outlet)
	assert.InDelta(t, 0, one.TotalMoles(), 1e-9)
	assert.InDelta(t, 1.0, outlet.GetMoles(gas.Nitrogen), 1e-9)
	assert.InDelta(t, 0.5, outlet.Fraction(gas.Oxygen), 1e-12)
}

func TestMixerSingleInlet(t *testing.T) {
	m := model.DefaultMixer()
	m.InletOneConcentration = 1
	one := atPressure(gas.Oxygen, 200, 500, gas.T20C)
	two := atPressure(gas.Nitrogen, 200, 500, gas.T20C)
	twoBefore := two.TotalMoles()
	outlet := gas.NewMixture(200)

	mix(m, one, two, outlet)
	assert.InDelta(t, gas.OneAtmosphere, outlet.Pressure(), 1e-9)
	assert.Equal(t, twoBefore, two.TotalMoles())
}

// pipeLine lays inlet pipe, device, outlet pipe along the x axis.
func (h *harness) pipeLine(ctx context.Context, spawnDevice func(Placement) (model.Entity, error)) (in, dev, out model.Entity) {
	h.t.Helper()
	var err error
	in, err = h.world.SpawnPipe(ctx, Placement{Pos: model.Vec2i{X: 0}, Dir: model.East, Anchored: true})
	require.NoError(h.t, err)
	dev, err = spawnDevice(Placement{Pos: model.Vec2i{X: 1}, Dir: model.East, Anchored: true})
	require.NoError(h.t, err)
	out, err = h.world.SpawnPipe(ctx, Placement{Pos: model.Vec2i{X: 2}, Dir: model.West, Anchored: true})
	require.NoError(h.t, err)
	h.step(1)
	return in, dev, out
}

func TestPressurePumpSystemBetweenPipes(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	in, pump, out := h.pipeLine(ctx, func(p Placement) (model.Entity, error) {
		return h.world.SpawnPressurePump(ctx, p, model.DefaultPressurePump())
	})
	require.Equal(t, 2, h.net(pump, model.NodeInlet).NodeCount())
	require.Same(t, h.net(pump, model.NodeInlet), h.net(in, model.NodePipe))
	require.Same(t, h.net(pump, model.NodeOutlet), h.net(out, model.NodePipe))

	h.air(in, model.NodePipe).Merge(atPressure(gas.Nitrogen, 400, 5*gas.OneAtmosphere, gas.T20C))
	total := h.totalMoles()

	h.step(1)
	assert.InDelta(t, gas.OneAtmosphere, h.air(out, model.NodePipe).Pressure(), 1e-6)
	assert.InDelta(t, total, h.totalMoles(), 1e-9)
	assert.Equal(t, model.VisualOn, h.appearance(pump).State)

	pp, _ := h.world.PressurePumps.Get(pump)
	pp.Enabled = false
	h.step(1)
	assert.Equal(t, model.VisualOff, h.appearance(pump).State)
}

func TestUnanchoredPumpIsIdle(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	pump, err := h.world.SpawnVolumePump(ctx, Placement{Dir: model.East}, model.DefaultVolumePump())
	require.NoError(t, err)
	h.step(1)
	h.air(pump, model.NodeInlet).Merge(atPressure(gas.Nitrogen, 200, 500, gas.T20C))

	h.step(1)
	assert.Zero(t, h.air(pump, model.NodeOutlet).TotalMoles())
	assert.False(t, h.appearance(pump).Enabled)
}

func TestPassiveGateSystem(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	in, _, out := h.pipeLine(ctx, func(p Placement) (model.Entity, error) {
		return h.world.SpawnPassiveGate(ctx, p, model.DefaultPassiveGate())
	})
	h.air(in, model.NodePipe).Merge(atPressure(gas.Nitrogen, 400, 5*gas.OneAtmosphere, gas.T20C))
	total := h.totalMoles()

	h.step(10)
	assert.InDelta(t, gas.OneAtmosphere, h.air(out, model.NodePipe).Pressure(), 1e-6)
	assert.InDelta(t, total, h.totalMoles(), 1e-9)
}

func TestFilterSystemUsesSidePort(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	plasma := gas.Plasma
	f := model.DefaultFilter()
	f.FilteredGas = &plasma
	in, filter, out := h.pipeLine(ctx, func(p Placement) (model.Entity, error) {
		p.Side = model.North
		return h.world.SpawnFilter(ctx, p, f)
	})
	h.air(in, model.NodePipe).Merge(mixture(400, gas.T20C, map[gas.Gas]float64{gas.Oxygen: 40, gas.Plasma: 40}))

	h.step(1)
	assert.Zero(t, h.air(out, model.NodePipe).GetMoles(gas.Plasma))
	assert.Greater(t, h.air(out, model.NodePipe).GetMoles(gas.Oxygen), 0.0)
	assert.Greater(t, h.air(filter, model.NodeFiltered).GetMoles(gas.Plasma), 0.0)
}
