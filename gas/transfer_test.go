package gas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReleaseGasToApproachesTarget(t *testing.T) {
	src := mixtureAt(1000, T20C, map[Gas]float64{Nitrogen: 400})
	dst := mixtureAt(50, T20C, nil)

	moved := ReleaseGasTo(src, dst, OneAtmosphere)

	assert.True(t, moved)
	assert.InDelta(t, OneAtmosphere, dst.Pressure(), 1e-6)
	assert.InDelta(t, 400.0, src.TotalMoles()+dst.TotalMoles(), 1e-9)
}

func TestReleaseGasToRespectsFriction(t *testing.T) {
	src := mixtureAt(100, T20C, nil)
	src.SetMoles(Oxygen, 5*100/(R*T20C)) // 5 kPa
	dst := mixtureAt(100, T20C, nil)
	if ReleaseGasTo(src, dst, OneAtmosphere) {
		t.Fatalf("ReleaseGasTo moved gas below the friction threshold")
	}
}

func TestReleaseGasToSpaceDiscards(t *testing.T) {
	src := mixtureAt(100, T20C, map[Gas]float64{Oxygen: 50})
	before := src.TotalMoles()
	assert.True(t, ReleaseGasTo(src, nil, OneAtmosphere))
	assert.Less(t, src.TotalMoles(), before)
}

func TestPumpGasTo(t *testing.T) {
	src := mixtureAt(100, T20C, map[Gas]float64{Oxygen: 1})
	dst := mixtureAt(100, T20C, map[Gas]float64{Oxygen: 1})
	assert.True(t, PumpGasTo(src, dst, dst.Pressure()*1.5))
	assert.InDelta(t, 1.5, dst.TotalMoles(), 1e-9)
	assert.False(t, PumpGasTo(src, dst, dst.Pressure()))
}

func TestDivideIntoByVolume(t *testing.T) {
	src := mixtureAt(30, 350, map[Gas]float64{Oxygen: 3, Nitrogen: 6})
	a := NewMixture(10)
	b := NewMixture(20)

	DivideInto(src, []*Mixture{a, b})

	assert.InDelta(t, 3.0, a.TotalMoles(), 1e-12)
	assert.InDelta(t, 6.0, b.TotalMoles(), 1e-12)
	assert.InDelta(t, src.TotalMoles(), a.TotalMoles()+b.TotalMoles(), 1e-12)
	assert.Equal(t, 350.0, a.Temperature())
	assert.Equal(t, 350.0, b.Temperature())
	assert.InDelta(t, a.Pressure(), b.Pressure(), 1e-9)
}

func TestFractionToEqualizePressure(t *testing.T) {
	a := mixtureAt(100, 300, map[Gas]float64{Nitrogen: 10})
	b := mixtureAt(100, 300, map[Gas]float64{Nitrogen: 2})

	x := FractionToEqualizePressure(a, b)
	b.Merge(a.RemoveRatio(x))

	assert.InDelta(t, a.Pressure(), b.Pressure(), 1e-6)
}

func TestMolesToPressureThreshold(t *testing.T) {
	m := mixtureAt(100, 300, map[Gas]float64{Nitrogen: 10})
	n := MolesToPressureThreshold(m, m.Pressure()/2)
	assert.InDelta(t, 5.0, n, 1e-9)
}

func TestIsProbablySafe(t *testing.T) {
	assert.True(t, IsProbablySafe(NewStationAir()))
	assert.False(t, IsProbablySafe(nil))
	assert.False(t, IsProbablySafe(NewMixture(CellVolume)))
	hot := NewStationAir()
	hot.SetTemperature(400)
	assert.False(t, IsProbablySafe(hot))
}
