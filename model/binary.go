package model

import "github.com/signalsfoundry/atmos-simulator/gas"

// PressurePump pumps from inlet to outlet until the outlet reaches a target.
type PressurePump struct {
	Inlet          string
	Outlet         string
	Enabled        bool
	TargetPressure float64
}

func DefaultPressurePump() PressurePump {
	return PressurePump{Inlet: NodeInlet, Outlet: NodeOutlet, Enabled: true, TargetPressure: gas.OneAtmosphere}
}

// VolumePump moves a fixed volume of inlet gas per second.
type VolumePump struct {
	Inlet        string
	Outlet       string
	Enabled      bool
	TransferRate float64
	Overclocked  bool
	// LeakRatio of the moved gas escapes to the tile while overclocked.
	LeakRatio float64

	LowerThreshold     float64
	HigherThreshold    float64
	OverclockThreshold float64
}

func DefaultVolumePump() VolumePump {
	return VolumePump{
		Inlet:              NodeInlet,
		Outlet:             NodeOutlet,
		Enabled:            true,
		TransferRate:       200,
		LeakRatio:          0.1,
		LowerThreshold:     0.01,
		HigherThreshold:    2 * gas.MaxOutputPressure,
		OverclockThreshold: 1000,
	}
}

// PassiveGate lets gas through one way while the outlet is below target.
type PassiveGate struct {
	Inlet          string
	Outlet         string
	Enabled        bool
	TargetPressure float64
}

func DefaultPassiveGate() PassiveGate {
	return PassiveGate{Inlet: NodeInlet, Outlet: NodeOutlet, Enabled: true, TargetPressure: gas.OneAtmosphere}
}

// Filter passes inlet gas to the outlet, diverting one species to a side port.
type Filter struct {
	Inlet        string
	Outlet       string
	Filtered     string
	Enabled      bool
	TransferRate float64
	// FilteredGas is nil when the filter passes everything through.
	FilteredGas *gas.Gas
}

func DefaultFilter() Filter {
	return Filter{Inlet: NodeInlet, Outlet: NodeOutlet, Filtered: NodeFiltered, Enabled: true, TransferRate: 200}
}

// Mixer combines two inlets at a fixed concentration up to a target pressure.
type Mixer struct {
	InletOne              string
	InletTwo              string
	Outlet                string
	Enabled               bool
	TargetPressure        float64
	InletOneConcentration float64
}

func DefaultMixer() Mixer {
	return Mixer{
		InletOne:              NodeInletOne,
		InletTwo:              NodeInletTwo,
		Outlet:                NodeOutlet,
		Enabled:               true,
		TargetPressure:        gas.OneAtmosphere,
		InletOneConcentration: 0.5,
	}
}

// Miner spawns a gas onto its tile while the tile is below its limits.
type Miner struct {
	Enabled             bool
	SpawnGas            gas.Gas
	SpawnTemperature    float64
	SpawnAmount         float64
	MaxExternalPressure float64
	MaxExternalAmount   float64
	Broken              bool
}

func DefaultMiner(g gas.Gas) Miner {
	return Miner{
		Enabled:             true,
		SpawnGas:            g,
		SpawnTemperature:    gas.T20C,
		SpawnAmount:         gas.MolesCellStandard * 20 / 100,
		MaxExternalPressure: 6500,
		MaxExternalAmount:   gas.MolesCellStandard * 20,
	}
}
