package model

import "github.com/signalsfoundry/atmos-simulator/gas"

// Default node names. Devices look their nodes up by these names on every
// tick rather than holding on to them.
const (
	NodePipe     = "pipe"
	NodeInlet    = "inlet"
	NodeOutlet   = "outlet"
	NodeFiltered = "filter"
	NodePort     = "port"
	NodeTank     = "tank"

	NodeInletOne = "inletOne"
	NodeInletTwo = "inletTwo"

	SlotTank = "tank_slot"
)

// AtmosDevice marks an entity that receives device updates. Devices that
// require anchoring only update while joined to the grid.
type AtmosDevice struct {
	RequireAnchored bool
	Joined          bool
}

// PowerReceiver reports the power delivered to a device this tick.
type PowerReceiver struct {
	Powered bool
	// Load is the draw in watts while powered.
	Load float64
}

// Received returns the watts actually delivered.
func (p PowerReceiver) Received() float64 {
	if !p.Powered {
		return 0
	}
	return p.Load
}

// PumpDirection selects which way a vent pump moves gas.
type PumpDirection int

const (
	PumpReleasing PumpDirection = iota
	PumpSiphoning
)

// PressureBound selects which bounds a vent pump enforces.
type PressureBound int

const (
	BoundNone     PressureBound = 0
	BoundInternal PressureBound = 1
	BoundExternal PressureBound = 2
	BoundBoth                   = BoundInternal | BoundExternal
)

// Has reports whether b includes flag.
func (b PressureBound) Has(flag PressureBound) bool { return b&flag != 0 }

// VentPump moves gas between its pipe and the tile it sits on.
type VentPump struct {
	Inlet                 string
	Enabled               bool
	Welded                bool
	Direction             PumpDirection
	PressureChecks        PressureBound
	ExternalPressureBound float64
	InternalPressureBound float64
}

// DefaultVentPump returns a releasing vent that fills rooms to one atmosphere.
func DefaultVentPump() VentPump {
	return VentPump{
		Inlet:                 NodePipe,
		Enabled:               true,
		Direction:             PumpReleasing,
		PressureChecks:        BoundExternal,
		ExternalPressureBound: gas.OneAtmosphere,
	}
}

// ScrubberMode selects scrubbing or siphoning.
type ScrubberMode int

const (
	ScrubberScrubbing ScrubberMode = iota
	ScrubberSiphoning
)

// VentScrubber pulls filtered gases from its tile into its outlet pipe.
type VentScrubber struct {
	Outlet      string
	Enabled     bool
	Welded      bool
	Mode        ScrubberMode
	VolumeRate  float64
	WideNet     bool
	FilterGases []gas.Gas
}

// DefaultVentScrubber returns a scrubber removing carbon dioxide.
func DefaultVentScrubber() VentScrubber {
	return VentScrubber{
		Outlet:      NodePipe,
		Enabled:     true,
		Mode:        ScrubberScrubbing,
		VolumeRate:  200,
		FilterGases: []gas.Gas{gas.CarbonDioxide},
	}
}

// PassiveVent equalises its pipe with the tile without power.
type PassiveVent struct {
	Inlet string
}

// OutletInjector drains its inlet into the tile at a fixed volume rate.
type OutletInjector struct {
	Inlet      string
	Enabled    bool
	VolumeRate float64
}

// DefaultOutletInjector returns an enabled injector at 50 L/s.
func DefaultOutletInjector() OutletInjector {
	return OutletInjector{Inlet: NodeInlet, Enabled: true, VolumeRate: 50}
}

// ThermoMachineMode distinguishes freezers from heaters for target limits.
type ThermoMachineMode int

const (
	ThermoFreezer ThermoMachineMode = iota
	ThermoHeater
)

// ThermoMachine pulls its inlet gas towards a target temperature.
type ThermoMachine struct {
	Inlet             string
	Enabled           bool
	Mode              ThermoMachineMode
	HeatCapacity      float64
	TargetTemperature float64
	MinTemperature    float64
	MaxTemperature    float64
}

// DefaultFreezer and DefaultHeater return thermomachines with their stock limits.
func DefaultFreezer() ThermoMachine {
	return ThermoMachine{
		Inlet:             NodePipe,
		Mode:              ThermoFreezer,
		HeatCapacity:      5000,
		TargetTemperature: gas.T20C,
		MinTemperature:    gas.T0C - 200,
		MaxTemperature:    gas.T20C,
	}
}

func DefaultHeater() ThermoMachine {
	return ThermoMachine{
		Inlet:             NodePipe,
		Mode:              ThermoHeater,
		HeatCapacity:      5000,
		TargetTemperature: gas.T20C,
		MinTemperature:    gas.T20C,
		MaxTemperature:    gas.T20C + 300,
	}
}

// HeatExchanger radiates and convects heat from its pipe gas into the tile.
// With an outlet, only the gas flowing from the higher to the lower pressure
// side is exchanged; without one the inlet gas is exchanged in place.
type HeatExchanger struct {
	Inlet  string
	Outlet string
	// G is the flow conductance in mol/(kPa*s).
	G float64
	// K is the convective coefficient in W/K.
	K float64
	// Alpha scales radiative loss.
	Alpha float64
}

// DefaultHeatExchanger returns a radiator using the stock tuning constants.
func DefaultHeatExchanger() HeatExchanger {
	return HeatExchanger{Inlet: NodeInlet, Outlet: NodeOutlet, G: 0.1, K: 8, Alpha: 140}
}

// Condenser turns inlet gas into reagents in a solution container.
type Condenser struct {
	Inlet                    string
	MolesToReagentMultiplier float64
}

// DefaultCondenser returns a condenser with the stock conversion ratio.
func DefaultCondenser() Condenser {
	return Condenser{Inlet: NodePipe, MolesToReagentMultiplier: 2.88}
}

// GasTank seeds its pipe network once when it starts up.
type GasTank struct {
	Node           string
	InitialMixture *gas.Mixture
}

// Canister is a portable reservoir that buffers with its port network and can
// release into an inserted tank or the environment.
type Canister struct {
	Air  *gas.Mixture
	Port string
	Slot string

	ReleasePressure    float64
	MinReleasePressure float64
	MaxReleasePressure float64
	ReleaseValve       bool
	Locked             bool

	LastPressure float64
}

// DefaultCanister returns an empty 1000 L canister.
func DefaultCanister() Canister {
	air := gas.NewMixture(1000)
	air.SetTemperature(gas.T20C)
	return Canister{
		Air:                air,
		Port:               NodePort,
		Slot:               SlotTank,
		ReleasePressure:    gas.OneAtmosphere,
		MinReleasePressure: gas.OneAtmosphere / 10,
		MaxReleasePressure: gas.OneAtmosphere * 10,
	}
}

// PortableTank is a hand-held gas tank that can be inserted into a canister.
type PortableTank struct {
	Air   *gas.Mixture
	Label string
}

// ContainerSlot holds at most one entity.
type ContainerSlot struct {
	ID        string
	Contained Entity
}

// Empty reports whether nothing is in the slot.
func (c ContainerSlot) Empty() bool { return !c.Contained.Valid() }

// Portable marks devices that may only anchor onto a gas port.
type Portable struct {
	Port string
}

// Solution is a reagent container measured in units.
type Solution struct {
	MaxVolume float64
	Reagents  map[string]float64
}

// Volume returns the units currently held.
func (s *Solution) Volume() float64 {
	var v float64
	for _, q := range s.Reagents {
		v += q
	}
	return v
}

// AvailableVolume returns the free capacity.
func (s *Solution) AvailableVolume() float64 {
	free := s.MaxVolume - s.Volume()
	if free < 0 {
		return 0
	}
	return free
}
