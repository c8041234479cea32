package model

// VisualState is the small enum a rendering layer maps to sprites.
type VisualState int

const (
	VisualOff VisualState = iota
	VisualOn
	VisualWelded
	VisualReleasing
	VisualSiphoning
	VisualScrubbing
	VisualBroken
)

func (v VisualState) String() string {
	switch v {
	case VisualOff:
		return "off"
	case VisualOn:
		return "on"
	case VisualWelded:
		return "welded"
	case VisualReleasing:
		return "releasing"
	case VisualSiphoning:
		return "siphoning"
	case VisualScrubbing:
		return "scrubbing"
	case VisualBroken:
		return "broken"
	}
	return "unknown"
}

// Appearance is the computed visual state of a device. Device systems build
// one per tick; only the appearance system stores and publishes it.
type Appearance struct {
	State VisualState
	// PressureTier is the canister gauge level 0..3, or -1 for devices
	// without a gauge.
	PressureTier int
	Enabled      bool
	TankInserted bool
	Locked       bool
}

// NoGauge is the PressureTier of devices without a pressure gauge.
const NoGauge = -1
