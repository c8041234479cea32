package core

// Settings is the tunable part of one atmospherics step. A fresh copy is
// handed to every step; nothing reads configuration behind its back.
type Settings struct {
	// SuperconductionTileLoss is the radiative heat loss, in watts, of a
	// heat-exchanging pipe segment at 20 °C against TCMB.
	SuperconductionTileLoss float64
	// TileProcessing enables diffusion between neighbouring tiles.
	TileProcessing bool
	// Reactions enables gas reactions in tiles and pipe nets.
	Reactions bool
	// Speedup scales dt for every device update. Values <= 0 mean 1.
	Speedup float64
}

// DefaultSettings returns the stock tuning.
func DefaultSettings() Settings {
	return Settings{
		SuperconductionTileLoss: 30,
		TileProcessing:          true,
		Reactions:               true,
		Speedup:                 1,
	}
}

// Scale applies Speedup to dt.
func (s Settings) Scale(dt float64) float64 {
	if s.Speedup <= 0 {
		return dt
	}
	return dt * s.Speedup
}
