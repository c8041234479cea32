// Package scenario loads station layouts from TOML: rectangular regions of
// tiles with their starting air, then the pipes and devices placed on them.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/devices"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/model"
)

var (
	// ErrUnknownKind is returned for an entity kind the loader cannot place.
	ErrUnknownKind = errors.New("unknown entity kind")
	// ErrUnknownGas is returned for a gas name that matches no species.
	ErrUnknownGas = gas.ErrUnknownGas
	// ErrInvalidScenario covers structural problems: duplicate names, bad
	// regions, dangling references and unknown keys.
	ErrInvalidScenario = errors.New("invalid scenario")
)

// File is the decoded form of a scenario file.
type File struct {
	Name     string   `toml:"name"`
	Regions  []Region `toml:"region"`
	Entities []Entity `toml:"entity"`
}

// Region fills the inclusive rectangle From..To with tiles.
type Region struct {
	From [2]int `toml:"from"`
	To   [2]int `toml:"to"`
	// Air is "station" (the default), "vacuum" or "airless".
	Air         string             `toml:"air"`
	Temperature float64            `toml:"temperature"`
	Gases       map[string]float64 `toml:"gases"`
}

// Entity places one pipe or device. Only the fields its kind reads are
// used.
type Entity struct {
	Kind     string  `toml:"kind"`
	Name     string  `toml:"name"`
	Pos      [2]int  `toml:"pos"`
	Dir      string  `toml:"dir"`
	Side     string  `toml:"side"`
	Anchored *bool   `toml:"anchored"`
	Volume   float64 `toml:"volume"`

	Enabled         *bool              `toml:"enabled"`
	TargetPressure  float64            `toml:"target_pressure"`
	TransferRate    float64            `toml:"transfer_rate"`
	Overclocked     bool               `toml:"overclocked"`
	Gas             string             `toml:"gas"`
	Gases           map[string]float64 `toml:"gases"`
	Temperature     float64            `toml:"temperature"`
	Concentration   *float64           `toml:"concentration"`
	Mode            string             `toml:"mode"`
	Scrub           []string           `toml:"scrub"`
	WideNet         bool               `toml:"wide_net"`
	Powered         *bool              `toml:"powered"`
	Load            float64            `toml:"load"`
	Insert          string             `toml:"insert"`
	ReleasePressure float64            `toml:"release_pressure"`
	Valve           bool               `toml:"valve"`
	MaxVolume       float64            `toml:"max_volume"`
	Outlet          *bool              `toml:"outlet"`
	SpawnAmount     float64            `toml:"spawn_amount"`
}

// Loaded summarises what Apply built.
type Loaded struct {
	Name     string
	Tiles    int
	Entities map[string]model.Entity
}

// Names returns the named entities in sorted order.
func (l *Loaded) Names() []string {
	out := make([]string, 0, len(l.Entities))
	for name := range l.Entities {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Decode reads a scenario from r. Keys the loader does not know are an
// error so that typos do not silently drop devices.
func Decode(r io.Reader) (*File, error) {
	var f File
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidScenario, strings.Join(keys, ", "))
	}
	return &f, nil
}

// LoadFile decodes the scenario at path.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	f, err := Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate checks f without building anything.
func (f *File) Validate() error {
	for i, r := range f.Regions {
		if _, err := r.mixture(); err != nil {
			return fmt.Errorf("region %d: %w", i, err)
		}
		if r.From[0] > r.To[0] || r.From[1] > r.To[1] {
			return fmt.Errorf("%w: region %d: from %v is past to %v", ErrInvalidScenario, i, r.From, r.To)
		}
	}
	names := map[string]string{}
	for i, e := range f.Entities {
		if _, ok := builders[e.Kind]; !ok {
			return fmt.Errorf("%w: entity %d: %q", ErrUnknownKind, i, e.Kind)
		}
		if e.Name != "" {
			if _, dup := names[e.Name]; dup {
				return fmt.Errorf("%w: duplicate entity name %q", ErrInvalidScenario, e.Name)
			}
			names[e.Name] = e.Kind
		}
		if _, err := e.placement(); err != nil {
			return fmt.Errorf("entity %s: %w", e.label(i), err)
		}
		if _, err := e.mixture(1); err != nil {
			return fmt.Errorf("entity %s: %w", e.label(i), err)
		}
		if e.Gas != "" {
			if _, err := gas.ParseGas(e.Gas); err != nil {
				return fmt.Errorf("entity %s: %w", e.label(i), err)
			}
		}
		for _, g := range e.Scrub {
			if _, err := gas.ParseGas(g); err != nil {
				return fmt.Errorf("entity %s: %w", e.label(i), err)
			}
		}
	}
	for i, e := range f.Entities {
		if e.Insert == "" {
			continue
		}
		if e.Kind != "canister" {
			return fmt.Errorf("%w: entity %s: only canisters take an insert", ErrInvalidScenario, e.label(i))
		}
		if names[e.Insert] != "portable_tank" {
			return fmt.Errorf("%w: entity %s: insert %q is not a portable tank", ErrInvalidScenario, e.label(i), e.Insert)
		}
	}
	return nil
}

// Apply builds f's tiles into grid and its entities into w. Portable
// devices are placed after everything else so their gas ports exist, and
// tanks are inserted last.
func Apply(ctx context.Context, f *File, grid *core.Grid, w *devices.World) (*Loaded, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	out := &Loaded{Name: f.Name, Entities: map[string]model.Entity{}}

	for _, r := range f.Regions {
		for x := r.From[0]; x <= r.To[0]; x++ {
			for y := r.From[1]; y <= r.To[1]; y++ {
				air, _ := r.mixture()
				grid.SetTile(model.Vec2i{X: x, Y: y}, air)
				out.Tiles++
			}
		}
	}

	var portables []int
	for i, e := range f.Entities {
		if e.Kind == "canister" {
			portables = append(portables, i)
			continue
		}
		if err := build(ctx, w, out, i, e); err != nil {
			return nil, err
		}
	}
	for _, i := range portables {
		if err := build(ctx, w, out, i, f.Entities[i]); err != nil {
			return nil, err
		}
	}
	for i, e := range f.Entities {
		if e.Insert == "" {
			continue
		}
		if err := w.InsertTank(ctx, out.Entities[e.Name], out.Entities[e.Insert]); err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.label(i), err)
		}
	}
	return out, nil
}

func build(ctx context.Context, w *devices.World, out *Loaded, i int, e Entity) error {
	p, _ := e.placement()
	ent, err := builders[e.Kind](ctx, w, p, e)
	if err != nil {
		return fmt.Errorf("entity %s: %w", e.label(i), err)
	}
	if e.Name != "" {
		out.Entities[e.Name] = ent
	}
	return nil
}

func (r Region) mixture() (*gas.Mixture, error) {
	temp := r.Temperature
	if temp <= 0 {
		temp = gas.T20C
	}
	switch strings.ToLower(r.Air) {
	case "airless":
		if len(r.Gases) > 0 {
			return nil, fmt.Errorf("%w: airless region with gases", ErrInvalidScenario)
		}
		return nil, nil
	case "vacuum":
		m := gas.NewMixture(gas.CellVolume)
		m.SetTemperature(temp)
		return m, fillMoles(m, r.Gases)
	case "station", "":
		m := gas.NewStationAir()
		if len(r.Gases) > 0 {
			m.Clear()
		}
		m.SetTemperature(temp)
		return m, fillMoles(m, r.Gases)
	}
	return nil, fmt.Errorf("%w: air %q", ErrInvalidScenario, r.Air)
}

func fillMoles(m *gas.Mixture, moles map[string]float64) error {
	amounts, err := gas.ParseAmounts(moles)
	if err != nil {
		return err
	}
	for g, n := range amounts {
		if n < 0 {
			return fmt.Errorf("%w: negative moles of %s", ErrInvalidScenario, gas.Gas(g))
		}
		m.AdjustMoles(gas.Gas(g), n)
	}
	return nil
}

func (e Entity) label(i int) string {
	if e.Name != "" {
		return fmt.Sprintf("%q", e.Name)
	}
	return fmt.Sprintf("#%d (%s)", i, e.Kind)
}

func (e Entity) placement() (devices.Placement, error) {
	dir, err := model.ParseDirections(e.Dir)
	if err != nil {
		return devices.Placement{}, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	side, err := model.ParseDirections(e.Side)
	if err != nil {
		return devices.Placement{}, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	anchored := e.Kind != "canister" && e.Kind != "portable_tank"
	if e.Anchored != nil {
		anchored = *e.Anchored
	}
	return devices.Placement{
		Name:     e.Name,
		Pos:      model.Vec2i{X: e.Pos[0], Y: e.Pos[1]},
		Dir:      dir,
		Side:     side,
		Anchored: anchored,
		Volume:   e.Volume,
	}, nil
}

// mixture builds the entity's starting gas in a container of volume litres.
// It is nil when the entity lists no gases.
func (e Entity) mixture(volume float64) (*gas.Mixture, error) {
	if len(e.Gases) == 0 {
		return nil, nil
	}
	m := gas.NewMixture(volume)
	temp := e.Temperature
	if temp <= 0 {
		temp = gas.T20C
	}
	m.SetTemperature(temp)
	return m, fillMoles(m, e.Gases)
}

func (e Entity) enabled(def bool) bool {
	if e.Enabled != nil {
		return *e.Enabled
	}
	return def
}

func (e Entity) power(def bool) model.PowerReceiver {
	p := model.PowerReceiver{Powered: def, Load: e.Load}
	if e.Powered != nil {
		p.Powered = *e.Powered
	}
	if p.Load <= 0 {
		p.Load = 2000
	}
	return p
}
