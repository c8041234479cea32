package gas

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

//go:embed reactions.yaml
var defaultReactionsYAML []byte

// ErrInvalidReaction is returned for malformed reaction prototypes.
var ErrInvalidReaction = errors.New("invalid reaction")

// ReactionResult is a bit set describing what happened inside a mixture.
type ReactionResult int

const (
	NoReaction    ReactionResult = 0
	Reacting      ReactionResult = 1
	StopReactions ReactionResult = 2
)

// Has reports whether flag is set.
func (r ReactionResult) Has(flag ReactionResult) bool { return r&flag != 0 }

// Reaction converts reactants into products inside a single mixture while it
// satisfies the temperature, energy and per-gas requirements.
type Reaction struct {
	ID       string
	Priority int

	MinimumTemperature  float64
	MaximumTemperature  float64
	MinimumEnergy       float64
	MinimumRequirements [NumGases]float64

	Rate      float64
	Reactants [NumGases]float64
	Products  [NumGases]float64
	// Energy is released per reaction unit.
	Energy float64

	StopReactions bool
}

type reactionDoc struct {
	ID                  string             `yaml:"id"`
	Priority            int                `yaml:"priority"`
	MinimumTemperature  float64            `yaml:"minimumTemperature"`
	MaximumTemperature  float64            `yaml:"maximumTemperature"`
	MinimumEnergy       float64            `yaml:"minimumEnergy"`
	MinimumRequirements map[string]float64 `yaml:"minimumRequirements"`
	Rate                float64            `yaml:"rate"`
	Reactants           map[string]float64 `yaml:"reactants"`
	Products            map[string]float64 `yaml:"products"`
	Energy              float64            `yaml:"energy"`
	StopReactions       bool               `yaml:"stopReactions"`
}

// ReactionSet is an ordered list of reactions, highest priority first.
type ReactionSet []Reaction

// DefaultReactions returns the built-in reaction prototypes.
func DefaultReactions() (ReactionSet, error) {
	return LoadReactions(bytes.NewReader(defaultReactionsYAML))
}

// LoadReactionsFile reads reaction prototypes from a YAML file.
func LoadReactionsFile(path string) (ReactionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadReactions(f)
}

// LoadReactions decodes a YAML list of reaction prototypes and sorts them by
// descending priority.
func LoadReactions(r io.Reader) (ReactionSet, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var docs []reactionDoc
	if err := dec.Decode(&docs); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode reactions: %w", err)
	}

	set := make(ReactionSet, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		reaction, err := doc.build()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[reaction.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidReaction, reaction.ID)
		}
		seen[reaction.ID] = struct{}{}
		set = append(set, reaction)
	}

	sort.SliceStable(set, func(i, j int) bool { return set[i].Priority > set[j].Priority })
	return set, nil
}

func (d reactionDoc) build() (Reaction, error) {
	if d.ID == "" {
		return Reaction{}, fmt.Errorf("%w: missing id", ErrInvalidReaction)
	}
	if d.Rate <= 0 || d.Rate > 1 {
		return Reaction{}, fmt.Errorf("%w: %q rate %v outside (0, 1]", ErrInvalidReaction, d.ID, d.Rate)
	}

	out := Reaction{
		ID:                 d.ID,
		Priority:           d.Priority,
		MinimumTemperature: d.MinimumTemperature,
		MaximumTemperature: d.MaximumTemperature,
		MinimumEnergy:      d.MinimumEnergy,
		Rate:               d.Rate,
		Energy:             d.Energy,
		StopReactions:      d.StopReactions,
	}
	if out.MaximumTemperature == 0 {
		out.MaximumTemperature = math.Inf(1)
	}

	var err error
	if out.MinimumRequirements, err = ParseAmounts(d.MinimumRequirements); err != nil {
		return Reaction{}, fmt.Errorf("reaction %q: %w", d.ID, err)
	}
	if out.Reactants, err = ParseAmounts(d.Reactants); err != nil {
		return Reaction{}, fmt.Errorf("reaction %q: %w", d.ID, err)
	}
	if out.Products, err = ParseAmounts(d.Products); err != nil {
		return Reaction{}, fmt.Errorf("reaction %q: %w", d.ID, err)
	}
	if floats.Sum(out.Reactants[:]) <= 0 {
		return Reaction{}, fmt.Errorf("%w: %q has no reactants", ErrInvalidReaction, d.ID)
	}
	return out, nil
}

// Applies reports whether the mixture currently satisfies every requirement.
func (r *Reaction) Applies(mix *Mixture) bool {
	t := mix.Temperature()
	if t < r.MinimumTemperature || t > r.MaximumTemperature {
		return false
	}
	if mix.ThermalEnergy() < r.MinimumEnergy {
		return false
	}
	for i, req := range r.MinimumRequirements {
		if mix.Moles[i] < req {
			return false
		}
	}
	return true
}

// Apply runs one evaluation of the reaction against mix.
func (r *Reaction) Apply(mix *Mixture) ReactionResult {
	units := math.Inf(1)
	for i, coef := range r.Reactants {
		if coef > 0 {
			units = math.Min(units, mix.Moles[i]/coef)
		}
	}
	if math.IsInf(units, 1) || units <= 0 {
		return NoReaction
	}
	units *= r.Rate

	energy := mix.ThermalEnergy()
	floats.AddScaled(mix.Moles[:], -units, r.Reactants[:])
	floats.AddScaled(mix.Moles[:], units, r.Products[:])
	for i, moles := range mix.Moles {
		if moles < 0 {
			mix.Moles[i] = 0
		}
	}
	if hc := mix.HeatCapacity(); hc > MinimumHeatCapacity {
		mix.SetTemperature((energy + units*r.Energy) / hc)
	}

	result := Reacting
	if r.StopReactions {
		result |= StopReactions
	}
	return result
}

// React evaluates every applicable reaction in priority order, stopping early
// when a reaction asks to.
func (s ReactionSet) React(mix *Mixture) ReactionResult {
	if mix == nil || mix.Immutable {
		return NoReaction
	}
	result := NoReaction
	for i := range s {
		if !s[i].Applies(mix) {
			continue
		}
		result |= s[i].Apply(mix)
		if result.Has(StopReactions) {
			break
		}
	}
	return result
}
