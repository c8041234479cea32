package gas

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultReactionsLoadInPriorityOrder(t *testing.T) {
	set, err := DefaultReactions()
	require.NoError(t, err)
	require.NotEmpty(t, set)
	for i := 1; i < len(set); i++ {
		if set[i-1].Priority < set[i].Priority {
			t.Fatalf("reaction %q (priority %d) sorted before %q (priority %d)",
				set[i-1].ID, set[i-1].Priority, set[i].ID, set[i].Priority)
		}
	}
}

func TestPlasmaFireBurnsAndHeats(t *testing.T) {
	set, err := DefaultReactions()
	require.NoError(t, err)

	mix := mixtureAt(CellVolume, 500, map[Gas]float64{Plasma: 10, Oxygen: 20})
	result := set.React(mix)

	assert.True(t, result.Has(Reacting))
	assert.Less(t, mix.GetMoles(Plasma), 10.0)
	assert.Greater(t, mix.GetMoles(CarbonDioxide), 0.0)
	assert.Greater(t, mix.Temperature(), 500.0)
}

func TestReactionsSkipColdMixtures(t *testing.T) {
	set, err := DefaultReactions()
	require.NoError(t, err)

	mix := mixtureAt(CellVolume, T20C, map[Gas]float64{Plasma: 10, Oxygen: 20})
	before := *mix
	if got := set.React(mix); got != NoReaction {
		t.Fatalf("React() = %v, want NoReaction", got)
	}
	assert.Equal(t, before, *mix)
}

func TestStopReactionsHaltsEvaluation(t *testing.T) {
	doc := `
- id: First
  priority: 10
  rate: 0.5
  reactants: {Oxygen: 1}
  products: {CarbonDioxide: 1}
  stopReactions: true
- id: Second
  priority: 1
  rate: 1
  reactants: {CarbonDioxide: 1}
  products: {Nitrogen: 1}
`
	set, err := LoadReactions(strings.NewReader(doc))
	require.NoError(t, err)

	mix := mixtureAt(100, 300, map[Gas]float64{Oxygen: 4})
	result := set.React(mix)

	assert.True(t, result.Has(StopReactions))
	assert.InDelta(t, 2.0, mix.GetMoles(CarbonDioxide), 1e-12)
	assert.Zero(t, mix.GetMoles(Nitrogen))
}

func TestLoadReactionsRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown gas":   "- {id: X, rate: 0.1, reactants: {Unobtanium: 1}}",
		"zero rate":     "- {id: X, rate: 0, reactants: {Oxygen: 1}}",
		"no reactants":  "- {id: X, rate: 0.1}",
		"duplicate id":  "- {id: X, rate: 0.1, reactants: {Oxygen: 1}}\n- {id: X, rate: 0.1, reactants: {Oxygen: 1}}",
		"unknown field": "- {id: X, rate: 0.1, reactants: {Oxygen: 1}, colour: red}",
	}
	for name, doc := range cases {
		if _, err := LoadReactions(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: LoadReactions() error = nil, want error", name)
		}
	}
}
