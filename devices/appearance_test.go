package devices

import (
	"testing"

	"github.com/signalsfoundry/atmos-simulator/model"
	"github.com/stretchr/testify/assert"
)

func TestAppearanceNotifiesOnlyOnChange(t *testing.T) {
	a := NewAppearanceSystem()
	e := model.Entity{Index: 1, Generation: 1}
	var changes []AppearanceChange
	unsubscribe := a.Subscribe(func(c AppearanceChange) { changes = append(changes, c) })

	on := model.Appearance{State: model.VisualOn, Enabled: true, PressureTier: model.NoGauge}
	assert.True(t, a.Apply(e, on))
	assert.False(t, a.Apply(e, on))
	assert.True(t, a.Apply(e, model.Appearance{State: model.VisualOff, PressureTier: model.NoGauge}))
	assert.Len(t, changes, 2)
	assert.Equal(t, on, changes[1].Old)

	unsubscribe()
	a.Apply(e, on)
	assert.Len(t, changes, 2)
}

func TestAppearanceUpdateStartsWithoutGauge(t *testing.T) {
	a := NewAppearanceSystem()
	e := model.Entity{Index: 3, Generation: 2}

	a.update(e, func(app *model.Appearance) { app.Locked = true })
	got, ok := a.Get(e)
	assert.True(t, ok)
	assert.Equal(t, model.Appearance{Locked: true, PressureTier: model.NoGauge}, got)

	a.Remove(e)
	_, ok = a.Get(e)
	assert.False(t, ok)
}
