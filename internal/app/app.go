// Package app assembles a runnable station from a resolved Config: logger,
// tracing, metrics collector, settings source, the station itself with its
// scenario, and the time controller that steps it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/atmos-simulator/internal/config"
	"github.com/signalsfoundry/atmos-simulator/internal/logging"
	"github.com/signalsfoundry/atmos-simulator/internal/observability"
	"github.com/signalsfoundry/atmos-simulator/internal/scenario"
	sim "github.com/signalsfoundry/atmos-simulator/internal/sim/state"
	"github.com/signalsfoundry/atmos-simulator/timectrl"
)

// App is a station wired to its ambient services.
type App struct {
	Config    config.Config
	Log       logging.Logger
	Collector *observability.AtmosCollector
	Settings  *config.Source
	Station   *sim.Station
	Clock     *timectrl.TimeController

	shutdownTracing func(context.Context) error
}

// New builds an App. Metrics register against reg, or the global registry
// when reg is nil. A configured scenario is loaded before New returns.
func New(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*App, error) {
	log := logging.New(cfg.Log)

	shutdown, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	collector, err := observability.NewAtmosCollector(reg)
	if err != nil {
		observability.ShutdownWithTimeout(ctx, shutdown, log)
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	src := config.NewSource(cfg.Atmos)
	station, err := sim.NewStation(
		sim.WithLogger(log),
		sim.WithCollector(collector),
		sim.WithSettings(src),
	)
	if err != nil {
		observability.ShutdownWithTimeout(ctx, shutdown, log)
		return nil, err
	}

	a := &App{
		Config:          cfg,
		Log:             log.With(logging.String("run_id", station.RunID)),
		Collector:       collector,
		Settings:        src,
		Station:         station,
		Clock:           timectrl.NewTimeController(time.Now(), stepInterval(cfg), cfg.Mode),
		shutdownTracing: shutdown,
	}
	if cfg.Scenario != "" {
		if err := a.LoadScenario(ctx, cfg.Scenario); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}
	return a, nil
}

// stepInterval is the clock tick: the configured pacing in realtime mode and
// the simulated step length otherwise.
func stepInterval(cfg config.Config) time.Duration {
	if cfg.Mode == timectrl.RealTime {
		return cfg.Interval
	}
	return time.Duration(cfg.Dt * float64(time.Second))
}

// LoadScenario reads and applies the scenario file at path.
func (a *App) LoadScenario(ctx context.Context, path string) error {
	f, err := scenario.LoadFile(path)
	if err != nil {
		return err
	}
	if _, err := a.Station.Load(ctx, f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// WatchSettings swaps in new atmos settings whenever v's config file
// changes. It is a no-op when no file was read.
func (a *App) WatchSettings(v *viper.Viper) {
	if v.ConfigFileUsed() == "" {
		return
	}
	a.Settings.Watch(v, a.Log)
}

// Run steps the station on every clock tick until the configured number of
// ticks has run or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	a.Clock.AddListener(func(now time.Time) {
		a.Station.Step(ctx, a.Config.Dt)
	})
	a.Log.Info(ctx, "simulation started",
		logging.String("mode", a.Config.Mode.String()),
		logging.Float64("dt", a.Config.Dt),
		logging.Int("ticks", a.Config.Ticks),
		logging.String("scenario", a.Station.ScenarioName()),
	)
	<-a.Clock.Start(ctx, a.Config.Ticks)

	tiles, pipes, containers := a.Station.Totals()
	a.Log.Info(ctx, "simulation stopped",
		logging.Int("tick", a.Station.Tick()),
		logging.Float64("tile_moles", tiles),
		logging.Float64("pipe_moles", pipes),
		logging.Float64("container_moles", containers),
	)
}

// Close releases the station and flushes traces.
func (a *App) Close(ctx context.Context) {
	a.Station.Close()
	observability.ShutdownWithTimeout(ctx, a.shutdownTracing, a.Log)
}
