package app

import (
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/atmos-simulator/internal/config"
	"github.com/signalsfoundry/atmos-simulator/internal/scenario"
	"github.com/signalsfoundry/atmos-simulator/timectrl"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	v, err := config.New(nil)
	if err != nil {
		t.Fatalf("config.New() error = %v", err)
	}
	v.Set("mode", "accelerated")
	v.Set("scenario", "../../configs/scenarios/distro.toml")
	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Log.Output = io.Discard
	return cfg
}

func TestRunStepsConfiguredTicks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ticks = 5
	reg := prometheus.NewRegistry()

	a, err := New(t.Context(), cfg, reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close(t.Context())

	if got := a.Station.ScenarioName(); got != "distro" {
		t.Fatalf("ScenarioName() = %q, want distro", got)
	}
	a.Run(t.Context())

	if got := a.Station.Tick(); got != 5 {
		t.Fatalf("Station.Tick() = %d, want 5", got)
	}
	if got := a.Clock.Ticks(); got != 5 {
		t.Fatalf("Clock.Ticks() = %d, want 5", got)
	}
	if got := testutil.ToFloat64(a.Collector.Steps); got != 5 {
		t.Fatalf("atmos_steps_total = %v, want 5", got)
	}
}

func TestStepInterval(t *testing.T) {
	cfg := testConfig(t)
	if got, want := stepInterval(cfg).Seconds(), cfg.Dt; got != want {
		t.Fatalf("accelerated stepInterval = %vs, want %vs", got, want)
	}
	cfg.Mode = timectrl.RealTime
	if got := stepInterval(cfg); got != cfg.Interval {
		t.Fatalf("realtime stepInterval = %v, want %v", got, cfg.Interval)
	}
}

func TestNewFailsOnBadScenario(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scenario = "testdata/does-not-exist.toml"
	if _, err := New(t.Context(), cfg, prometheus.NewRegistry()); err == nil {
		t.Fatalf("New() error = nil, want missing file error")
	}
}

func TestDistroScenarioIsValid(t *testing.T) {
	f, err := scenario.LoadFile("../../configs/scenarios/distro.toml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
