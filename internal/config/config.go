// Package config layers simulator configuration the usual way: built-in
// defaults, then an optional TOML or YAML file, then ATMOS_* environment
// variables, then command-line flags. The atmospherics tuning is handed to
// the station as an immutable snapshot through a Source, which a config
// file watch can replace between steps.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/internal/logging"
	"github.com/signalsfoundry/atmos-simulator/internal/observability"
	"github.com/signalsfoundry/atmos-simulator/timectrl"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when a loaded value is out of range.
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix prefixes every environment override, e.g. ATMOS_ATMOS_SPEEDUP.
const EnvPrefix = "ATMOS"

// Config is the fully resolved simulator configuration.
type Config struct {
	// File is the config file that was read, if any.
	File     string
	Scenario string

	// Dt is the simulated seconds per step; Interval paces realtime mode.
	Dt       float64
	Interval time.Duration
	Ticks    int
	Mode     timectrl.Mode

	MetricsAddr string
	InspectAddr string

	Log     logging.Config
	Tracing observability.TracingConfig
	Atmos   core.Settings
}

type option struct {
	name       string
	usage      string
	defaultVal any
}

// options is the single table of keys, their flag usage and defaults.
var options = []option{
	{"config", "path to a TOML or YAML config file", ""},
	{"scenario", "path to a TOML scenario file", ""},
	{"dt", "simulated seconds per step", 0.5},
	{"interval", "wall-clock time between steps in realtime mode", "500ms"},
	{"ticks", "steps to run; 0 runs until interrupted", 0},
	{"mode", "realtime or accelerated", "realtime"},
	{"metrics_addr", "address of the Prometheus /metrics listener; empty disables it", ":9090"},
	{"inspect_addr", "address of the inspection gRPC listener; empty disables it", ":50051"},

	{"log.level", "debug, info, warn or error", "info"},
	{"log.format", "text or json", "text"},
	{"log.source", "include source locations in logs", false},

	{"tracing.enabled", "export traces", false},
	{"tracing.exporter", "stdout or otlp", "stdout"},
	{"tracing.endpoint", "OTLP gRPC endpoint", ""},
	{"tracing.service_name", "service.name of exported spans", "atmos-sim"},
	{"tracing.sample_ratio", "fraction of steps traced", 1.0},

	{"atmos.superconduction_tile_loss", "radiative loss of a heat-exchanging pipe at 20C, in watts", 30.0},
	{"atmos.tile_processing", "diffuse gas between neighbouring tiles", true},
	{"atmos.reactions", "run gas reactions in tiles, pipes and canisters", true},
	{"atmos.speedup", "multiplier applied to dt for device updates", 1.0},
}

// New returns a viper instance with defaults and environment overrides
// wired. Flags registered with RegisterFlags are bound when fs is non-nil.
func New(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, o := range options {
		v.SetDefault(o.name, o.defaultVal)
	}
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	return v, nil
}

// RegisterFlags adds one flag per option to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	for _, o := range options {
		switch d := o.defaultVal.(type) {
		case string:
			fs.String(o.name, d, o.usage)
		case bool:
			fs.Bool(o.name, d, o.usage)
		case int:
			fs.Int(o.name, d, o.usage)
		case float64:
			fs.Float64(o.name, d, o.usage)
		default:
			panic(fmt.Sprintf("config: option %s has unsupported default %T", o.name, d))
		}
	}
}

// ReadFile reads the file named by the "config" key, if any.
func ReadFile(v *viper.Viper) error {
	path := v.GetString("config")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load resolves v into a validated Config.
func Load(v *viper.Viper) (Config, error) {
	mode, err := timectrl.ParseMode(v.GetString("mode"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg := Config{
		File:        v.ConfigFileUsed(),
		Scenario:    v.GetString("scenario"),
		Dt:          v.GetFloat64("dt"),
		Interval:    v.GetDuration("interval"),
		Ticks:       v.GetInt("ticks"),
		Mode:        mode,
		MetricsAddr: v.GetString("metrics_addr"),
		InspectAddr: v.GetString("inspect_addr"),
		Log: logging.Config{
			Level:     v.GetString("log.level"),
			Format:    v.GetString("log.format"),
			AddSource: v.GetBool("log.source"),
		},
		Tracing: observability.TracingConfig{
			Enabled:     v.GetBool("tracing.enabled"),
			Exporter:    v.GetString("tracing.exporter"),
			Endpoint:    v.GetString("tracing.endpoint"),
			ServiceName: v.GetString("tracing.service_name"),
			SampleRatio: v.GetFloat64("tracing.sample_ratio"),
		},
		Atmos: settings(v),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func settings(v *viper.Viper) core.Settings {
	return core.Settings{
		SuperconductionTileLoss: v.GetFloat64("atmos.superconduction_tile_loss"),
		TileProcessing:          v.GetBool("atmos.tile_processing"),
		Reactions:               v.GetBool("atmos.reactions"),
		Speedup:                 v.GetFloat64("atmos.speedup"),
	}
}

// Validate checks ranges that would otherwise break a step.
func (c Config) Validate() error {
	switch {
	case !(c.Dt > 0):
		return fmt.Errorf("%w: dt must be positive, got %v", ErrInvalidConfig, c.Dt)
	case c.Ticks < 0:
		return fmt.Errorf("%w: ticks must not be negative, got %d", ErrInvalidConfig, c.Ticks)
	case c.Mode == timectrl.RealTime && c.Interval <= 0:
		return fmt.Errorf("%w: realtime mode needs a positive interval, got %v", ErrInvalidConfig, c.Interval)
	case c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1:
		return fmt.Errorf("%w: tracing.sample_ratio %v outside [0, 1]", ErrInvalidConfig, c.Tracing.SampleRatio)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return validateSettings(c.Atmos)
}

func validateSettings(s core.Settings) error {
	if s.Speedup < 0 {
		return fmt.Errorf("%w: atmos.speedup must not be negative, got %v", ErrInvalidConfig, s.Speedup)
	}
	if s.SuperconductionTileLoss < 0 {
		return fmt.Errorf("%w: atmos.superconduction_tile_loss must not be negative, got %v", ErrInvalidConfig, s.SuperconductionTileLoss)
	}
	return nil
}

// Source hands out the current atmospherics settings. Steps read one
// snapshot at their start; replacing it never affects a step in flight.
type Source struct {
	current atomic.Pointer[core.Settings]
}

// NewSource returns a Source holding s.
func NewSource(s core.Settings) *Source {
	src := &Source{}
	src.Store(s)
	return src
}

// Snapshot returns a copy of the current settings.
func (s *Source) Snapshot() core.Settings {
	if p := s.current.Load(); p != nil {
		return *p
	}
	return core.DefaultSettings()
}

// Store replaces the settings.
func (s *Source) Store(settings core.Settings) {
	s.current.Store(&settings)
}

// Reload re-reads the atmos.* keys from v. Invalid values are rejected and
// the previous snapshot stays in place.
func (s *Source) Reload(v *viper.Viper) error {
	next := settings(v)
	if err := validateSettings(next); err != nil {
		return err
	}
	s.Store(next)
	return nil
}

// Watch reloads the settings whenever v's config file changes on disk.
func (s *Source) Watch(v *viper.Viper, log logging.Logger) {
	log = logging.OrNoop(log)
	v.OnConfigChange(func(ev fsnotify.Event) {
		ctx := context.Background()
		if err := s.Reload(v); err != nil {
			log.Warn(ctx, "config reload rejected", logging.String("file", ev.Name), logging.Err(err))
			return
		}
		snap := s.Snapshot()
		log.Info(ctx, "atmos settings reloaded",
			logging.String("file", ev.Name),
			logging.Bool("tile_processing", snap.TileProcessing),
			logging.Bool("reactions", snap.Reactions),
			logging.Float64("speedup", snap.Speedup),
		)
	})
	v.WatchConfig()
}
