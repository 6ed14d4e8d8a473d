// Package config provides configuration loading and access for the fluid tank.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// MinGridSize is the smallest accepted resolution. Agents live in [2, n-3] and the
// vent sits three rows from the edge, so anything smaller has no interior to work with.
const MinGridSize = 8

// Config holds all simulation configuration parameters.
type Config struct {
	Seed      int64           `yaml:"seed"`
	Grid      GridConfig      `yaml:"grid"`
	Solver    SolverConfig    `yaml:"solver"`
	Gravity   GravityConfig   `yaml:"gravity"`
	Dye       DyeConfig       `yaml:"dye"`
	Fountain  FountainConfig  `yaml:"fountain"`
	Vent      VentConfig      `yaml:"vent"`
	Agents    AgentsConfig    `yaml:"agents"`
	Loop      LoopConfig      `yaml:"loop"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Screen    ScreenConfig    `yaml:"screen"`
	Stream    StreamConfig    `yaml:"stream"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// GridConfig holds the grid resolution.
type GridConfig struct {
	N int `yaml:"n"` // cells per side
}

// SolverConfig holds the numerical kernel parameters.
type SolverConfig struct {
	DT        float64 `yaml:"dt"`
	Viscosity float64 `yaml:"viscosity"`
	MaxIter   int     `yaml:"max_iter"` // Gauss-Seidel sweep cap
	MinErr    float64 `yaml:"min_err"`  // stop once a sweep's squared delta sum drops to this
}

// GravityConfig holds the global body force applied to non-boundary cells.
type GravityConfig struct {
	Enabled bool    `yaml:"enabled"`
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
}

// DyeConfig holds dye channel parameters.
type DyeConfig struct {
	Channels    int     `yaml:"channels"`
	Max         float64 `yaml:"max"`          // clamp during diffusion
	AdvectedMax float64 `yaml:"advected_max"` // clamp after advection
	Fade        float64 `yaml:"fade"`         // subtracted per diffusion sweep (0 = n*1e-5)
	Attraction  float64 `yaml:"attraction"`   // channel 0/1 mutual attraction
	PaintAmount float64 `yaml:"paint_amount"` // dye added per interactive paint
}

// FountainConfig holds the oscillating point source.
type FountainConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Position  float64 `yaml:"position"`   // fraction of n
	PhaseRate float64 `yaml:"phase_rate"` // phase increment per step
	Amplitude float64 `yaml:"amplitude"`  // 0 = n/200
	BiasX     float64 `yaml:"bias_x"`
	BiasY     float64 `yaml:"bias_y"`
}

// VentConfig holds the randomized impulse source near the bottom edge.
type VentConfig struct {
	Enabled        bool    `yaml:"enabled"`
	RowOffset      int     `yaml:"row_offset"`
	RelocateChance float64 `yaml:"relocate_chance"`
	Jitter         float64 `yaml:"jitter"` // 0 = n/200
	Lift           float64 `yaml:"lift"`   // 0 = n/30
}

// AgentsConfig holds tracer agent parameters.
type AgentsConfig struct {
	Count      int     `yaml:"count"`
	Gain       float64 `yaml:"gain"`        // velocity to displacement multiplier
	MaxStep    float64 `yaml:"max_step"`    // cap on flow displacement per step
	BiasLimit  float64 `yaml:"bias_limit"`  // |z|,|w| bound
	DriftScale float64 `yaml:"drift_scale"` // 0 = n/1000
	Sink       float64 `yaml:"sink"`        // 0 = n/1000
	Deposit    float64 `yaml:"deposit"`     // 0 = n/150
}

// LoopConfig holds background worker pacing.
type LoopConfig struct {
	StepsPerSecond float64 `yaml:"steps_per_second"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow int `yaml:"stats_window"`
	PerfWindow  int `yaml:"perf_window"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	TargetFPS int `yaml:"target_fps"`
}

// StreamConfig holds websocket frame stream settings.
type StreamConfig struct {
	MaxFPS     float64 `yaml:"max_fps"`
	Downsample int     `yaml:"downsample"`
}

// DerivedConfig holds values resolved from n when the YAML leaves them zero.
type DerivedConfig struct {
	IDW          float64 // grid to simulation unit scale used by advection
	FountainK1   float64
	FountainCell int
	VentJitter   float64
	VentLift     float64
	VentRow      int
	DyeFade      float64
	AgentDrift   float64
	AgentSink    float64
	AgentDeposit float64
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are broken: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ComputeDerived()

	return cfg, nil
}

// Validate rejects configurations the solver cannot be built from.
func (c *Config) Validate() error {
	switch {
	case c.Grid.N < MinGridSize:
		return fmt.Errorf("%w: grid.n must be at least %d, got %d", ErrInvalid, MinGridSize, c.Grid.N)
	case c.Solver.DT <= 0:
		return fmt.Errorf("%w: solver.dt must be positive, got %g", ErrInvalid, c.Solver.DT)
	case c.Solver.MaxIter <= 0:
		return fmt.Errorf("%w: solver.max_iter must be positive, got %d", ErrInvalid, c.Solver.MaxIter)
	case c.Solver.MinErr < 0:
		return fmt.Errorf("%w: solver.min_err must not be negative, got %g", ErrInvalid, c.Solver.MinErr)
	case c.Solver.Viscosity < 0:
		return fmt.Errorf("%w: solver.viscosity must not be negative, got %g", ErrInvalid, c.Solver.Viscosity)
	case c.Dye.Channels < 1:
		return fmt.Errorf("%w: dye.channels must be at least 1, got %d", ErrInvalid, c.Dye.Channels)
	case c.Agents.Count < 0:
		return fmt.Errorf("%w: agents.count must not be negative, got %d", ErrInvalid, c.Agents.Count)
	case c.Vent.Enabled && (c.Vent.RowOffset < 1 || c.Vent.RowOffset > c.Grid.N-2):
		return fmt.Errorf("%w: vent.row_offset %d outside [1, %d]", ErrInvalid, c.Vent.RowOffset, c.Grid.N-2)
	case c.Fountain.Enabled && (c.Fountain.Position <= 0 || c.Fountain.Position >= 1):
		return fmt.Errorf("%w: fountain.position must be in (0, 1), got %g", ErrInvalid, c.Fountain.Position)
	}
	return nil
}

// ComputeDerived calculates values derived from the loaded config. Call it again after
// changing grid.n or any zero-means-derived field programmatically.
func (c *Config) ComputeDerived() {
	n := float64(c.Grid.N)
	d := &c.Derived

	d.IDW = n - 2

	d.FountainK1 = orDefault(c.Fountain.Amplitude, n/200)
	d.FountainCell = int(n * c.Fountain.Position)

	d.VentJitter = orDefault(c.Vent.Jitter, n/200)
	d.VentLift = orDefault(c.Vent.Lift, n/30)
	d.VentRow = c.Grid.N - c.Vent.RowOffset

	d.DyeFade = orDefault(c.Dye.Fade, n*0.00001)

	d.AgentDrift = orDefault(c.Agents.DriftScale, n/1000)
	d.AgentSink = orDefault(c.Agents.Sink, n/1000)
	d.AgentDeposit = orDefault(c.Agents.Deposit, n/150)
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// Clone returns a deep copy so callers can tweak a config without touching the global one.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
