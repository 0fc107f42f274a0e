package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/bdougie/repcount/internal/counter"
	"github.com/bdougie/repcount/internal/storage"
)

// Input modes
const (
	InputTrace  = "trace"  // JSON Lines of landmarks, pose already estimated
	InputVideo  = "video"  // video file, frames dumped with ffmpeg
	InputFrames = "frames" // directory of already extracted frames

	stdinPath = "-"
)

type Config struct {
	LogLevel    string `toml:"log_level"`
	Exercise    string `toml:"exercise"`
	TargetReps  int    `toml:"target_reps"`
	OutputDir   string `toml:"output_dir"`
	MetricsAddr string `toml:"metrics_addr"`

	Input    Input                  `toml:"input"`
	Detector Detector               `toml:"detector"`
	Postgres storage.PostgresConfig `toml:"postgres"`

	// Thresholds overrides the default table per exercise name
	Thresholds map[string]Threshold `toml:"thresholds"`
}

type Input struct {
	Mode string  `toml:"mode"`
	Path string  `toml:"path"` // "-" reads a trace from stdin
	FPS  float64 `toml:"fps"`

	// FrameWidth and FrameHeight scale normalised landmarks to pixels.
	// Leave both unset when the detector already reports pixels.
	FrameWidth  float64 `toml:"frame_width"`
	FrameHeight float64 `toml:"frame_height"`
}

// FrameSize reports the configured frame size, if any.
func (in Input) FrameSize() (width, height float64, ok bool) {
	return in.FrameWidth, in.FrameHeight, in.FrameWidth > 0 && in.FrameHeight > 0
}

type Detector struct {
	Command       string   `toml:"command"`
	Args          []string `toml:"args"`
	MinVisibility float64  `toml:"min_visibility"`
}

// Threshold overrides one or both limits of an exercise.
type Threshold struct {
	Down *float64 `toml:"down"`
	Up   *float64 `toml:"up"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		Exercise:  counter.BicepCurl.String(),
		OutputDir: "output",
		Input: Input{
			Mode: InputTrace,
			FPS:  10,
		},
	}
}

// Load reads a TOML file on top of Default. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config '%s': %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown config keys in '%s': %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Validate checks the fields Load cannot check on its own.
func (c *Config) Validate() error {
	if _, err := c.Kind(); err != nil {
		return err
	}
	if c.TargetReps < 0 {
		return errors.New("target_reps must not be negative")
	}
	switch c.Input.Mode {
	case InputTrace, InputVideo, InputFrames:
	default:
		return fmt.Errorf("unknown input mode %q", c.Input.Mode)
	}
	if c.Input.Path == "" {
		return errors.New("input path is required")
	}
	if c.Input.Path == stdinPath && c.Input.Mode != InputTrace {
		return fmt.Errorf("input mode %q cannot read from stdin", c.Input.Mode)
	}
	if c.Input.FrameWidth < 0 || c.Input.FrameHeight < 0 {
		return errors.New("frame size must not be negative")
	}
	if (c.Input.FrameWidth > 0) != (c.Input.FrameHeight > 0) {
		return errors.New("frame_width and frame_height must be set together")
	}
	if c.Input.Mode != InputTrace && c.Detector.Command == "" {
		return fmt.Errorf("input mode %q needs a detector command", c.Input.Mode)
	}
	if _, err := c.Table(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Kind returns the configured exercise.
func (c *Config) Kind() (counter.Kind, error) {
	return counter.ParseKind(c.Exercise)
}

// Table returns the default threshold table with the configured overrides
// applied. Two names for the same exercise are rejected.
func (c *Config) Table() (counter.Table, error) {
	table := counter.DefaultTable()
	seen := make(map[counter.Kind]string, len(c.Thresholds))
	for name, th := range c.Thresholds {
		kind, err := counter.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("thresholds: %w", err)
		}
		if prev, ok := seen[kind]; ok {
			first, second := prev, name
			if second < first {
				first, second = second, first
			}
			return nil, fmt.Errorf("thresholds: %q and %q both configure %s", first, second, kind)
		}
		seen[kind] = name
		rule := table[kind]
		if th.Down != nil {
			rule.Down = *th.Down
		}
		if th.Up != nil {
			rule.Up = *th.Up
		}
		table[kind] = rule
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("thresholds: %w", err)
	}
	return table, nil
}

// ParseLevel maps a config level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
