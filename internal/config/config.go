package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Audio  AudioConfig  `mapstructure:"audio" yaml:"audio"`
	Meter  MeterConfig  `mapstructure:"meter" yaml:"meter"`
	Output OutputConfig `mapstructure:"output" yaml:"output"`
}

// AudioConfig selects the capture backend, the source device as known to the
// sound server ("default" for the system default) and the raw PCM format,
// including how many bytes each emitted chunk carries.
type AudioConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`
	Device     string `mapstructure:"device" yaml:"device"`
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int    `mapstructure:"channels" yaml:"channels"`
	ChunkBytes int    `mapstructure:"chunk_bytes" yaml:"chunk_bytes"`
}

// MeterConfig sets the display-refresh tick and the analyzer snapshot size.
type MeterConfig struct {
	IntervalMs int `mapstructure:"interval_ms" yaml:"interval_ms"`
	Bins       int `mapstructure:"bins" yaml:"bins"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			Backend:    "auto",
			Device:     "default",
			SampleRate: 44100,
			Channels:   1,
			ChunkBytes: 4096,
		},
		Meter: MeterConfig{
			IntervalMs: 50,
			Bins:       32,
		},
		Output: OutputConfig{
			Directory: filepath.Join(os.Getenv("HOME"), "Audio", "VoiceCapture"),
		},
	}
}

// Load reads the YAML config at path, falling back to defaults when the file
// does not exist. An empty path always yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("audio.backend", def.Audio.Backend)
	v.SetDefault("audio.device", def.Audio.Device)
	v.SetDefault("audio.sample_rate", def.Audio.SampleRate)
	v.SetDefault("audio.channels", def.Audio.Channels)
	v.SetDefault("audio.chunk_bytes", def.Audio.ChunkBytes)
	v.SetDefault("meter.interval_ms", def.Meter.IntervalMs)
	v.SetDefault("meter.bins", def.Meter.Bins)
	v.SetDefault("output.directory", def.Output.Directory)
}

// Validate checks the configuration for values the capture pipeline cannot
// work with.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate must be between 8000 and 192000, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("audio.channels must be 1 (mono) or 2 (stereo), got %d", c.Audio.Channels)
	}
	if c.Audio.ChunkBytes < 256 || c.Audio.ChunkBytes > 1<<20 {
		return fmt.Errorf("audio.chunk_bytes must be between 256 and 1048576, got %d", c.Audio.ChunkBytes)
	}
	if c.Audio.Device == "" {
		return fmt.Errorf("audio.device must not be empty")
	}
	if c.Meter.IntervalMs < 10 || c.Meter.IntervalMs > 1000 {
		return fmt.Errorf("meter.interval_ms must be between 10 and 1000, got %d", c.Meter.IntervalMs)
	}
	if c.Meter.Bins < 1 || c.Meter.Bins > 4096 {
		return fmt.Errorf("meter.bins must be between 1 and 4096, got %d", c.Meter.Bins)
	}
	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory must not be empty")
	}
	return nil
}

// MeterInterval returns the metering tick interval as a duration.
func (c *Config) MeterInterval() time.Duration {
	return time.Duration(c.Meter.IntervalMs) * time.Millisecond
}
