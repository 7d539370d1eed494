// Package config loads the leebee server configuration from defaults, an
// optional YAML file and LEEBEE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mini-leebee/leebee"
	"github.com/mini-leebee/leebee/engine"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Audio     AudioConfig
	Engine    EngineConfig
	Plugins   PluginsConfig
	Metronome MetronomeConfig
	MIDI      MIDIConfig
	Log       LogConfig
}

type ServerConfig struct {
	RPCAddr  string
	HTTPAddr string
	MCP      bool
}

type AudioConfig struct {
	Backend    string // "oto" or "null"
	SampleRate int
	BlockSize  int
}

type EngineConfig struct {
	CommandQuota  int
	QueueCapacity int
	MaxTracks     int
	Tempo         float64
	MinTempo      float64
	MaxTempo      float64
}

type PluginsConfig struct {
	Index string // path of the YAML plugin index, optional
}

type MetronomeConfig struct {
	Volume float64
}

type MIDIConfig struct {
	Input string // substring of the input port name; empty disables live input
}

type LogConfig struct {
	Verbose bool
}

const (
	BackendOto  = "oto"
	BackendNull = "null"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.rpc_addr", ":21894")
	v.SetDefault("server.http_addr", ":21895")
	v.SetDefault("server.mcp", false)
	v.SetDefault("audio.backend", BackendOto)
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.block_size", 256)
	v.SetDefault("engine.command_quota", engine.DefaultQuota)
	v.SetDefault("engine.queue_capacity", engine.DefaultQueueCapacity)
	v.SetDefault("engine.max_tracks", engine.DefaultMaxTracks)
	v.SetDefault("engine.tempo", leebee.DefaultTempo)
	v.SetDefault("engine.min_tempo", leebee.MinTempo)
	v.SetDefault("engine.max_tempo", leebee.MaxTempo)
	v.SetDefault("plugins.index", "")
	v.SetDefault("metronome.volume", 0)
	v.SetDefault("midi.input", "")
	v.SetDefault("log.verbose", false)
}

// Load reads the configuration. With an empty path it looks for an optional
// leebee.yml in . and ./config; a given path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("leebee")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables, e.g. LEEBEE_AUDIO_BACKEND=null
	v.SetEnvPrefix("leebee")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			RPCAddr:  v.GetString("server.rpc_addr"),
			HTTPAddr: v.GetString("server.http_addr"),
			MCP:      v.GetBool("server.mcp"),
		},
		Audio: AudioConfig{
			Backend:    v.GetString("audio.backend"),
			SampleRate: v.GetInt("audio.sample_rate"),
			BlockSize:  v.GetInt("audio.block_size"),
		},
		Engine: EngineConfig{
			CommandQuota:  v.GetInt("engine.command_quota"),
			QueueCapacity: v.GetInt("engine.queue_capacity"),
			MaxTracks:     v.GetInt("engine.max_tracks"),
			Tempo:         v.GetFloat64("engine.tempo"),
			MinTempo:      v.GetFloat64("engine.min_tempo"),
			MaxTempo:      v.GetFloat64("engine.max_tempo"),
		},
		Plugins: PluginsConfig{
			Index: v.GetString("plugins.index"),
		},
		Metronome: MetronomeConfig{
			Volume: v.GetFloat64("metronome.volume"),
		},
		MIDI: MIDIConfig{
			Input: v.GetString("midi.input"),
		},
		Log: LogConfig{
			Verbose: v.GetBool("log.verbose"),
		},
	}
}

// Validate checks the values that the engine cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Audio.Backend != BackendOto && c.Audio.Backend != BackendNull {
		errs = append(errs, fmt.Errorf("audio.backend must be %q or %q, got %q", BackendOto, BackendNull, c.Audio.Backend))
	}
	if c.Audio.SampleRate <= 0 || c.Audio.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate and audio.block_size must be positive"))
	}
	if c.Engine.CommandQuota <= 0 || c.Engine.QueueCapacity <= 0 || c.Engine.MaxTracks <= 0 {
		errs = append(errs, fmt.Errorf("engine.command_quota, engine.queue_capacity and engine.max_tracks must be positive"))
	}
	r := c.TempoRange()
	if r.Min <= 0 || r.Min > r.Max || !r.Contains(c.Engine.Tempo) {
		errs = append(errs, fmt.Errorf("engine.tempo %v must be inside [engine.min_tempo, engine.max_tempo] = [%v, %v]", c.Engine.Tempo, r.Min, r.Max))
	}
	if c.Metronome.Volume < 0 || c.Metronome.Volume > 1 {
		errs = append(errs, fmt.Errorf("metronome.volume must be in [0, 1], got %v", c.Metronome.Volume))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w: %w", leebee.ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}

func (c *Config) TempoRange() leebee.TempoRange {
	return leebee.TempoRange{Min: c.Engine.MinTempo, Max: c.Engine.MaxTempo}
}

// EngineOptions converts the configuration to engine options. The
// metronome plugin is left for the caller to set.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Format:        engine.Format{SampleRate: c.Audio.SampleRate, BlockSize: c.Audio.BlockSize},
		Quota:         c.Engine.CommandQuota,
		QueueCapacity: c.Engine.QueueCapacity,
		MaxTracks:     c.Engine.MaxTracks,
		Tempo:         c.Engine.Tempo,
		TempoRange:    c.TempoRange(),
	}
}
