package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	EngineMemory = "memory"
	EnginePion   = "pion"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	Secret   string `mapstructure:"secret"`

	// Engine selects the peer connection implementation: memory or pion.
	Engine    string `mapstructure:"engine"`
	AutoMedia bool   `mapstructure:"auto_media"`
	Audio     bool   `mapstructure:"audio"`

	ICEServers  []string      `mapstructure:"ice_servers"`
	VNet        bool          `mapstructure:"vnet"`
	PLIInterval time.Duration `mapstructure:"pli_interval"`

	Media  MediaConfig  `mapstructure:"media"`
	Memory MemoryConfig `mapstructure:"memory"`
	WS     WSConfig     `mapstructure:"ws"`
	HTTP   HTTPConfig   `mapstructure:"http"`
}

type CameraConfig struct {
	ID          string `mapstructure:"id"`
	Label       string `mapstructure:"label"`
	Unavailable bool   `mapstructure:"unavailable"`
}

type MediaConfig struct {
	PumpInterval time.Duration  `mapstructure:"pump_interval"`
	Cameras      []CameraConfig `mapstructure:"cameras"`
}

type MemoryConfig struct {
	CandidatesPerDescription int `mapstructure:"candidates_per_description"`
}

type WSConfig struct {
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadLimit    int64         `mapstructure:"read_limit"`
}

type HTTPConfig struct {
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
	OpTimeout  time.Duration `mapstructure:"op_timeout"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). Every key can
// be overridden from the environment, e.g. LOOPCALL_MEMORY_CANDIDATES_PER_DESCRIPTION.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("LOOPCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("engine", cfg.Engine).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "loopcall-dev-secret")

	v.SetDefault("engine", EngineMemory)
	v.SetDefault("auto_media", true)
	v.SetDefault("audio", true)

	v.SetDefault("ice_servers", []string{})
	v.SetDefault("vnet", true)
	v.SetDefault("pli_interval", "3s")

	v.SetDefault("media.pump_interval", "33ms")
	v.SetDefault("memory.candidates_per_description", 2)

	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.write_timeout", "5s")
	v.SetDefault("ws.read_limit", 32768)

	v.SetDefault("http.rate_limit", 20)
	v.SetDefault("http.rate_window", "1s")
	v.SetDefault("http.op_timeout", "10s")
}

func (c *Config) Validate() error {
	var errs []error
	if c.Engine != EngineMemory && c.Engine != EnginePion {
		errs = append(errs, fmt.Errorf("engine %q: want %s or %s", c.Engine, EngineMemory, EnginePion))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Memory.CandidatesPerDescription < 0 {
		errs = append(errs, errors.New("memory.candidates_per_description must not be negative"))
	}
	seen := make(map[string]bool, len(c.Media.Cameras))
	for _, cam := range c.Media.Cameras {
		if cam.ID == "" {
			errs = append(errs, errors.New("media.cameras: camera without id"))
			continue
		}
		if seen[cam.ID] {
			errs = append(errs, fmt.Errorf("media.cameras: duplicate id %q", cam.ID))
		}
		seen[cam.ID] = true
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level is the zerolog level named by LogLevel; Validate has checked it.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
