package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RunnerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	QueueSize  int           `mapstructure:"queue_size"`

	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`

	DefaultCode     string `mapstructure:"default_code"`
	DefaultLanguage string `mapstructure:"default_language"`

	CORSOrigins []string     `mapstructure:"cors_origins"`
	ICEServers  []string     `mapstructure:"ice_servers"`
	Runner      RunnerConfig `mapstructure:"runner"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, dev by default.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFrom(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFrom reads fileName over the defaults. A missing file is not an
// error. Every key can be overridden as CODEROOM_<KEY>.
func LoadFrom(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("coderoom")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
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
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("queue_size", 1024)

	v.SetDefault("rate_limit", 60)
	v.SetDefault("rate_interval", "1s")

	v.SetDefault("default_code", "// start coding")
	v.SetDefault("default_language", "javascript")

	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("runner.url", "https://emkc.org/api/v2/piston")
	v.SetDefault("runner.timeout", "10s")
}

func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod:
		return fmt.Errorf("pong_wait (%s) must exceed ping_period (%s)", c.PongWait, c.PingPeriod)
	case c.SendBuffer <= 0:
		return fmt.Errorf("send_buffer must be positive")
	case c.RateLimit <= 0 || c.RateInterval <= 0:
		return fmt.Errorf("rate_limit and rate_interval must be positive")
	}
	return nil
}
