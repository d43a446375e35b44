package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. REPLAYKIT_SERVER_PORT.
const EnvPrefix = "REPLAYKIT"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
	Recording RecordingConfig `mapstructure:"recording"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Export    ExportConfig    `mapstructure:"export"`
	Vars      VarsConfig      `mapstructure:"vars"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`
	// WorkDir roots trace logs and exported tests. Empty means the process
	// working directory.
	WorkDir string `mapstructure:"workDir"`
}

type BrowserConfig struct {
	ExecutablePath  string        `mapstructure:"executablePath"`
	Headless        bool          `mapstructure:"headless"`
	UserDataDir     string        `mapstructure:"userDataDir"`
	ActionTimeout   time.Duration `mapstructure:"actionTimeout"`
	RunTimeout      time.Duration `mapstructure:"runTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	MaxSessions     int           `mapstructure:"maxSessions"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
	ApiKey         string   `mapstructure:"apiKey"`
}

type RecordingConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	ProbeTimeout          time.Duration `mapstructure:"probeTimeout"`
	MaxValidationFailures int           `mapstructure:"maxValidationFailures"`
}

type MatchingConfig struct {
	AgreementThreshold float64 `mapstructure:"agreementThreshold"`
	RoleNameMaxLen     int     `mapstructure:"roleNameMaxLen"`
	TextSnippetMaxLen  int     `mapstructure:"textSnippetMaxLen"`
}

type ExportConfig struct {
	Dir              string `mapstructure:"dir"`
	EnvPrefix        string `mapstructure:"envPrefix"`
	AllowTodoMarkers bool   `mapstructure:"allowTodoMarkers"`
}

type VarsConfig struct {
	// EnvDir holds the .env files template variables are loaded from.
	EnvDir string `mapstructure:"envDir"`
	// EnvName selects the extra .env.<name> file.
	EnvName string `mapstructure:"envName"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "15s")
	v.SetDefault("server.idleTimeout", "60s")
	v.SetDefault("server.workDir", "")

	v.SetDefault("browser.executablePath", "") // auto-detect
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.userDataDir", "") // temporary profile
	v.SetDefault("browser.actionTimeout", "30s")
	v.SetDefault("browser.runTimeout", "10m")
	v.SetDefault("browser.shutdownTimeout", "10s")
	v.SetDefault("browser.maxSessions", 4)

	v.SetDefault("log.level", "info")

	v.SetDefault("security.allowedOrigins", []string{"*"})
	v.SetDefault("security.apiKey", "")

	v.SetDefault("recording.enabled", true)
	v.SetDefault("recording.probeTimeout", "2s")
	v.SetDefault("recording.maxValidationFailures", 100)

	v.SetDefault("matching.agreementThreshold", 0.5)
	v.SetDefault("matching.roleNameMaxLen", 50)
	v.SetDefault("matching.textSnippetMaxLen", 100)

	v.SetDefault("export.dir", "tests/replaykit")
	v.SetDefault("export.envPrefix", "REPLAYKIT_")
	v.SetDefault("export.allowTodoMarkers", false)

	v.SetDefault("vars.envDir", ".")
	v.SetDefault("vars.envName", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.replaykit")
		v.AddConfigPath("/etc/replaykit")
	}

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the rest of the program cannot work with.
func (c *Config) Validate() error {
	if c.Browser.MaxSessions < 1 {
		return fmt.Errorf("browser.maxSessions must be at least 1, got %d", c.Browser.MaxSessions)
	}
	if t := c.Matching.AgreementThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("matching.agreementThreshold must be in (0, 1], got %v", t)
	}
	if c.Matching.RoleNameMaxLen < 1 || c.Matching.TextSnippetMaxLen < 1 {
		return errors.New("matching length limits must be positive")
	}
	if c.Export.EnvPrefix == "" {
		return errors.New("export.envPrefix must not be empty")
	}
	return nil
}
