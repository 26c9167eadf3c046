package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Version is reported by the health endpoint
const Version = "0.3.0"

// Key overflow policies
const (
	OverflowReject   = "reject"
	OverflowTruncate = "truncate"
)

// Key file formats
const (
	KeyFormatRaw = "raw"
	KeyFormatHex = "hex"
)

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // console, json
}

// KeyConfig controls how key files are read
type KeyConfig struct {
	MaxSize  int    `json:"max_size" mapstructure:"max_size"`
	Overflow string `json:"overflow" mapstructure:"overflow"` // reject, truncate
	Format   string `json:"format" mapstructure:"format"`     // raw, hex
}

// OutputConfig controls how results are persisted
type OutputConfig struct {
	Perm string `json:"perm" mapstructure:"perm"` // octal, e.g. "0644"
}

// JournalConfig controls the operation history
type JournalConfig struct {
	Enable bool   `json:"enable" mapstructure:"enable"`
	Driver string `json:"driver" mapstructure:"driver"` // bolt, mysql
	DSN    string `json:"dsn" mapstructure:"dsn"`
	// how long to wait for another process holding the bolt file
	LockTimeout time.Duration `json:"lock_timeout" mapstructure:"lock_timeout"`
}

// SchemeConfig represents server listen configuration
type SchemeConfig struct {
	Address   string `json:"address" mapstructure:"address"`
	HTTPPort  int    `json:"http_port" mapstructure:"http_port"`
	EnableH2C bool   `json:"enable_h2c" mapstructure:"enable_h2c"`
	MaxBodyMB int    `json:"max_body_mb" mapstructure:"max_body_mb"`
}

// AuthConfig controls login for the HTTP API
type AuthConfig struct {
	Enable        bool   `json:"enable" mapstructure:"enable"`
	AdminPassword string `json:"admin_password" mapstructure:"admin_password"`
}

// Config represents the main configuration
type Config struct {
	Log       LogConfig     `json:"log" mapstructure:"log"`
	Key       KeyConfig     `json:"key" mapstructure:"key"`
	Output    OutputConfig  `json:"output" mapstructure:"output"`
	Journal   JournalConfig `json:"journal" mapstructure:"journal"`
	Scheme    SchemeConfig  `json:"scheme" mapstructure:"scheme"`
	Auth      AuthConfig    `json:"auth" mapstructure:"auth"`
	DataDir   string        `json:"data_dir" mapstructure:"data_dir"`
	JWTSecret string        `json:"jwt_secret" mapstructure:"jwt_secret"`
	JWTExpire int           `json:"jwt_expire" mapstructure:"jwt_expire"` // hours
}

var (
	cfg  *Config
	once sync.Once
)

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("key.max_size", 256)
	v.SetDefault("key.overflow", OverflowReject)
	v.SetDefault("key.format", KeyFormatRaw)

	v.SetDefault("output.perm", "0644")

	v.SetDefault("journal.enable", true)
	v.SetDefault("journal.driver", "bolt")
	v.SetDefault("journal.dsn", "")
	v.SetDefault("journal.lock_timeout", "2s")

	v.SetDefault("scheme.address", "0.0.0.0")
	v.SetDefault("scheme.http_port", 5380)
	v.SetDefault("scheme.enable_h2c", false)
	v.SetDefault("scheme.max_body_mb", 32)

	v.SetDefault("auth.enable", false)
	v.SetDefault("auth.admin_password", "")

	v.SetDefault("data_dir", "./data")
	v.SetDefault("jwt_secret", "rc4-stream-secret-change-me")
	v.SetDefault("jwt_expire", 24)
}

// SetCLIDefaults overrides the defaults for one-shot command line runs:
// no journal unless asked for, and no waiting on a server's lock.
func SetCLIDefaults(v *viper.Viper) {
	v.SetDefault("journal.enable", false)
	v.SetDefault("journal.lock_timeout", "100ms")
}

// New builds a viper instance with defaults, search paths and env binding.
// A non-empty file overrides the search paths.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.rc4-stream")
	}

	v.SetEnvPrefix("RC4_STREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadFrom reads the config file (if any) and decodes v into a Config
func LoadFrom(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			log.Debug().Msg("Config file not found, using defaults")
		case os.IsNotExist(err):
			return nil, fmt.Errorf("config file not found: %w", err)
		default:
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load returns the process-wide config, reading it on first use
func Load(file string) *Config {
	once.Do(func() {
		c, err := LoadFrom(New(file))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load config")
		}
		cfg = c
	})
	return cfg
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.Key.Overflow {
	case OverflowReject, OverflowTruncate:
	default:
		return fmt.Errorf("key.overflow must be %q or %q, got %q", OverflowReject, OverflowTruncate, c.Key.Overflow)
	}
	switch c.Key.Format {
	case KeyFormatRaw, KeyFormatHex:
	default:
		return fmt.Errorf("key.format must be %q or %q, got %q", KeyFormatRaw, KeyFormatHex, c.Key.Format)
	}
	if c.Key.MaxSize < 1 || c.Key.MaxSize > 256 {
		return fmt.Errorf("key.max_size must be in 1..256, got %d", c.Key.MaxSize)
	}
	switch c.Journal.Driver {
	case "bolt", "mysql":
	default:
		return fmt.Errorf("unsupported journal driver: %s", c.Journal.Driver)
	}
	if c.Journal.LockTimeout < 0 {
		return fmt.Errorf("journal.lock_timeout must not be negative, got %s", c.Journal.LockTimeout)
	}
	if _, err := c.OutputPerm(); err != nil {
		return err
	}
	return nil
}

// OutputPerm parses output.perm as an octal file mode
func (c *Config) OutputPerm() (os.FileMode, error) {
	perm, err := strconv.ParseUint(c.Output.Perm, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid output.perm %q: %w", c.Output.Perm, err)
	}
	return os.FileMode(perm), nil
}

// GetHTTPAddr returns the HTTP listen address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Scheme.Address, c.Scheme.HTTPPort)
}

// IsH2CEnabled returns whether cleartext HTTP/2 is enabled
func (c *Config) IsH2CEnabled() bool {
	return c.Scheme.EnableH2C
}
