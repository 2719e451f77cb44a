// Package config loads the settings shared by the likecache commands from flags, the environment and an
// optional .env file.  A flag that was set on the command line wins over the environment, which wins over
// the defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultPort            = 8081
	DefaultPath            = "/graphql"
	DefaultEndpoint        = "http://localhost:8081/graphql"
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 10 * time.Second
)

// Config is the typed form of the settings
type Config struct {
	// Catalog Service
	Port            int           `mapstructure:"port"`
	Path            string        `mapstructure:"graphql-path"`
	LogLevel        string        `mapstructure:"log-level"`
	OTelEndpoint    string        `mapstructure:"otel-endpoint"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`

	// Client View
	Endpoint    string `mapstructure:"endpoint"`
	NetworkOnly bool   `mapstructure:"network-only"`
	Optimistic  bool   `mapstructure:"optimistic"`
}

// ServeFlags adds the flags of the serve command
func ServeFlags(flags *pflag.FlagSet) {
	flags.Int("port", DefaultPort, "port to listen on (env PORT)")
	flags.String("path", DefaultPath, "path of the GraphQL endpoint")
	flags.String("otel-endpoint", "", "OTLP/HTTP trace collector, eg http://localhost:4318 (env OTEL_EXPORTER_OTLP_ENDPOINT)")
	flags.Duration("shutdown-timeout", DefaultShutdownTimeout, "how long to wait for requests to finish on shutdown")
}

// ViewFlags adds the flags of the view command
func ViewFlags(flags *pflag.FlagSet) {
	flags.String("endpoint", DefaultEndpoint, "URL of the Catalog Service GraphQL endpoint")
	flags.Bool("network-only", true, "always fetch the product list from the server on mount")
	flags.Bool("optimistic", true, "apply an optimistic response when toggling")
}

// LogFlags adds the flags common to all commands
func LogFlags(flags *pflag.FlagSet) {
	flags.String("log-level", DefaultLogLevel, "debug, info, warn or error")
}

// NewViper returns a viper instance holding the defaults, bound to the environment and (if not nil) the flags
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("port", DefaultPort)
	v.SetDefault("graphql-path", DefaultPath)
	v.SetDefault("log-level", DefaultLogLevel)
	v.SetDefault("otel-endpoint", "")
	v.SetDefault("shutdown-timeout", DefaultShutdownTimeout)
	v.SetDefault("endpoint", DefaultEndpoint)
	v.SetDefault("network-only", true)
	v.SetDefault("optimistic", true)

	// log-level is read from LOG_LEVEL etc.  The --path flag has its own key so that PATH is not used.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("otel-endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT"); err != nil {
		return nil, err
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
		if f := flags.Lookup("path"); f != nil {
			if err := v.BindPFlag("graphql-path", f); err != nil {
				return nil, fmt.Errorf("binding flags: %w", err)
			}
		}
	}
	return v, nil
}

// Load reads .env (if present) then returns the validated settings
func Load(flags *pflag.FlagSet) (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}
	v, err := NewViper(flags)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadDotEnv copies the variables in the files (default ".env") into the environment.  Variables already
// set are not overwritten and missing files are ignored.
func LoadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

// Validate checks the values that can not be defaulted
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path %q must start with /", c.Path)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("negative shutdown timeout %v", c.ShutdownTimeout)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %q is not an http(s) URL", c.Endpoint)
	}
	return nil
}
