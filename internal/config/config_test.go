package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andrewwphillips/likecache/internal/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.LogFlags(flags)
	config.ServeFlags(flags)
	config.ViewFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestDefaults(t *testing.T) {
	c, err := config.Load(flagSet(t))
	require.NoError(t, err)
	assert.Equal(t, config.Config{
		Port:            8081,
		Path:            "/graphql",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		Endpoint:        "http://localhost:8081/graphql",
		NetworkOnly:     true,
		Optimistic:      true,
	}, c)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("NETWORK_ONLY", "false")

	c, err := config.Load(flagSet(t))
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Port)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "http://collector:4318", c.OTelEndpoint)
	assert.False(t, c.NetworkOnly)
	assert.Equal(t, "/graphql", c.Path, "PATH must not leak into the GraphQL path")
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	c, err := config.Load(flagSet(t, "--port=7070", "--path=/gql", "--optimistic=false", "--shutdown-timeout=1s"))
	require.NoError(t, err)
	assert.Equal(t, 7070, c.Port)
	assert.Equal(t, "/gql", c.Path)
	assert.False(t, c.Optimistic)
	assert.Equal(t, time.Second, c.ShutdownTimeout)
}

func TestNilFlags(t *testing.T) {
	t.Setenv("ENDPOINT", "https://example.com/graphql")
	c, err := config.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/graphql", c.Endpoint)
	assert.Equal(t, 8081, c.Port)
}

func TestValidate(t *testing.T) {
	valid := config.Config{Port: 1, Path: "/", Endpoint: "http://h/"}
	require.NoError(t, valid.Validate())

	for name, modify := range map[string]func(*config.Config){
		"PortLow":  func(c *config.Config) { c.Port = 0 },
		"PortHigh": func(c *config.Config) { c.Port = 65536 },
		"Path":     func(c *config.Config) { c.Path = "graphql" },
		"Timeout":  func(c *config.Config) { c.ShutdownTimeout = -time.Second },
		"Scheme":   func(c *config.Config) { c.Endpoint = "ftp://h/" },
		"BadURL":   func(c *config.Config) { c.Endpoint = "http://[::1" },
	} {
		c := valid
		modify(&c)
		assert.Error(t, c.Validate(), name)
	}

	_, err := config.Load(flagSet(t, "--port=70000"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	const key = "LIKECACHE_DOTENV_TEST"
	filename := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(filename, []byte(key+"=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	require.NoError(t, config.LoadDotEnv(filename))
	assert.Equal(t, "from-file", os.Getenv(key))

	// A missing file is not an error
	assert.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
