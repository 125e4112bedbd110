package viper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
hub:
  host: 0.0.0.0
  port: 9000
  idleTimeoutSeconds: 120
log:
  level: debug
  file:
    filename: hub.log
`

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileAndPrecedence(t *testing.T) {
	c := New()
	c.SetDefaults(map[string]any{
		"hub.host":                 "127.0.0.1",
		"hub.port":                 7777,
		"hub.idleTimeoutSeconds":   3600,
		"hub.sweepIntervalSeconds": 60,
	})
	c.SetEnvPrefix("SWBTEST")
	t.Setenv("SWBTEST_HUB_HOST", "10.0.0.1")

	require.NoError(t, c.LoadFile(writeFile(t, "config.yaml", sampleYAML)))
	assert.NotEmpty(t, c.ConfigFileUsed())

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	require.NoError(t, flags.Parse([]string{"--port=7000"}))
	require.NoError(t, c.BindFlag("hub.port", flags.Lookup("port")))

	assert.Equal(t, "10.0.0.1", c.GetString("hub.host"))
	assert.Equal(t, 7000, c.GetInt("hub.port"))
	assert.Equal(t, 2*time.Minute, c.GetSeconds("hub.idleTimeoutSeconds"))
	assert.Equal(t, time.Minute, c.GetSeconds("hub.sweepIntervalSeconds"))

	var logCfg struct {
		Level string `mapstructure:"level"`
		File  struct {
			Filename string `mapstructure:"filename"`
		} `mapstructure:"file"`
	}
	require.NoError(t, c.UnmarshalKey("log", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)
	assert.Equal(t, "hub.log", logCfg.File.Filename)
}

func TestLoadFileMissing(t *testing.T) {
	c := New()
	err := c.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestBindFlagNil(t *testing.T) {
	assert.Error(t, New().BindFlag("hub.port", nil))
}
