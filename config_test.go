package rdm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, text string) string {
	path := filepath.Join(t.TempDir(), "rdm.toml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func Test_DefaultConfig_is_valid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultFailureThreshold, cfg.FailureThreshold)
	assert.Equal(t, logrus.InfoLevel, cfg.Logger().GetLevel())
}

func Test_LoadConfig(t *testing.T) {
	path := writeConfig(t, `
url = "http://example.com/rdm"
transport = "fasthttp"
failure_threshold = 5
poll_timeout = "2s"
idle_timeout = "10s"
request_timeout = "5s"
log_level = "debug"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/rdm", cfg.URL)
	assert.Equal(t, TransportFastHTTP, cfg.Transport)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, time.Second*2, cfg.PollTimeout.Duration)
	assert.Equal(t, time.Second*10, cfg.IdleTimeout.Duration)
	assert.Equal(t, DefaultSessionHeader, cfg.SessionHeader)
	assert.Equal(t, logrus.DebugLevel, cfg.Logger().GetLevel())
}

func Test_LoadConfig_unknown_key(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `pol_timeout = "2s"`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pol_timeout")
}

func Test_LoadConfig_bad_duration(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `poll_timeout = "soon"`))
	assert.Error(t, err)
}

func Test_LoadConfig_missing_file(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func Test_Config_Validate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"header":     func(cfg *Config) { cfg.SessionHeader = "" },
		"transport":  func(cfg *Config) { cfg.Transport = "carrier-pigeon" },
		"threshold":  func(cfg *Config) { cfg.FailureThreshold = 0 },
		"startdelay": func(cfg *Config) { cfg.StartDelay.Duration = -1 },
		"poll":       func(cfg *Config) { cfg.PollTimeout.Duration = 0 },
		"request":    func(cfg *Config) { cfg.RequestTimeout.Duration = cfg.PollTimeout.Duration },
		"idle":       func(cfg *Config) { cfg.IdleTimeout.Duration = cfg.PollTimeout.Duration },
		"bodysize":   func(cfg *Config) { cfg.MaxBodySize = -1 },
		"prefixes":   func(cfg *Config) { cfg.ServerCallPrefix = cfg.ClientCallPrefix },
		"loglevel":   func(cfg *Config) { cfg.LogLevel = "chatty" },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func Test_Duration_MarshalText(t *testing.T) {
	b, err := Duration{time.Second * 3}.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "3s", string(b))
	var d Duration
	assert.NoError(t, d.UnmarshalText(b))
	assert.Equal(t, time.Second*3, d.Duration)
}
