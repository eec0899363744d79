package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/config"
)

type workerConfig struct {
	Workers int           `env:"TEST_DISPATCH_WORKERS" envDefault:"8"`
	Window  time.Duration `env:"TEST_DISPATCH_WINDOW" envDefault:"250ms"`
}

type requiredConfig struct {
	Token string `env:"TEST_REQUIRED_TOKEN,required"`
}

func TestLoad(t *testing.T) {
	config.Reset()
	t.Setenv("TEST_DISPATCH_WORKERS", "16")

	var cfg workerConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Window)

	t.Run("cached per type", func(t *testing.T) {
		t.Setenv("TEST_DISPATCH_WORKERS", "32")
		var again workerConfig
		require.NoError(t, config.Load(&again))
		assert.Equal(t, 16, again.Workers)
	})

	t.Run("reset clears cache", func(t *testing.T) {
		t.Setenv("TEST_DISPATCH_WORKERS", "32")
		config.Reset()
		var fresh workerConfig
		require.NoError(t, config.Load(&fresh))
		assert.Equal(t, 32, fresh.Workers)
	})
}

func TestLoad_Errors(t *testing.T) {
	var nilCfg *workerConfig
	assert.ErrorIs(t, config.Load(nilCfg), config.ErrNilPointer)

	os.Unsetenv("TEST_REQUIRED_TOKEN")
	var cfg requiredConfig
	assert.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
}

func TestMustLoad(t *testing.T) {
	os.Unsetenv("TEST_REQUIRED_TOKEN")
	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}

type channelFile struct {
	Channels []struct {
		Name  string `yaml:"name"`
		Token string `yaml:"token"`
	} `yaml:"channels"`
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channels:\n  - name: email\n    token: ${TEST_FILE_TOKEN}\n"), 0o600))
	t.Setenv("TEST_FILE_TOKEN", "secret")

	var f channelFile
	require.NoError(t, config.LoadFile(path, &f))
	require.Len(t, f.Channels, 1)
	assert.Equal(t, "email", f.Channels[0].Name)
	assert.Equal(t, "secret", f.Channels[0].Token)

	t.Run("missing file", func(t *testing.T) {
		var f channelFile
		assert.ErrorIs(t, config.LoadFile(filepath.Join(dir, "nope.yaml"), &f), config.ErrReadingFile)
	})

	t.Run("unknown keys rejected", func(t *testing.T) {
		var f channelFile
		err := config.Decode([]byte("channel: []\n"), &f)
		assert.ErrorIs(t, err, config.ErrDecodingFile)
	})
}
