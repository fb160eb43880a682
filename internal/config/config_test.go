package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_KeepsDefaults(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "")
	t.Setenv("BYBIT_API_SECRET", "")

	path := writeFile(t, `
server:
  port: 9090
scalper:
  symbol: ETHUSDT
  sell_percent: 1.2
  reverse_down_percent: 0.8
  guesser:
    reverse_bias: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "scalper.db", cfg.Storage.Path)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "ETHUSDT", cfg.Scalper.Symbol)
	assert.Equal(t, 1.2, cfg.Scalper.SellPercent)
	assert.Equal(t, 4.0, cfg.Scalper.Guesser.ReverseBias)
	// Untouched nested defaults survive a partial guesser block.
	assert.Equal(t, 0.95, cfg.Scalper.Guesser.Decay)
	assert.True(t, cfg.Scalper.UseLimitFOK)
}

func TestLoad_EnvOverridesAndSaveOmitsIt(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "env-key")
	t.Setenv("BYBIT_API_SECRET", "env-secret")

	path := writeFile(t, `
dry_run: false
exchange:
  api_key: file-key
  api_secret: file-secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Exchange.APIKey)
	assert.Equal(t, "env-secret", cfg.Exchange.APISecret)

	cfg.Scalper.SellPercent = 2
	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "env-key")
	assert.NotContains(t, string(data), "env-secret")
	assert.Contains(t, string(data), "sell_percent: 2")
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "")
	t.Setenv("BYBIT_API_SECRET", "")

	_, err := Load(writeFile(t, "dry_run: false\n"))
	assert.ErrorContains(t, err, "credentials")

	_, err = Load(writeFile(t, "scalper:\n  sell_percent: 0\n"))
	assert.ErrorContains(t, err, "sell_percent")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "")
	t.Setenv("BYBIT_API_SECRET", "")

	cfg := Default()
	cfg.Scalper.PriceBias = 1.5
	cfg.Scalper.DontGuess = true
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Scalper, loaded.Scalper)
	assert.Equal(t, cfg.Logging, loaded.Logging)
}

func TestSaver_ConcurrentEdits(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "")
	t.Setenv("BYBIT_API_SECRET", "")

	cfg := Default()
	path := filepath.Join(t.TempDir(), "config.yaml")
	saver := NewSaver(cfg, path)
	base := cfg.Scalper

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			set := base
			set.WaitTimeCount = n
			assert.NoError(t, saver.SaveScalper(set))
		}(i)
	}
	wg.Wait()

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Scalper, loaded.Scalper, "file holds the last edit applied")
	assert.Positive(t, loaded.Scalper.WaitTimeCount)
}
