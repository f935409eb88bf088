package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qsp "github.com/BackendStack21/qsp-go"
	"github.com/BackendStack21/qsp-go/core"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	p, err := cfg.Apply(core.GetParams())
	require.NoError(t, err)
	assert.Equal(t, core.DefaultParams, p)
}

func TestLoad_Success(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "qsp.yaml")
	content := `
sharing:
  threshold: 2
  shares: 4
stego:
  strength: 40
logging:
  level: "debug"
  format: "json"
paths:
  keys: "/tmp/keys"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Sharing.Threshold)
	assert.Equal(t, 4, cfg.Sharing.Shares)
	assert.Equal(t, 40, cfg.Stego.Strength)
	// Fields missing from the file keep their defaults.
	assert.Equal(t, 14, cfg.Stego.CoeffIndex)
	assert.Equal(t, 10, cfg.Sharing.ScrambleIterations)
	assert.Equal(t, "/tmp/keys", cfg.Paths.Keys)
	assert.Equal(t, filepath.Join("data", "covers"), cfg.Paths.Covers)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Sharing, cfg.Sharing)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("sharing: [unclosed"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("sharing:\n  threshold: 5\n  shares: 5\n"), 0o644))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QSP_THRESHOLD", "4")
	t.Setenv("QSP_SHARES", "7")
	t.Setenv("QSP_STRENGTH", "60")
	t.Setenv("QSP_LOG_LEVEL", "warn")
	t.Setenv("QSP_METRICS_TEXTFILE", "/tmp/qsp.prom")
	t.Setenv("QSP_DATA_DIR", "/srv/qsp")
	t.Setenv("QSP_KEYS_DIR", "/secure/keys")
	t.Setenv("QSP_COEFF_INDEX", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Sharing.Threshold)
	assert.Equal(t, 7, cfg.Sharing.Shares)
	assert.Equal(t, 60, cfg.Stego.Strength)
	assert.Equal(t, 14, cfg.Stego.CoeffIndex)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/tmp/qsp.prom", cfg.Metrics.Textfile)
	assert.Equal(t, filepath.Join("/srv/qsp", "covers"), cfg.Paths.Covers)
	assert.Equal(t, "/secure/keys", cfg.Paths.Keys)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"threshold too small", func(c *Config) { c.Sharing.Threshold = 0 }},
		{"shares not above threshold", func(c *Config) { c.Sharing.Shares = c.Sharing.Threshold }},
		{"too many shares", func(c *Config) { c.Sharing.Shares = 256 }},
		{"negative iterations", func(c *Config) { c.Sharing.ScrambleIterations = -1 }},
		{"weak strength", func(c *Config) { c.Stego.Strength = core.MinStrength - 1 }},
		{"dc coefficient", func(c *Config) { c.Stego.CoeffIndex = 0 }},
		{"no attempts", func(c *Config) { c.Signing.MaxAttempts = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"no keys path", func(c *Config) { c.Paths.Keys = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApply(t *testing.T) {
	cfg := Default()
	cfg.Stego.Strength = 50
	cfg.Signing.MaxAttempts = 8
	p, err := cfg.Apply(core.GetParams())
	require.NoError(t, err)
	assert.Equal(t, 50, p.Stego.Strength)
	assert.Equal(t, 8, p.Lattice.MaxSignAttempts)

	cfg.Stego.Strength = 1000
	_, err = cfg.Apply(core.GetParams())
	assert.True(t, errors.Is(err, qsp.ErrValidation))
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Sharing.Threshold = 4
	cfg.Sharing.Shares = 6
	require.NoError(t, cfg.Write(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
