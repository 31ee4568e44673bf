package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFromDir(t *testing.T, dir string) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadFromDir(t, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http://localhost:3002", cfg.Classifier.ServiceURL)
	assert.Equal(t, 0.5, cfg.Classifier.Threshold)
	assert.Equal(t, "./configs/model_features.json", cfg.Features.SchemaPath)
	assert.Equal(t, 20, cfg.Features.MidPriceWindow)
	assert.Equal(t, 300, cfg.Detection.SpoofingWindowSeconds)
	assert.Equal(t, 0.05, cfg.Detection.SpoofingTolerance)
	assert.Equal(t, 600, cfg.Detection.LoopWindowSeconds)
	assert.Equal(t, 5, cfg.Detection.MaxLoopLength)
	assert.Equal(t, 5, cfg.Detection.RepeatedPairThreshold)
	assert.True(t, cfg.Detection.Rules.SelfTrade)
	assert.True(t, cfg.Detection.Rules.Spoofing)
	assert.True(t, cfg.Detection.Rules.TradeLoop)
	assert.True(t, cfg.Detection.Rules.RepeatedPair)
	assert.Equal(t, 8, cfg.Analysis.MaxWorkers)
	assert.True(t, cfg.Registry.Enabled)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	content := []byte(`
environment: Production
log_level: warn
classifier:
  threshold: 0.7
detection:
  max_loop_length: 4
  rules:
    repeated_pair: false
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), content, 0o644))

	cfg, err := loadFromDir(t, dir)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment) // lowercased
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 0.7, cfg.Classifier.Threshold)
	assert.Equal(t, 4, cfg.Detection.MaxLoopLength)
	assert.False(t, cfg.Detection.Rules.RepeatedPair)
	// Untouched keys keep their defaults.
	assert.Equal(t, 300, cfg.Detection.SpoofingWindowSeconds)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("CLASSIFIER_SERVICE_URL", "http://scorer:9000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := loadFromDir(t, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "http://scorer:9000", cfg.Classifier.ServiceURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Classifier: ClassifierConfig{Threshold: 0.5},
			Detection: DetectionConfig{
				MaxLoopLength:     5,
				SpoofingTolerance: 0.05,
			},
			Analysis: AnalysisConfig{MaxWorkers: 4},
		}
	}

	assert.NoError(t, validate(valid()))

	cfg := valid()
	cfg.Classifier.Threshold = 1.5
	assert.Error(t, validate(cfg))

	cfg = valid()
	cfg.Detection.MaxLoopLength = 1
	assert.Error(t, validate(cfg))

	cfg = valid()
	cfg.Detection.SpoofingTolerance = 0
	assert.Error(t, validate(cfg))

	cfg = valid()
	cfg.Analysis.MaxWorkers = 0
	assert.Error(t, validate(cfg))
}

func TestDetectionWindows(t *testing.T) {
	detection := DetectionConfig{SpoofingWindowSeconds: 300, LoopWindowSeconds: 600}
	assert.Equal(t, 5*time.Minute, detection.SpoofingWindow())
	assert.Equal(t, 10*time.Minute, detection.LoopWindow())
}
