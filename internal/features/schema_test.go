package features

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/washwatch/washwatch-go/internal/utils"
)

func TestNewSchema_Valid(t *testing.T) {
	schema, err := NewSchema([]string{FeaturePrice, FeatureInCycle})
	require.NoError(t, err)
	assert.Equal(t, 2, schema.Len())
	assert.Equal(t, []string{FeaturePrice, FeatureInCycle}, schema.Names())
}

func TestNewSchema_Empty(t *testing.T) {
	_, err := NewSchema(nil)
	require.Error(t, err)

	var mismatch *utils.SchemaMismatchError
	assert.True(t, errors.As(err, &mismatch))
}

func TestNewSchema_Duplicate(t *testing.T) {
	_, err := NewSchema([]string{FeaturePrice, FeaturePrice})
	require.Error(t, err)

	var mismatch *utils.SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, FeaturePrice, mismatch.FeatureName)
}

func TestSchema_NamesIsACopy(t *testing.T) {
	schema, err := NewSchema([]string{FeaturePrice, FeatureInCycle})
	require.NoError(t, err)

	names := schema.Names()
	names[0] = "mutated"
	assert.Equal(t, []string{FeaturePrice, FeatureInCycle}, schema.Names())
}

func TestSchema_Validate(t *testing.T) {
	schema, err := NewSchema([]string{FeaturePrice, "volatility_zscore"})
	require.NoError(t, err)

	err = schema.Validate(availableFeatures())
	require.Error(t, err)

	var mismatch *utils.SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "volatility_zscore", mismatch.FeatureName)
}

func TestLoadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_features.json")
	require.NoError(t, os.WriteFile(path, []byte(`["price", "in_cycle", "cycle_length"]`), 0o644))

	schema, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "in_cycle", "cycle_length"}, schema.Names())
}

func TestLoadSchema_MissingFile(t *testing.T) {
	_, err := LoadSchema(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadSchema_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_features.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not": "a list"}`), 0o644))

	_, err := LoadSchema(path)
	assert.Error(t, err)
}
