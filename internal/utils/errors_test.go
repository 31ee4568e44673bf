package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMalformedRecordError(t *testing.T) {
	err := NewMalformedRecordError(3, "base_amount", "must be positive")
	assert.Equal(t, `malformed record at index 3: field "base_amount": must be positive`, err.Error())

	var malformed *MalformedRecordError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, 3, malformed.Index)
	assert.Equal(t, "base_amount", malformed.Field)

	err = NewMalformedRecordError(0, "", "not an object")
	assert.Equal(t, "malformed record at index 0: not an object", err.Error())
}

func TestSchemaMismatchError(t *testing.T) {
	err := NewSchemaMismatchError("in_cycle", "not computed by this engine")
	assert.Equal(t, `feature schema mismatch: feature "in_cycle": not computed by this engine`, err.Error())

	wrapped := fmt.Errorf("batch aborted: %w", err)
	var mismatch *SchemaMismatchError
	require.True(t, errors.As(wrapped, &mismatch))
	assert.Equal(t, "in_cycle", mismatch.FeatureName)
}

func TestClassifierUnavailableError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewClassifierUnavailableError("request failed", cause)
	assert.Equal(t, "classifier unavailable: request failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	err = NewClassifierUnavailableError("no scorer configured", nil)
	assert.Equal(t, "classifier unavailable: no scorer configured", err.Error())

	var unavailable *ClassifierUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}
