package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"not connected", ErrNotConnected, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"not found", ErrNotFound, false},
		{"wrapped sentinel", fmt.Errorf("dial: %w", ErrConnectionLost), true},
		{"timeout only in message", fmt.Errorf("operation timeout occurred"), false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err), "error: %v", test.err)
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid config", ErrInvalidConfig, true},
		{"missing config", ErrMissingConfig, true},
		{"not found", ErrNotFound, false},
		{"config not found", fmt.Errorf("read: %w", ErrConfigNotFound), true},
		{"unclassified", fmt.Errorf("fatal system error occurred"), false},
		{"wrapped fatal", WrapFatal(ErrInvalidConfig, "Loader", "Load", "parse"), true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsFatal(test.err), "error: %v", test.err)
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.True(t, IsInvalid(ErrInvalidValue))
	assert.True(t, IsInvalid(ErrNotIncrement))
	assert.True(t, IsInvalid(ValidationErrors{"temp": "not a number"}))
	assert.True(t, IsInvalid(WrapInvalid(ErrNotFound, "Registry", "SetValues", "lookup node")))
	assert.False(t, IsInvalid(ErrConnectionLost))
}

func TestIsNotFound_SurvivesWrapping(t *testing.T) {
	err := WrapInvalid(ErrNotFound, "Registry", "SensorMetrics", "lookup sensor n1/temp")
	wrapped := Wrap(err, "Gateway", "getSensor", "read registry")

	assert.True(t, IsNotFound(wrapped))
	assert.True(t, IsInvalid(wrapped), "classification is preserved through Wrap")
	assert.False(t, IsNotFound(ErrInvalidValue))
	assert.False(t, IsNotFound(nil))
}

func TestIsConfig(t *testing.T) {
	assert.True(t, IsConfig(WrapFatal(ErrInvalidConfig, "SensorsConfig", "Validate", "validate")))
	assert.True(t, IsConfig(Wrap(ErrConfigNotFound, "FileSource", "Load", "read sensors.yml")))
	assert.True(t, IsConfig(ErrMissingConfig))
	assert.False(t, IsConfig(ErrNotFound))
	assert.False(t, IsConfig(nil))
}

func TestClassify_OutermostWins(t *testing.T) {
	err := WrapInvalid(ErrInvalidConfig, "tlsutil", "Validate", "pair cert and key")
	assert.Equal(t, ErrorInvalid, Classify(err))
	assert.True(t, IsConfig(err))

	outer := WrapFatal(WrapTransient(ErrNotConnected, "Client", "Connect", "dial"), "Dispatcher", "Start", "connect nats")
	assert.True(t, IsFatal(outer))
	assert.False(t, IsTransient(outer))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(ErrInvalidValue))
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionTimeout))
	assert.Equal(t, ErrorTransient, Classify(errors.New("something odd")))
	assert.Equal(t, ErrorFatal, Classify(WrapFatal(errors.New("boom"), "A", "B", "c")))
}

func TestWrap_Format(t *testing.T) {
	err := Wrap(ErrNotFound, "Registry", "SetValues", "lookup node n9")
	require.Error(t, err)
	assert.Equal(t, "Registry.SetValues: lookup node n9 failed: not found", err.Error())
	assert.Nil(t, Wrap(nil, "A", "B", "c"))
	assert.Nil(t, WrapInvalid(nil, "A", "B", "c"))
	assert.Nil(t, WrapTransient(nil, "A", "B", "c"))
	assert.Nil(t, WrapFatal(nil, "A", "B", "c"))
}

func TestClassifiedError_Fields(t *testing.T) {
	err := WrapTransient(ErrNotConnected, "Client", "Publish", "publish change")

	var ce *ClassifiedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "Client", ce.Component)
	assert.Equal(t, "Publish", ce.Operation)
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestValidationErrors_StableMessage(t *testing.T) {
	ve := ValidationErrors{"temp": "not a float", "alarm": "not a bool"}

	assert.Equal(t, "invalid value: alarm: not a bool; temp: not a float", ve.Error())
	assert.True(t, errors.Is(ve, ErrInvalidValue))
}
