package flowerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	kinds := map[Kind]string{
		InvalidInput:      "InvalidInput",
		UnsupportedVendor: "UnsupportedVendor",
		ParseFailed:       "ParseFailed",
		MissingTag:        "MissingTag",
		InconsistentData:  "InconsistentData",
		InternalError:     "InternalError",
		Kind(99):          "*Unknown*",
	}
	for k, s := range kinds {
		assert.Equal(t, s, k.String())
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := New(InvalidInput, "flow.Measure", "radius must be positive, got %g", -1.0)

	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.False(t, errors.Is(err, ErrInternal))
	assert.Equal(t, InvalidInput, KindOf(err))
	assert.Contains(t, err.Error(), "flow.Measure")
	assert.Contains(t, err.Error(), "radius must be positive")
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Wrap(ParseFailed, "assembly.Assemble", cause, "reading %s", "a.dcm")

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrParseFailed))

	outer := fmt.Errorf("outer: %w", err)
	assert.Equal(t, ParseFailed, KindOf(outer))
	assert.Equal(t, Kind(0), KindOf(cause))
}

func TestRecoverConvertsPanic(t *testing.T) {
	run := func() (err error) {
		defer Recover("test.run", &err)
		var values []float64
		_ = values[3]
		return nil
	}

	err := run()
	require.Error(t, err)
	assert.Equal(t, InternalError, KindOf(err))
	assert.Contains(t, err.Error(), "test.run")
}

func TestRecoverNoPanic(t *testing.T) {
	run := func() (err error) {
		defer Recover("test.run", &err)
		return nil
	}
	assert.NoError(t, run())
}
