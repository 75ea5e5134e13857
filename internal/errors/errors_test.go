package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_BuildsComponentAndCategory(t *testing.T) {
	err := New(nil).
		Component("resampler").
		Category(CategoryResampler).
		Context("ratio", 1.0002).
		Build()

	require.NotNil(t, err)
	assert.Equal(t, "resampler", err.Component())
	assert.Equal(t, CategoryResampler, err.Category)
	assert.Equal(t, 1.0002, err.Context["ratio"])
}

func TestBuilder_AutoDetectsComponentWhenUnset(t *testing.T) {
	err := Newf("boom %d", 42).Category(CategoryGeneric).Build()
	assert.NotEmpty(t, err.Component())
	assert.Equal(t, "boom 42", err.Error())
}

func TestEnhancedError_IsMatchesByCategory(t *testing.T) {
	a := New(nil).Category(CategorySync).Build()
	b := New(nil).Category(CategorySync).Build()
	c := New(nil).Category(CategoryResampler).Build()

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
}

func TestEnhancedError_MarkReportedOnlyOnce(t *testing.T) {
	err := New(nil).Build()
	assert.True(t, err.MarkReported())
	assert.False(t, err.MarkReported())
}
