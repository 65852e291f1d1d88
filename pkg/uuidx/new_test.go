package uuidx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	first := New()
	second := New()

	assert.NotEqual(t, first, second)
	assert.EqualValues(t, 7, first.Version())
}

func TestNewString(t *testing.T) {
	s := NewString()
	require.Len(t, s, 36)
	assert.NotEqual(t, s, NewString())
}
