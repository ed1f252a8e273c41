package mcplog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityOrdering(t *testing.T) {
	order := []Level{
		LevelEmergency, LevelAlert, LevelCritical, LevelError,
		LevelWarning, LevelNotice, LevelInfo, LevelDebug,
	}
	for i, level := range order {
		p, err := Priority(level)
		require.NoError(t, err)
		assert.Equal(t, i, p)
	}

	_, err := Priority("verbose")
	assert.Error(t, err)
}

func TestHandlerFiltersBelowThreshold(t *testing.T) {
	var got []Params
	h := NewHandler(LevelWarning, func(p Params) { got = append(got, p) })

	h.Log(LevelError, "disk failing", "storage", nil)
	h.Log(LevelWarning, "disk slow", "storage", nil)
	h.Log(LevelInfo, "disk fine", "storage", nil)
	h.Log(LevelDebug, "disk trace", "storage", nil)

	require.Len(t, got, 2)
	assert.Equal(t, LevelError, got[0].Level)
	assert.Equal(t, LevelWarning, got[1].Level)
}

func TestSetLevel(t *testing.T) {
	var got []Params
	h := NewHandler(LevelError, func(p Params) { got = append(got, p) })

	h.Log(LevelInfo, "suppressed", "", nil)
	require.Empty(t, got)

	require.NoError(t, h.SetLevel(LevelDebug))
	assert.Equal(t, LevelDebug, h.Level())

	h.Log(LevelInfo, "now visible", "", nil)
	h.Log(LevelDebug, "also visible", "", nil)
	assert.Len(t, got, 2)
}

func TestSetLevelRejectsInvalid(t *testing.T) {
	h := NewHandler(LevelInfo, func(Params) {})
	assert.Error(t, h.SetLevel("loud"))
	assert.Equal(t, LevelInfo, h.Level(), "threshold unchanged after invalid input")
}

func TestLogDropsUnknownLevel(t *testing.T) {
	var got []Params
	h := NewHandler(LevelDebug, func(p Params) { got = append(got, p) })
	h.Log("chatty", "???", "", nil)
	assert.Empty(t, got)
}

func TestNewHandlerDefaultsInvalidMinimum(t *testing.T) {
	h := NewHandler("bogus", func(Params) {})
	assert.Equal(t, LevelInfo, h.Level())
}
