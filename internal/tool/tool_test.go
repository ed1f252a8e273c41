package tool

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/mcpd/internal/progress"
)

func noopHandler(_ context.Context, _ map[string]any, _ *progress.Reporter) (*Result, error) {
	return TextResult("ok"), nil
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Tool{Name: "echo", Handler: noopHandler}))

	got, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", got.Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Tool{Name: "echo", Handler: noopHandler}))
	assert.Error(t, r.Register(&Tool{Name: "echo", Handler: noopHandler}))
}

func TestRegisterValidatesName(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"", "bad name", "bad/name", "bad.name", "ü"} {
		assert.Error(t, r.Register(&Tool{Name: name, Handler: noopHandler}), "name %q", name)
	}
	for _, name := range []string{"ok", "OK_2", "with-dash", "_x"} {
		assert.NoError(t, r.Register(&Tool{Name: name, Handler: noopHandler}), "name %q", name)
	}
}

func TestRegisterRequiresHandler(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&Tool{Name: "nohandler"}))
}

func TestDefinitionsPreserveInsertionOrder(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 10; i++ {
		require.NoError(t, r.Register(&Tool{
			Name:    fmt.Sprintf("tool-%02d", i),
			Handler: noopHandler,
		}))
	}

	defs := r.Definitions()
	require.Len(t, defs, 10)
	for i, def := range defs {
		assert.Equal(t, fmt.Sprintf("tool-%02d", i), def.Name)
	}
}

func TestDefinitionsDefaultSchema(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Tool{Name: "bare", Handler: noopHandler}))

	defs := r.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, map[string]any{"type": "object"}, defs[0].InputSchema)
}

func TestResultHelpers(t *testing.T) {
	res := ErrorResult("failed: %s", "reason")
	assert.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "failed: reason", res.Content[0].Text)

	jr, err := JSONResult(map[string]int{"total": 7})
	require.NoError(t, err)
	assert.False(t, jr.IsError)
	assert.JSONEq(t, `{"total":7}`, jr.Content[0].Text)
}
