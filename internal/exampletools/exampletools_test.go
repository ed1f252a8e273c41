package exampletools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/mcpd/internal/completion"
	"github.com/fyrsmithlabs/mcpd/internal/progress"
	"github.com/fyrsmithlabs/mcpd/internal/tool"
)

func newPipeline(t *testing.T, opts ...tool.ExecutorOption) (*tool.Registry, *tool.Executor, *completion.Handler) {
	t.Helper()
	registry := tool.NewRegistry()
	completions := completion.NewHandler()
	require.NoError(t, Register(registry, completions))
	return registry, tool.NewExecutor(registry, nil, opts...), completions
}

func TestRegisterIsComplete(t *testing.T) {
	registry, _, _ := newPipeline(t)
	for _, name := range []string{"roll_dice", "slow_operation", "fortune"} {
		_, ok := registry.Get(name)
		assert.True(t, ok, "tool %s", name)
	}
}

func TestRollDiceShape(t *testing.T) {
	_, executor, _ := newPipeline(t)

	result, err := executor.Execute(context.Background(), "roll_dice",
		map[string]any{"notation": "3d6+2"}, nil, nil)
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)

	var roll RollResult
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &roll))
	assert.Equal(t, "3d6+2", roll.Notation)
	assert.Equal(t, 2, roll.Modifier)
	require.Len(t, roll.Rolls, 3)

	sum := roll.Modifier
	for _, r := range roll.Rolls {
		assert.GreaterOrEqual(t, r, 1)
		assert.LessOrEqual(t, r, 6)
		sum += r
	}
	assert.Equal(t, sum, roll.Total)
}

func TestRollDiceInvalidSides(t *testing.T) {
	_, executor, _ := newPipeline(t)

	result, err := executor.Execute(context.Background(), "roll_dice",
		map[string]any{"notation": "1d7"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "d7")
}

func TestRollDiceRejectsGarbage(t *testing.T) {
	for _, notation := range []string{"", "d6", "3x6", "0d6", "101d6", "3d6+2+1", "-1d6"} {
		_, errMsg := rollDice(notation)
		assert.NotEmpty(t, errMsg, "notation %q", notation)
	}
}

func TestRollDiceNegativeModifier(t *testing.T) {
	roll, errMsg := rollDice("2d20-3")
	require.Empty(t, errMsg)
	assert.Equal(t, -3, roll.Modifier)
	assert.Equal(t, roll.Rolls[0]+roll.Rolls[1]-3, roll.Total)
}

func TestSlowOperationProgressBudget(t *testing.T) {
	_, executor, _ := newPipeline(t, tool.WithProgressThrottle(100*time.Millisecond))

	var notifications []progress.Params
	send := func(p progress.Params) { notifications = append(notifications, p) }

	result, err := executor.Execute(context.Background(), "slow_operation",
		map[string]any{"duration_ms": float64(250)}, "p1", send)
	require.NoError(t, err)
	require.False(t, result.IsError)

	// 250ms under a 100ms throttle allows at most ceil(250/100)+1 emissions.
	assert.LessOrEqual(t, len(notifications), 4)
	assert.NotEmpty(t, notifications)
	for _, n := range notifications {
		assert.Equal(t, "p1", n.ProgressToken)
	}

	var slow SlowResult
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &slow))
	assert.Equal(t, int64(250), slow.RequestedDurationMS)
	assert.GreaterOrEqual(t, slow.ActualDurationMS, int64(240))
}

func TestSlowOperationCancellation(t *testing.T) {
	_, executor, _ := newPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, err := executor.Execute(ctx, "slow_operation",
		map[string]any{"duration_ms": float64(10_000)}, nil, nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "cancelled")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFortune(t *testing.T) {
	_, executor, _ := newPipeline(t)

	result, err := executor.Execute(context.Background(), "fortune",
		map[string]any{"category": "wisdom"}, nil, nil)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, fortuneCategories["wisdom"], result.Content[0].Text)

	// No category draws from the full pool.
	result, err = executor.Execute(context.Background(), "fortune", nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.NotEmpty(t, result.Content[0].Text)
}

func TestFortuneRejectsUnknownCategory(t *testing.T) {
	_, executor, _ := newPipeline(t)

	// The schema enum catches it before the handler runs.
	result, err := executor.Execute(context.Background(), "fortune",
		map[string]any{"category": "stocks"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCompletionProviders(t *testing.T) {
	_, _, completions := newPipeline(t)

	result, err := completions.Complete(context.Background(),
		completion.Ref{Type: completion.RefTypeTool, Name: "fortune"},
		completion.Argument{Name: "category", Value: "w"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"wisdom", "work"}, result.Values)

	result, err = completions.Complete(context.Background(),
		completion.Ref{Type: completion.RefTypeTool, Name: "roll_dice"},
		completion.Argument{Name: "notation", Value: "3d"})
	require.NoError(t, err)
	assert.Contains(t, result.Values, "3d6+2")
}
