// Package exampletools ships the reference tools bundled with the server:
// a dice roller, a cancellable slow operation that exercises progress
// reporting, and a fortune teller with argument completion.
package exampletools

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/mcpd/internal/completion"
	"github.com/fyrsmithlabs/mcpd/internal/progress"
	"github.com/fyrsmithlabs/mcpd/internal/tool"
)

// notationRe matches dice notation: NdS with an optional +/- modifier.
var notationRe = regexp.MustCompile(`^(\d+)d(\d+)([+-]\d+)?$`)

// validSides is the standard polyhedral set.
var validSides = map[int]bool{
	2: true, 4: true, 6: true, 8: true, 10: true, 12: true, 20: true, 100: true,
}

const maxDice = 100

// Register adds the example tools and their completion providers.
func Register(registry *tool.Registry, completions *completion.Handler) error {
	tools := []*tool.Tool{
		rollDiceTool(),
		slowOperationTool(),
		fortuneTool(),
	}
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("registering %s: %w", t.Name, err)
		}
	}

	if err := completions.RegisterSimple("roll_dice", "notation", completeNotation); err != nil {
		return err
	}
	return completions.RegisterSimple("fortune", "category", completeCategory)
}

// RollResult is the payload roll_dice returns as JSON text.
type RollResult struct {
	Notation string `json:"notation"`
	Rolls    []int  `json:"rolls"`
	Modifier int    `json:"modifier"`
	Total    int    `json:"total"`
}

func rollDiceTool() *tool.Tool {
	return &tool.Tool{
		Name:        "roll_dice",
		Title:       "Dice Roller",
		Description: "Rolls dice using standard notation like 2d6 or 3d8+1. Supported dice: d2, d4, d6, d8, d10, d12, d20, d100.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"notation": map[string]any{
					"type":        "string",
					"description": "Dice notation, e.g. 3d6+2",
				},
			},
			"required": []any{"notation"},
		},
		Annotations: &tool.Annotations{ReadOnlyHint: true},
		Handler: func(_ context.Context, args map[string]any, _ *progress.Reporter) (*tool.Result, error) {
			notation, _ := args["notation"].(string)
			result, errMsg := rollDice(notation)
			if errMsg != "" {
				return tool.ErrorResult("%s", errMsg), nil
			}
			return tool.JSONResult(result)
		},
	}
}

// rollDice parses and evaluates dice notation. A non-empty second return
// is the model-facing error message.
func rollDice(notation string) (*RollResult, string) {
	m := notationRe.FindStringSubmatch(notation)
	if m == nil {
		return nil, fmt.Sprintf("invalid dice notation %q: expected NdS with optional +/- modifier, e.g. 3d6+2", notation)
	}

	count, _ := strconv.Atoi(m[1])
	sides, _ := strconv.Atoi(m[2])
	modifier := 0
	if m[3] != "" {
		modifier, _ = strconv.Atoi(m[3])
	}

	if count < 1 || count > maxDice {
		return nil, fmt.Sprintf("invalid dice count %d: must be between 1 and %d", count, maxDice)
	}
	if !validSides[sides] {
		return nil, fmt.Sprintf("invalid sides d%d: supported dice are d2, d4, d6, d8, d10, d12, d20, d100", sides)
	}

	rolls := make([]int, count)
	total := modifier
	for i := range rolls {
		rolls[i] = rand.IntN(sides) + 1
		total += rolls[i]
	}
	return &RollResult{
		Notation: notation,
		Rolls:    rolls,
		Modifier: modifier,
		Total:    total,
	}, ""
}

// SlowResult is the payload slow_operation returns as JSON text.
type SlowResult struct {
	RequestedDurationMS int64 `json:"requested_duration_ms"`
	ActualDurationMS    int64 `json:"actual_duration_ms"`
}

// slowStep is how often slow_operation wakes up to report progress and
// check for cancellation.
const slowStep = 25 * time.Millisecond

func slowOperationTool() *tool.Tool {
	return &tool.Tool{
		Name:        "slow_operation",
		Title:       "Slow Operation",
		Description: "Sleeps for the requested duration, reporting progress along the way. Useful for exercising progress tokens and cancellation.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"duration_ms": map[string]any{
					"type":        "number",
					"description": "How long to run, in milliseconds",
					"minimum":     0,
					"maximum":     60_000,
				},
			},
			"required": []any{"duration_ms"},
		},
		Annotations: &tool.Annotations{ReadOnlyHint: true, IdempotentHint: true},
		Handler:     runSlowOperation,
	}
}

func runSlowOperation(ctx context.Context, args map[string]any, reporter *progress.Reporter) (*tool.Result, error) {
	durationMS, ok := args["duration_ms"].(float64)
	if !ok || durationMS < 0 {
		return tool.ErrorResult("duration_ms must be a non-negative number"), nil
	}
	duration := time.Duration(durationMS) * time.Millisecond

	start := time.Now()
	deadline := start.Add(duration)
	total := 100.0

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		step := slowStep
		if remaining < step {
			step = remaining
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(step):
		}

		if reporter != nil && duration > 0 {
			elapsed := time.Since(start)
			pct := float64(elapsed) / float64(duration) * 100
			if pct > 100 {
				pct = 100
			}
			reporter.Report(pct, &total, "working")
		}
	}

	if reporter != nil {
		reporter.Complete("done")
	}
	return tool.JSONResult(SlowResult{
		RequestedDurationMS: int64(durationMS),
		ActualDurationMS:    time.Since(start).Milliseconds(),
	})
}

// fortuneCategories maps each category to its fortunes.
var fortuneCategories = map[string][]string{
	"wisdom": {
		"The obstacle is the path.",
		"A journey of a thousand miles begins with a single step.",
		"Knowing others is intelligence; knowing yourself is true wisdom.",
	},
	"work": {
		"Your diligence will soon be rewarded.",
		"A small refactor today prevents a large rewrite tomorrow.",
		"The best time to automate was yesterday. The second best time is now.",
	},
	"luck": {
		"Fortune favors the prepared mind.",
		"An unexpected opportunity arrives from an unlikely direction.",
		"Today is a good day to roll the dice.",
	},
}

func fortuneTool() *tool.Tool {
	return &tool.Tool{
		Name:        "fortune",
		Title:       "Fortune Teller",
		Description: "Returns a fortune. Categories: wisdom, work, luck.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{
					"type":        "string",
					"description": "Fortune category; omit for any",
					"enum":        []any{"wisdom", "work", "luck"},
				},
			},
		},
		Annotations: &tool.Annotations{ReadOnlyHint: true},
		Handler: func(_ context.Context, args map[string]any, _ *progress.Reporter) (*tool.Result, error) {
			category, _ := args["category"].(string)
			fortunes, ok := fortuneCategories[category]
			if !ok {
				// No category: draw from all of them.
				for _, fs := range fortuneCategories {
					fortunes = append(fortunes, fs...)
				}
			}
			return tool.TextResult(fortunes[rand.IntN(len(fortunes))]), nil
		},
	}
}

// completeNotation suggests common dice notations.
func completeNotation(_ context.Context, _ string) ([]string, error) {
	return []string{
		"1d4", "1d6", "1d8", "1d10", "1d12", "1d20", "1d100",
		"2d6", "3d6", "3d6+2", "4d6", "2d20",
	}, nil
}

// completeCategory suggests fortune categories.
func completeCategory(_ context.Context, _ string) ([]string, error) {
	categories := make([]string, 0, len(fortuneCategories))
	for c := range fortuneCategories {
		categories = append(categories, c)
	}
	return categories, nil
}
