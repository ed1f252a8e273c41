package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/mcpd/internal/tool"
)

// The default meter provider is a no-op; these tests pin the interface
// contract and that recording never panics without an exporter wired.

func TestImplementsRecorder(t *testing.T) {
	var _ tool.Recorder = New(nil)
}

func TestRecordingIsSafeWithoutProvider(t *testing.T) {
	m := New(nil)
	ctx := context.Background()

	m.IncrementActive(ctx, "roll_dice")
	m.RecordInvocation(ctx, "roll_dice", 5*time.Millisecond, nil)
	m.RecordInvocation(ctx, "roll_dice", time.Second, context.DeadlineExceeded)
	m.RecordInvocation(ctx, "roll_dice", time.Second, errors.New("boom"))
	m.DecrementActive(ctx, "roll_dice")
	m.SessionOpened(ctx)
	m.SessionClosed(ctx)
}

func TestCategorizeError(t *testing.T) {
	assert.Equal(t, "", categorizeError(nil))
	assert.Equal(t, "timeout", categorizeError(context.DeadlineExceeded))
	assert.Equal(t, "cancelled", categorizeError(context.Canceled))
	assert.Equal(t, "handler_error", categorizeError(errors.New("anything else")))
}
