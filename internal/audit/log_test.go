package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okrdash/internal/records"
)

func TestLogEventAndQuery(t *testing.T) {
	ctx := context.Background()
	logger := NewLogger(records.NewMemoryStore())
	tick := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	logger.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	require.NoError(t, logger.LogEvent(ctx, "okrdash", "import_started", map[string]any{"dir": "okrs"}))
	require.NoError(t, logger.LogEvent(ctx, "okrdash", "import_finished", map[string]any{"objectives": 3}))
	require.NoError(t, logger.LogEvent(ctx, "ana", "checkin_applied", nil))

	all, err := logger.Events(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "import_started", all[0].Type)
	assert.JSONEq(t, `{"dir":"okrs"}`, string(all[0].Payload))

	finished, err := logger.Events(ctx, "import_finished")
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.JSONEq(t, `{"objectives":3}`, string(finished[0].Payload))
}

func TestNilLoggerDropsEvents(t *testing.T) {
	var logger *Logger
	assert.NoError(t, logger.LogEvent(context.Background(), "x", "y", nil))
}
