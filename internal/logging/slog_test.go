package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey struct{}

// chatHandler copies a chat id stored in the context onto every record.
type chatHandler struct {
	slog.Handler
}

func (h chatHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		r.AddAttrs(slog.String("ctx_chat", id))
	}
	return h.Handler.Handle(ctx, r)
}

func TestSlogLogger_EveryLevelReachesHandler(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := NewSlogLogger(slog.New(h))
	ctx := context.Background()

	log.Debug(ctx, "cursor loaded", "seq", 1)
	log.Info(ctx, "message appended", "seq", 2)
	log.Warn(ctx, "subscriber lagging", "seq", 3)
	log.Error(ctx, "purge failed", "seq", 4)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)
	for i, want := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		assert.Equal(t, want, lines[i]["level"])
		assert.EqualValues(t, i+1, lines[i]["seq"])
	}
}

func TestSlogLogger_WithDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(BackendSlog, "debug", &buf)
	require.NoError(t, err)

	child := log.With("component", "delivery")
	child.Info(context.Background(), "from child")
	log.Info(context.Background(), "from parent")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "delivery", lines[0]["component"])
	_, ok := lines[1]["component"]
	assert.False(t, ok)
}

func TestSlogLogger_ForwardsContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, nil)
	log := NewSlogLogger(slog.New(chatHandler{Handler: base}))

	ctx := context.WithValue(context.Background(), ctxKey{}, "c42")
	log.Info(ctx, "receipt stored")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "c42", lines[0]["ctx_chat"])
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.NotPanics(t, func() {
		log.With("k", "v").Error(context.Background(), "dropped")
	})
}
