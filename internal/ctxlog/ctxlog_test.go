package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	require.Same(t, Discard(), FromContext(context.Background()))
	_, ok := Lookup(context.Background())
	require.False(t, ok)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(context.Background(), logger)
	require.Same(t, logger, FromContext(ctx))

	FromContext(ctx).Info("pixel fitted", "index", 3)
	require.Contains(t, buf.String(), "pixel fitted")
	require.Contains(t, buf.String(), "index=3")
}
