package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "GET /analytics/events", "req-1")
	_, child := StartChildSpan(ctx, "upstream.aggregate")
	child.SetAttr("rows", 2)
	child.End()
	root.End()

	require.Len(t, root.Children(), 1)
	assert.Equal(t, "req-1", root.Children()[0].TraceID)

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "msg=span"))
	assert.Contains(t, out, "span=upstream.aggregate")
	assert.Contains(t, out, "rows=2")
}

func TestStartChildSpan_WithoutParent(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, span.TraceID)
	assert.Same(t, span, SpanFromContext(ctx))
}
