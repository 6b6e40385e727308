package tracing

import (
	"context"
	"testing"
)

func TestTracerSampling(t *testing.T) {
	off := NewTracer(false, 1)
	if _, span := off.Start(context.Background(), "search", "r1"); span != nil {
		t.Errorf("disabled tracer produced a span")
	}

	on := NewTracer(true, 1)
	ctx, root := on.Start(context.Background(), "search", "r1")
	if root == nil {
		t.Fatal("expected root span")
	}
	_, child := StartChildSpan(ctx, "parse")
	child.SetAttr("conditions", 2)
	child.End()
	on.Finish(root)

	if len(root.Children) != 1 || root.Children[0].TraceID != "r1" {
		t.Errorf("unexpected children: %+v", root.Children)
	}
}

func TestNilSpanIsSafe(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "parse")
	if span != nil || SpanFromContext(ctx) != nil {
		t.Fatal("expected no span without a parent")
	}
	span.SetAttr("k", "v")
	span.End()
}
