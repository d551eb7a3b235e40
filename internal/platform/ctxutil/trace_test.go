package ctxutil

import (
	"context"
	"reflect"
	"testing"
)

func TestLogFields(t *testing.T) {
	if got := LogFields(context.Background()); got != nil {
		t.Fatalf("expected nil without trace data, got %v", got)
	}
	ctx := WithTraceData(context.Background(), &TraceData{TraceID: "t1", RequestID: "r1"})
	want := []interface{}{"trace_id", "t1", "request_id", "r1"}
	if got := LogFields(ctx); !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
	ctx = WithTraceData(context.Background(), &TraceData{RequestID: "r2"})
	if got := LogFields(ctx); !reflect.DeepEqual(got, []interface{}{"request_id", "r2"}) {
		t.Fatalf("unexpected fields %v", got)
	}
}
