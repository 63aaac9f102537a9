package audit

import (
	"context"
	"testing"
)

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("blank event name accepted")
	}
	if err := LogEvent(context.Background(), "auth.login", map[string]any{"identity_id": "id-1"}); err != nil {
		t.Fatal(err)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "rid-9")
	if got := RequestIDFromContext(ctx); got != "rid-9" {
		t.Fatalf("request id = %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("empty context yielded %q", got)
	}
	// Blank ids are not attached.
	ctx = WithRequestID(context.Background(), "   ")
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("blank id attached: %q", got)
	}
}
