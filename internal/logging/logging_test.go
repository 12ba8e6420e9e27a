package logging

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap/zapcore"
)

type entry struct {
	level string
	msg   string
	kv    []interface{}
}

type captureLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (c *captureLogger) add(level, msg string, kv []interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry{level, msg, kv})
}

func (c *captureLogger) Infow(msg string, kv ...interface{})  { c.add("info", msg, kv) }
func (c *captureLogger) Debugw(msg string, kv ...interface{}) { c.add("debug", msg, kv) }
func (c *captureLogger) Warnw(msg string, kv ...interface{})  { c.add("warn", msg, kv) }
func (c *captureLogger) Errorw(msg string, kv ...interface{}) { c.add("error", msg, kv) }
func (c *captureLogger) Fatalw(msg string, kv ...interface{}) { c.add("fatal", msg, kv) }
func (c *captureLogger) Sync() error                          { return nil }

func TestCtxFieldsComeFirst(t *testing.T) {
	cl := &captureLogger{}
	SetLogger(cl)
	defer SetLogger(nil)

	ctx := WithFields(context.Background(), "correlation_id", "abc")
	ctx = WithFields(ctx, "mode", "answer")
	WarnwCtx(ctx, "slow", "latency_ms", 3000)

	if len(cl.entries) != 1 {
		t.Fatalf("want 1 entry got %d", len(cl.entries))
	}
	e := cl.entries[0]
	want := []interface{}{"correlation_id", "abc", "mode", "answer", "latency_ms", 3000}
	if e.level != "warn" || e.msg != "slow" || len(e.kv) != len(want) {
		t.Fatalf("unexpected entry %+v", e)
	}
	for i := range want {
		if e.kv[i] != want[i] {
			t.Fatalf("field %d: got %v want %v", i, e.kv[i], want[i])
		}
	}
}

func TestWithFieldsDoesNotAlias(t *testing.T) {
	base := WithFields(context.Background(), "a", 1)
	one := WithFields(base, "b", 2)
	two := WithFields(base, "c", 3)
	if got := FromContext(one); len(got) != 4 || got[2] != "b" {
		t.Fatalf("unexpected fields %v", got)
	}
	if got := FromContext(two); len(got) != 4 || got[2] != "c" {
		t.Fatalf("unexpected fields %v", got)
	}
	if FromContext(context.Background()) != nil {
		t.Fatalf("empty context should carry no fields")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"loud":    zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v want %v", in, got, want)
		}
	}
}

func TestNoopBeforeInit(t *testing.T) {
	SetLogger(nil)
	// must not panic without Init
	Infow("hello", "k", "v")
	DebugwCtx(context.Background(), "hello")
	if err := Sync(); err != nil && Sugar() == nil {
		t.Fatalf("noop Sync: %v", err)
	}
}
