package logging

import (
	"bytes"
	"reflect"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records entries for assertions. Entries are kept both as
// observed fields and as the JSON the daemon would write, redaction applied.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
	rules    *redactionRules
	out      *lockedBuffer
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Sync() error { return nil }

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewTestLogger returns a logger at TraceLevel using the default redaction
// rules.
func NewTestLogger() *TestLogger {
	cfg := NewDefaultConfig()
	rules, err := newRedactionRules(cfg.Redaction)
	if err != nil {
		panic("logging: default redaction config: " + err.Error())
	}
	obsCore, observed := observer.New(TraceLevel)
	out := &lockedBuffer{}
	enc := &RedactingEncoder{Encoder: newEncoder("json"), rules: rules}
	jsonCore := zapcore.NewCore(enc, out, TraceLevel)
	return &TestLogger{
		Logger: &Logger{
			zap:    zap.New(zapcore.NewTee(obsCore, jsonCore)),
			config: cfg,
		},
		observed: observed,
		rules:    rules,
		out:      out,
	}
}

// All returns all logged entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries with exactly msg as message.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

// Output returns the encoded JSON lines written so far.
func (t *TestLogger) Output() string {
	return t.out.String()
}

// AssertLogged fails unless an entry at level contains msgContains.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return
		}
	}
	tb.Errorf("expected log at %v containing %q, logs: %+v", level, msgContains, t.observed.All())
}

// AssertNotLogged fails if an entry at level contains msgContains.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			tb.Errorf("unexpected log at %v containing %q", level, msgContains)
		}
	}
}

// AssertField fails unless an entry with message msg carries key=expected.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		enc := zapcore.NewMapObjectEncoder()
		for _, field := range entry.Context {
			if field.Key == key {
				field.AddTo(enc)
			}
		}
		if got, ok := enc.Fields[key]; ok && reflect.DeepEqual(got, expected) {
			return
		}
	}
	tb.Errorf("field %q=%v not found in message %q", key, expected, msg)
}

// AssertNoSecrets fails if a credential field was logged with a raw value
// or a message or string value matches a redaction pattern. Call sites are
// expected to use Secret for credentials; hashed identity fields are fine.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if t.rules.matches(entry.Message) {
			tb.Errorf("sensitive pattern in message: %q", entry.Message)
		}
		for _, field := range entry.Context {
			if field.Type != zapcore.StringType || field.String == "" {
				continue
			}
			if t.rules.redact[strings.ToLower(field.Key)] && !strings.HasPrefix(field.String, "[REDACTED") {
				tb.Errorf("sensitive field %q not redacted: %q", field.Key, field.String)
			}
			if t.rules.matches(field.String) {
				tb.Errorf("sensitive pattern in field %q: %q", field.Key, field.String)
			}
		}
	}
}

// AssertNotWritten fails if any of values appears in the encoded output,
// e.g. a requester name that must only appear hashed.
func (t *TestLogger) AssertNotWritten(tb testing.TB, values ...string) {
	tb.Helper()
	out := t.Output()
	for _, v := range values {
		if strings.Contains(out, v) {
			tb.Errorf("%q written to log output", v)
		}
	}
}
