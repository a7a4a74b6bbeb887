package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/vecfs/internal/config"
	"github.com/fyrsmithlabs/vecfs/internal/identity"
)

const (
	redactedValue   = "[REDACTED]"
	redactedPattern = "[REDACTED:pattern]"
	maxPatternLen   = 1000
)

// Secret logs a configured credential as its fingerprint.
func Secret(key string, val config.Secret) zap.Field {
	if !val.IsSet() {
		return zap.String(key, "")
	}
	return zap.String(key, "[REDACTED:"+val.Fingerprint()+"]")
}

// Requester logs the identity acting on a profile under vfs.requester, the
// key hashed by the default redaction config.
func Requester(name identity.Name) zap.Field {
	return zap.String("vfs.requester", name.String())
}

// HashIdentity is the digest written in place of a hashed field. Operators
// can compute it for a known name to grep the logs for it.
func HashIdentity(name string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(name)))
	return "sha256:" + hex.EncodeToString(sum[:6])
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		res = append(res, re)
	}
	return res, nil
}

func keySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = true
	}
	return set
}

// redactionRules is a compiled RedactionConfig.
type redactionRules struct {
	redact   map[string]bool
	hash     map[string]bool
	patterns []*regexp.Regexp
}

func newRedactionRules(cfg RedactionConfig) (*redactionRules, error) {
	if !cfg.Enabled {
		return &redactionRules{}, nil
	}
	patterns, err := compilePatterns(cfg.Patterns)
	if err != nil {
		return nil, err
	}
	return &redactionRules{
		redact:   keySet(cfg.Fields),
		hash:     keySet(cfg.Hashed),
		patterns: patterns,
	}, nil
}

func (r *redactionRules) empty() bool {
	return len(r.redact) == 0 && len(r.hash) == 0 && len(r.patterns) == 0
}

func (r *redactionRules) matches(val string) bool {
	for _, re := range r.patterns {
		if re.MatchString(val) {
			return true
		}
	}
	return false
}

// field returns f with its value hidden, hashed or untouched.
func (r *redactionRules) field(f zapcore.Field) zapcore.Field {
	k := strings.ToLower(f.Key)
	switch {
	case r.redact[k]:
		return zap.String(f.Key, redactedValue)
	case f.Type == zapcore.StringType && r.hash[k] && f.String != "":
		return zap.String(f.Key, HashIdentity(f.String))
	case f.Type == zapcore.StringType && r.matches(f.String):
		return zap.String(f.Key, redactedPattern)
	case f.Type == zapcore.ArrayMarshalerType && r.hash[k]:
		if arr, ok := f.Interface.(zapcore.ArrayMarshaler); ok {
			return zap.Array(f.Key, hashedArray{arr})
		}
	}
	return f
}

func (r *redactionRules) fields(fields []zapcore.Field) []zapcore.Field {
	if r.empty() || len(fields) == 0 {
		return fields
	}
	clean := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		clean[i] = r.field(f)
	}
	return clean
}

// RedactingEncoder hides credentials and hashes identities before entries
// reach the console or JSON output.
type RedactingEncoder struct {
	zapcore.Encoder
	rules *redactionRules
}

// NewRedactingEncoder wraps base with the rules in cfg.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	rules, err := newRedactionRules(cfg)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{Encoder: base, rules: rules}, nil
}

func (e *RedactingEncoder) hidden(key string) bool {
	return e.rules.redact[strings.ToLower(key)]
}

func (e *RedactingEncoder) AddString(key, val string) {
	k := strings.ToLower(key)
	switch {
	case e.rules.redact[k]:
		e.Encoder.AddString(key, redactedValue)
	case e.rules.hash[k] && val != "":
		e.Encoder.AddString(key, HashIdentity(val))
	case e.rules.matches(val):
		e.Encoder.AddString(key, redactedPattern)
	default:
		e.Encoder.AddString(key, val)
	}
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.hidden(key) {
		e.Encoder.AddString(key, redactedValue)
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.hidden(key) {
		e.Encoder.AddString(key, redactedValue)
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected hides the whole value of a sensitive key. Fields inside a
// reflected struct are not inspected.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.hidden(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// AddArray hashes every element of a hashed key, so a logged whitelist
// shows digests instead of names.
func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	k := strings.ToLower(key)
	if e.rules.redact[k] {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	if e.rules.hash[k] {
		return e.Encoder.AddArray(key, hashedArray{arr})
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.hidden(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), rules: e.rules}
}

// EncodeEntry applies the rules to fields passed at the call site. Fields
// added with With already went through the Add methods above.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	return e.Encoder.EncodeEntry(ent, e.rules.fields(fields))
}

// redactingCore applies the rules to a core that encodes on its own, such
// as the OTEL bridge.
type redactingCore struct {
	zapcore.Core
	rules *redactionRules
}

func newRedactingCore(core zapcore.Core, cfg RedactionConfig) (zapcore.Core, error) {
	rules, err := newRedactionRules(cfg)
	if err != nil {
		return nil, err
	}
	if rules.empty() {
		return core, nil
	}
	return &redactingCore{Core: core, rules: rules}, nil
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.rules.fields(fields)), rules: c.rules}
}

func (c *redactingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *redactingCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(e, c.rules.fields(fields))
}

// hashedArray hashes the strings of the wrapped array.
type hashedArray struct {
	zapcore.ArrayMarshaler
}

func (h hashedArray) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	return h.ArrayMarshaler.MarshalLogArray(hashingArrayEncoder{enc})
}

type hashingArrayEncoder struct {
	zapcore.ArrayEncoder
}

func (h hashingArrayEncoder) AppendString(s string) {
	h.ArrayEncoder.AppendString(HashIdentity(s))
}
