package logging

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug. vectorfs uses it for per-node search scoring
// and the per-item readers of deep search.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name. It accepts "trace" and "warning" on
// top of zap's names, ignoring case and surrounding space.
func LevelFromString(level string) (zapcore.Level, error) {
	switch s := strings.ToLower(strings.TrimSpace(level)); s {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	default:
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(s)); err != nil {
			return zapcore.InfoLevel, err
		}
		return l, nil
	}
}

// ParseComponentLevels parses logger name to level overrides, as set under
// logging.components.
func ParseComponentLevels(raw map[string]string) (map[string]zapcore.Level, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	levels := make(map[string]zapcore.Level, len(raw))
	for name, value := range raw {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("component name cannot be empty")
		}
		l, err := LevelFromString(value)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", name, err)
		}
		levels[name] = l
	}
	return levels, nil
}

// componentLevels resolves the level of a named logger. A component matches
// its own name and every name below it, so "vectorfs" covers
// "vectorfs.search"; the longest match wins. Unmatched loggers use base.
type componentLevels struct {
	base  zap.AtomicLevel
	names []string // longest first
	level map[string]zapcore.Level
}

func newComponentLevels(base zap.AtomicLevel, overrides map[string]zapcore.Level) *componentLevels {
	c := &componentLevels{base: base, level: overrides}
	for name := range overrides {
		c.names = append(c.names, name)
	}
	sort.Slice(c.names, func(i, j int) bool { return len(c.names[i]) > len(c.names[j]) })
	return c
}

func (c *componentLevels) levelFor(loggerName string) zapcore.Level {
	for _, name := range c.names {
		if loggerName == name || strings.HasPrefix(loggerName, name+".") {
			return c.level[name]
		}
	}
	return c.base.Level()
}

// Enabled reports whether any logger could emit lvl. Per entry filtering
// happens in componentCore.
func (c *componentLevels) Enabled(lvl zapcore.Level) bool {
	if c.base.Enabled(lvl) {
		return true
	}
	for _, l := range c.level {
		if lvl >= l {
			return true
		}
	}
	return false
}

// componentCore drops entries below the level of their logger's component
// before they reach any output.
type componentCore struct {
	zapcore.Core
	levels *componentLevels
}

func newComponentCore(core zapcore.Core, levels *componentLevels) zapcore.Core {
	return &componentCore{Core: core, levels: levels}
}

func (c *componentCore) Enabled(lvl zapcore.Level) bool {
	return c.levels.Enabled(lvl)
}

func (c *componentCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level < c.levels.levelFor(e.LoggerName) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *componentCore) With(fields []zapcore.Field) zapcore.Core {
	return &componentCore{Core: c.Core.With(fields), levels: c.levels}
}
