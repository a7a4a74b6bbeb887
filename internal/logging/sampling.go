package logging

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// eventSampler rate limits entries per message within each tick. Messages
// listed in Always, and every entry at Error or above, pass untouched.
type eventSampler struct {
	zapcore.Core
	cfg    SamplingConfig
	always map[string]bool
	counts *eventCounts
}

// eventCounts is shared by a sampler and the children made by With.
type eventCounts struct {
	mu    sync.Mutex
	start time.Time
	n     map[string]int
}

// inc counts one more msg in the tick holding at and returns the total.
func (c *eventCounts) inc(msg string, at time.Time, tick time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if at.Sub(c.start) >= tick || at.Before(c.start) {
		c.start = at
		c.n = make(map[string]int, len(c.n))
	}
	c.n[msg]++
	return c.n[msg]
}

func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	always := make(map[string]bool, len(cfg.Always))
	for _, msg := range cfg.Always {
		always[msg] = true
	}
	return &eventSampler{
		Core:   core,
		cfg:    cfg,
		always: always,
		counts: &eventCounts{n: make(map[string]int)},
	}
}

func (s *eventSampler) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !s.Enabled(e.Level) {
		return ce
	}
	if e.Level >= zapcore.ErrorLevel || s.always[e.Message] {
		return s.Core.Check(e, ce)
	}
	rate := s.cfg.rateFor(e.Message)
	n := s.counts.inc(e.Message, e.Time, s.cfg.Tick.Duration())
	if n > rate.Initial && (rate.Thereafter <= 0 || (n-rate.Initial)%rate.Thereafter != 0) {
		return ce
	}
	return s.Core.Check(e, ce)
}

func (s *eventSampler) With(fields []zapcore.Field) zapcore.Core {
	return &eventSampler{
		Core:   s.Core.With(fields),
		cfg:    s.cfg,
		always: s.always,
		counts: s.counts,
	}
}

func (c SamplingConfig) rateFor(msg string) EventSampling {
	if r, ok := c.Events[msg]; ok {
		return r
	}
	return EventSampling{Initial: c.Initial, Thereafter: c.Thereafter}
}
