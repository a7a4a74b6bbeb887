package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Redaction describes one replaced secret. It never holds the secret value.
type Redaction struct {
	RuleID   string `json:"rule_id"`
	RuleDesc string `json:"rule_desc"`
	Line     int    `json:"line"`
	Length   int    `json:"length"`
}

// Result is redacted text plus what was removed from it.
type Result struct {
	Text       string         `json:"-"`
	Redactions []Redaction    `json:"redactions"`
	RuleCounts map[string]int `json:"rule_counts"`
	Duration   time.Duration  `json:"duration"`
}

// HasRedactions reports whether anything was replaced.
func (r Result) HasRedactions() bool {
	return len(r.Redactions) > 0
}

// Redactor replaces secrets found by the gitleaks default rules with
// [REDACTED:rule-id] markers. It is safe for concurrent use.
type Redactor struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewRedactor loads the gitleaks rules once and applies allowlist, which may be nil.
func NewRedactor(allowlist *Allowlist) (*Redactor, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	if err := allowlist.apply(&d.Config); err != nil {
		return nil, err
	}
	return &Redactor{detector: d}, nil
}

// Redact returns text with every detected secret replaced.
func (r *Redactor) Redact(text string) Result {
	start := time.Now()
	res := Result{Text: text, Redactions: []Redaction{}, RuleCounts: map[string]int{}}
	if strings.TrimSpace(text) == "" {
		return res
	}

	r.mu.Lock()
	findings := r.detector.DetectString(text)
	r.mu.Unlock()

	markers := make(map[string]string, len(findings))
	for _, f := range findings {
		if f.Secret == "" {
			continue
		}
		res.Redactions = append(res.Redactions, Redaction{
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Line:     f.StartLine,
			Length:   len(f.Secret),
		})
		res.RuleCounts[f.RuleID]++
		if _, ok := markers[f.Secret]; !ok {
			markers[f.Secret] = "[REDACTED:" + f.RuleID + "]"
		}
	}

	// Longest first so a secret containing another is replaced whole.
	values := make([]string, 0, len(markers))
	for v := range markers {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) > len(values[j])
		}
		return values[i] < values[j]
	})
	out := text
	for _, v := range values {
		out = strings.ReplaceAll(out, v, markers[v])
	}
	res.Text = out
	res.Duration = time.Since(start)
	return res
}
