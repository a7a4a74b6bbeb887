package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/BurntSushi/toml"
	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Allowlist holds content patterns that are never redacted.
type Allowlist struct {
	Regexes []string
}

// LoadAllowlist reads a gitleaks style TOML file:
//
//	[allowlist]
//	regexes = ['''EXAMPLE_KEY_.*''']
//
// An empty path or a missing file yields an empty allowlist.
func LoadAllowlist(path string) (*Allowlist, error) {
	if path == "" {
		return &Allowlist{}, nil
	}
	var file struct {
		Allowlist struct {
			Regexes []string
		}
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Allowlist{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}
	for _, pattern := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}
	return &Allowlist{Regexes: file.Allowlist.Regexes}, nil
}

// apply adds the allowlist to a gitleaks config as a global allowlist.
// Patterns were compiled once by LoadAllowlist.
func (a *Allowlist) apply(cfg *gitleaksConfig.Config) error {
	if a == nil || len(a.Regexes) == 0 {
		return nil
	}
	global := &gitleaksConfig.Allowlist{Description: "vecfs allowlist"}
	for _, pattern := range a.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	global.StopWords = append(global.StopWords, a.Regexes...)
	cfg.Allowlists = append(cfg.Allowlists, global)
	return nil
}
