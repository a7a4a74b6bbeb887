package importer

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultIgnoreFiles are read from the import root.
var DefaultIgnoreFiles = []string{".gitignore", ".vecfsignore"}

// defaultSkipDirs are never descended into.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
}

// readIgnoreFiles returns the patterns of every ignore file found in root.
func readIgnoreFiles(root string, names []string) ([]string, error) {
	var patterns []string
	seen := make(map[string]bool)
	for _, name := range names {
		lines, err := readLines(filepath.Join(root, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			p := ignorePattern(line)
			if p != "" && !seen[p] {
				seen[p] = true
				patterns = append(patterns, p)
			}
		}
	}
	return patterns, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// ignorePattern turns one gitignore line into a slash separated glob.
// Blank lines, comments and negations yield "".
func ignorePattern(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return ""
	}
	anchored := strings.HasPrefix(line, "/")
	dir := strings.HasSuffix(line, "/")
	p := strings.Trim(line, "/")
	if p == "" {
		return ""
	}
	if !anchored && !strings.Contains(p, "/") && !strings.HasPrefix(p, "**/") {
		p = "**/" + p
	}
	if dir {
		p += "/**"
	}
	return p
}

// matchGlob reports whether the slash separated name matches pattern.
// "**" matches any number of path segments; other segments use path.Match
// rules via filepath.Match.
func matchGlob(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pat, name []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			if len(rest) == 0 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if matchSegments(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		if ok, err := filepath.Match(pat[0], name[0]); err != nil || !ok {
			return false
		}
		pat, name = pat[1:], name[1:]
	}
	return len(name) == 0
}
