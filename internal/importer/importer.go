package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"unicode/utf8"
)

const (
	// DefaultMaxFileSize is used when Options.MaxFileSize is zero.
	DefaultMaxFileSize int64 = 1 << 20
	// MaxFileSizeLimit caps Options.MaxFileSize.
	MaxFileSizeLimit int64 = 10 << 20
)

// ErrInvalidOptions is returned for bad patterns, sizes or roots.
var ErrInvalidOptions = errors.New("invalid import options")

// Options configures a directory walk.
type Options struct {
	// Include globs select files by base name or relative path. Empty selects all.
	Include []string
	// Exclude globs drop files and directories; they win over Include.
	Exclude []string
	// MaxFileSize skips larger files. Zero means DefaultMaxFileSize.
	MaxFileSize int64
	// IgnoreFiles are read from the root. Nil means DefaultIgnoreFiles.
	IgnoreFiles []string
}

// File is one file selected for import.
type File struct {
	// Dir is the slash separated directory relative to the root, "" at the root.
	Dir     string
	Name    string
	Content []byte
}

// RelPath is the slash separated path relative to the root.
func (f File) RelPath() string {
	return path.Join(f.Dir, f.Name)
}

// Result summarizes a walk.
type Result struct {
	Root     string
	Imported int
	Skipped  int
}

// Walk calls fn for every selected file under root in lexical order.
// An error from fn stops the walk.
func Walk(ctx context.Context, root string, opts Options, fn func(File) error) (Result, error) {
	root, err := validateRoot(root)
	if err != nil {
		return Result{}, err
	}
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MaxFileSize < 0 || opts.MaxFileSize > MaxFileSizeLimit {
		return Result{}, fmt.Errorf("%w: max file size must be between 1 and %d bytes", ErrInvalidOptions, MaxFileSizeLimit)
	}
	for _, p := range append(append([]string{}, opts.Include...), opts.Exclude...) {
		if _, err := path.Match(p, "x"); err != nil {
			return Result{}, fmt.Errorf("%w: pattern %q: %v", ErrInvalidOptions, p, err)
		}
	}
	if opts.IgnoreFiles == nil {
		opts.IgnoreFiles = DefaultIgnoreFiles
	}
	ignored, err := readIgnoreFiles(root, opts.IgnoreFiles)
	if err != nil {
		return Result{}, fmt.Errorf("reading ignore files: %w", err)
	}
	exclude := append(ignored, opts.Exclude...)

	res := Result{Root: root}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if defaultSkipDirs[d.Name()] || matchesAny(exclude, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !selected(rel, info.Size(), opts.Include, exclude, opts.MaxFileSize) {
			res.Skipped++
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		if !utf8.Valid(content) || len(content) == 0 {
			res.Skipped++
			return nil
		}

		dir, name := path.Split(rel)
		if err := fn(File{Dir: path.Clean("/" + dir)[1:], Name: name, Content: content}); err != nil {
			return err
		}
		res.Imported++
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("walking %s: %w", root, err)
	}
	return res, nil
}

func validateRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: root cannot be empty", ErrInvalidOptions)
	}
	clean := filepath.Clean(root)
	info, err := os.Stat(clean)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidOptions, clean)
	}
	return clean, nil
}

// selected applies size, exclude and include filters to a file.
func selected(rel string, size int64, include, exclude []string, maxSize int64) bool {
	if size > maxSize {
		return false
	}
	if matchesAny(exclude, rel) {
		return false
	}
	return len(include) == 0 || matchesAny(include, rel)
}

// matchesAny matches patterns against rel and its base name.
func matchesAny(patterns []string, rel string) bool {
	base := path.Base(rel)
	for _, p := range patterns {
		if matchGlob(p, rel) || matchGlob(p, base) {
			return true
		}
	}
	return false
}
