// Package importer walks a local directory and yields the text files that
// should be saved into a VecFS folder.
//
// Files are filtered by include and exclude globs, by the patterns of any
// .gitignore or .vecfsignore at the root, by size, and by content: files
// that are not valid UTF-8 are skipped as binary.
package importer
