package main

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/vecfs/internal/http"
	"github.com/fyrsmithlabs/vecfs/internal/importer"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/vectorfs"
)

func newImportCmd(opts *options) *cobra.Command {
	var (
		include []string
		exclude []string
		maxSize int64
	)
	cmd := &cobra.Command{
		Use:   "import <dir> <folder>",
		Short: "Save every text file of a directory into a folder",
		Long: `Walk a local directory and save each text file as an item, recreating
subdirectories as folders under <folder>.

Patterns from .gitignore and .vecfsignore at the directory root are honored.
Binary files and files over --max-size are skipped. Items are named after the
file without its extension, so "notes.md" and "notes.txt" in one directory
share an item.

Examples:
  # Import a docs tree
  vecfs import ./docs /docs

  # Only markdown, skipping drafts
  vecfs import ./docs /docs --include '*.md' --exclude 'drafts/**'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			base := "/" + strings.Trim(args[1], "/")
			created := map[string]bool{"/": true}

			ensure := func(folder string) error {
				var missing []string
				for p := folder; !created[p]; p = path.Dir(p) {
					missing = append(missing, p)
				}
				for i := len(missing) - 1; i >= 0; i-- {
					parent, name := splitPath(missing[i])
					err := c.do(cmd.Context(), http.MethodPost, "/folders", nil,
						httpserver.CreateFolderRequest{Path: parent, Name: name}, nil)
					var apiErr *apiError
					if err != nil && !(errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict) {
						return fmt.Errorf("creating folder %s: %w", missing[i], err)
					}
					created[missing[i]] = true
				}
				return nil
			}

			res, err := importer.Walk(cmd.Context(), args[0], importer.Options{
				Include:     include,
				Exclude:     exclude,
				MaxFileSize: maxSize,
			}, func(f importer.File) error {
				folder := path.Join(base, f.Dir)
				if err := ensure(folder); err != nil {
					return err
				}
				src := resource.Source{
					Type:      resource.SourceFile,
					Reference: f.RelPath(),
					FileType:  strings.TrimPrefix(path.Ext(f.Name), "."),
				}
				var item vectorfs.FSItem
				err := c.do(cmd.Context(), http.MethodPost, "/items", nil, httpserver.SaveItemRequest{
					Folder: folder,
					Name:   f.Name,
					Text:   string(f.Content),
					Source: &src,
				}, &item)
				if err != nil {
					return fmt.Errorf("saving %s: %w", f.RelPath(), err)
				}
				cmd.Println(item.Path.String())
				return nil
			})
			if err != nil {
				return err
			}
			cmd.Printf("Imported %d files (%d skipped)\n", res.Imported, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&include, "include", nil, "only import files matching glob (repeatable)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "skip files and directories matching glob (repeatable)")
	cmd.Flags().Int64Var(&maxSize, "max-size", importer.DefaultMaxFileSize, "skip files larger than this many bytes")
	return cmd
}
