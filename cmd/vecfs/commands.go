package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/vecfs/internal/http"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/vectorfs"
)

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check vecfsd server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			url := fmt.Sprintf("%s/health", opts.serverURL)
			resp, err := client.Get(url)
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", url, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
			}
			var health httpserver.HealthResponse
			if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			cmd.Printf("Server Status: %s\n", health.Status)
			return nil
		},
	}
}

func newInitCmd(opts *options) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the profile on the node",
		Long: `Initialize the profile on the node. The requester must belong to the node.

Examples:
  # Create profile "work" with the node's default folders
  vecfs init --profile work --requester @@node.shinkai --seed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := httpserver.InitProfileRequest{CreateDefaultFolders: seed}
			if err := newClient(opts).do(cmd.Context(), http.MethodPost, "/init", nil, req, nil); err != nil {
				return err
			}
			cmd.Printf("Profile %s initialized\n", opts.profile)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "create the node's default folders")
	return cmd
}

func newLsCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a folder or describe an item",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := "/"
			if len(args) == 1 {
				p = args[0]
			}
			var entry vectorfs.FSEntry
			if err := newClient(opts).do(cmd.Context(), http.MethodGet, "/entries", url.Values{"path": {p}}, nil, &entry); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, entry)
			}
			printEntry(cmd, entry)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw entry as JSON")
	return cmd
}

func printEntry(cmd *cobra.Command, entry vectorfs.FSEntry) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	var (
		folders []vectorfs.FSFolder
		items   []vectorfs.FSItem
	)
	switch entry.Kind {
	case vectorfs.EntryItem:
		it := entry.Item
		fmt.Fprintf(w, "%s\t%d bytes\t%s\n", it.Path, it.VRSize, it.LastWrittenDatetime.Format(time.RFC3339))
		return
	case vectorfs.EntryFolder:
		folders, items = entry.Folder.ChildFolders, entry.Folder.ChildItems
	case vectorfs.EntryRoot:
		folders, items = entry.Root.ChildFolders, entry.Root.ChildItems
	}
	for _, f := range folders {
		fmt.Fprintf(w, "%s/\t\t%s\n", f.Name, f.LastModifiedDatetime.Format(time.RFC3339))
	}
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%d bytes\t%s\n", it.Name, it.VRSize, it.LastWrittenDatetime.Format(time.RFC3339))
	}
}

func newMkdirCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, name := splitPath(args[0])
			var folder vectorfs.FSFolder
			req := httpserver.CreateFolderRequest{Path: parent, Name: name}
			if err := newClient(opts).do(cmd.Context(), http.MethodPost, "/folders", nil, req, &folder); err != nil {
				return err
			}
			cmd.Println(folder.Path.String())
			return nil
		},
	}
}

func newPutCmd(opts *options) *cobra.Command {
	var (
		name        string
		description string
	)
	cmd := &cobra.Command{
		Use:   "put <folder> [file]",
		Short: "Embed a text file and save it in a folder",
		Long: `Embed a text file and save it as an item in a folder.
The text is split into paragraphs and embedded by the server.

Examples:
  # Save notes.md as /docs/notes
  vecfs put /docs notes.md

  # Save from stdin
  cat log.txt | vecfs put /logs - --name today`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := resource.NoSource()
			var (
				content []byte
				err     error
			)
			if len(args) == 1 || args[1] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
			} else {
				content, err = os.ReadFile(args[1])
				if err != nil {
					return fmt.Errorf("failed to read file %s: %w", args[1], err)
				}
				src = resource.Source{
					Type:      resource.SourceFile,
					Reference: args[1],
					FileType:  strings.TrimPrefix(path.Ext(args[1]), "."),
				}
				if name == "" {
					name = path.Base(args[1])
				}
			}
			if name == "" {
				return fmt.Errorf("--name is required when reading stdin")
			}
			if len(content) == 0 {
				return fmt.Errorf("no content to save")
			}

			req := httpserver.SaveItemRequest{
				Folder:      args[0],
				Name:        name,
				Description: description,
				Text:        string(content),
				Source:      &src,
			}
			var item vectorfs.FSItem
			if err := newClient(opts).do(cmd.Context(), http.MethodPost, "/items", nil, req, &item); err != nil {
				return err
			}
			cmd.Println(item.Path.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "item name (defaults to the file name)")
	cmd.Flags().StringVar(&description, "description", "", "item description")
	return cmd
}

func newRmCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete an item or a folder with everything below it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).do(cmd.Context(), http.MethodDelete, "/entries", url.Values{"path": {args[0]}}, nil, nil)
		},
	}
}

func newTransferCmd(opts *options, move bool) *cobra.Command {
	use, short, route := "cp <path> <folder>", "Copy an item or folder into a folder", "/copy"
	if move {
		use, short, route = "mv <path> <folder>", "Move an item or folder into a folder", "/move"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Path resource.VRPath `json:"path"`
			}
			req := httpserver.TransferRequest{From: args[0], To: args[1]}
			if err := newClient(opts).do(cmd.Context(), http.MethodPost, route, nil, req, &out); err != nil {
				return err
			}
			cmd.Println(out.Path.String())
			return nil
		},
	}
}

func newChmodCmd(opts *options) *cobra.Command {
	var (
		read          string
		write         string
		readProfiles  []string
		writeProfiles []string
		recursive     bool
		allow         []string
		deny          []string
	)
	cmd := &cobra.Command{
		Use:   "chmod <path>",
		Short: "Set read, write and whitelist permissions",
		Long: `Set the read and write permission of a path.
Permissions are private, node_profiles, whitelist or public (read only).

Examples:
  # Share a folder with two profiles on the node
  vecfs chmod /shared --read node_profiles --read-profiles alice,bob --recursive

  # Let one requester read a folder
  vecfs chmod /shared --read whitelist --allow @@peer.shinkai/bob=read`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := httpserver.PermissionsRequest{
				Path:          args[0],
				Read:          read,
				Write:         write,
				ReadProfiles:  readProfiles,
				WriteProfiles: writeProfiles,
				Recursive:     recursive,
				Whitelist:     make(map[string]string),
			}
			for _, a := range allow {
				name, perm, ok := strings.Cut(a, "=")
				if !ok {
					return fmt.Errorf("--allow %q: want name=permission", a)
				}
				req.Whitelist[name] = perm
			}
			for _, name := range deny {
				req.Whitelist[name] = ""
			}
			return newClient(opts).do(cmd.Context(), http.MethodPut, "/permissions", nil, req, nil)
		},
	}
	cmd.Flags().StringVar(&read, "read", string(vectorfs.ReadPrivate), "read permission")
	cmd.Flags().StringVar(&write, "write", string(vectorfs.WritePrivate), "write permission")
	cmd.Flags().StringSliceVar(&readProfiles, "read-profiles", nil, "profiles granted read by node_profiles")
	cmd.Flags().StringSliceVar(&writeProfiles, "write-profiles", nil, "profiles granted write by node_profiles")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "apply to everything below path")
	cmd.Flags().StringArrayVar(&allow, "allow", nil, "whitelist name=read|write|read_write (repeatable)")
	cmd.Flags().StringArrayVar(&deny, "deny", nil, "remove a name from the whitelist (repeatable)")
	return cmd
}

func newSearchCmd(opts *options) *cobra.Command {
	var (
		dir    string
		k      int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the items most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := httpserver.SearchRequest{Path: dir, Query: strings.Join(args, " "), K: k}
			var resp httpserver.SearchResponse
			if err := newClient(opts).do(cmd.Context(), http.MethodPost, "/search", nil, req, &resp); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, resp)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, r := range resp.Results {
				fmt.Fprintf(w, "%.4f\t%s\n", r.Score, r.Item.Path)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&dir, "path", "/", "folder to search under")
	cmd.Flags().IntVarP(&k, "num", "k", 10, "number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func newDeepSearchCmd(opts *options) *cobra.Command {
	var (
		dir      string
		nItems   int
		nResults int
		mode     string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "deep-search <query>",
		Short: "Search inside the best matching items",
		Long: `Find the items most similar to a query, then search inside each of them
and print the best matching nodes.

Modes: "" (default), fill_up_to_25k, merge_siblings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := httpserver.DeepSearchRequest{
				Path:     dir,
				Query:    strings.Join(args, " "),
				NItems:   nItems,
				NResults: nResults,
				Mode:     resource.SearchMode(mode),
			}
			var resp httpserver.DeepSearchResponse
			if err := newClient(opts).do(cmd.Context(), http.MethodPost, "/deep-search", nil, req, &resp); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, resp)
			}
			for _, r := range resp.Results {
				cmd.Printf("%.4f %s\n%s\n\n", r.Score(), r.ItemPath, strings.TrimSpace(r.Node.Node.Text))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "path", "/", "folder to search under")
	cmd.Flags().IntVar(&nItems, "items", 5, "number of items to search inside")
	cmd.Flags().IntVarP(&nResults, "num", "k", 10, "number of nodes to return")
	cmd.Flags().StringVar(&mode, "mode", "", "result post-processing mode")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func newLogsCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the newest access logs of the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			var resp httpserver.AccessLogsResponse
			if err := newClient(opts).do(cmd.Context(), http.MethodGet, "/access-logs", q, nil, &resp); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, l := range resp.Logs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Time.Format(time.RFC3339), l.Kind, l.Requester, l.Path)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of entries (server default when 0)")
	return cmd
}

// splitPath splits "/a/b" into "/a" and "b".
func splitPath(p string) (parent, name string) {
	p = "/" + strings.Trim(p, "/")
	parent, name = path.Split(p)
	if parent != "/" {
		parent = strings.TrimSuffix(parent, "/")
	}
	return parent, name
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
