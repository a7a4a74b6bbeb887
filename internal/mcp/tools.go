package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/logging"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/vectorfs"
)

const (
	defaultResults = 10
	maxResults     = 100
)

var errInvalidArgument = errors.New("invalid argument")

// ===== INPUT / OUTPUT TYPES =====

type listInput struct {
	Profile string `json:"profile,omitempty" jsonschema:"Profile to read (default: the requester's profile)"`
	Path    string `json:"path,omitempty" jsonschema:"Folder or item path, e.g. /docs (default: /)"`
}

type entryOutput struct {
	Name        string `json:"name" jsonschema:"Entry name"`
	Path        string `json:"path" jsonschema:"Full path"`
	Kind        string `json:"kind" jsonschema:"folder or item"`
	LastWritten string `json:"last_written" jsonschema:"RFC 3339 time of the last write"`
}

type listOutput struct {
	Path    string        `json:"path" jsonschema:"Listed path"`
	Kind    string        `json:"kind" jsonschema:"root, folder or item"`
	Entries []entryOutput `json:"entries" jsonschema:"Child folders then items; the item itself for an item path"`
}

type mkdirInput struct {
	Profile string `json:"profile,omitempty" jsonschema:"Profile to write (default: the requester's profile)"`
	Parent  string `json:"parent,omitempty" jsonschema:"Parent folder path (default: /)"`
	Name    string `json:"name" jsonschema:"required,Name of the new folder"`
}

type pathOutput struct {
	Path string `json:"path" jsonschema:"Path of the created entry"`
}

type saveInput struct {
	Profile     string `json:"profile,omitempty" jsonschema:"Profile to write (default: the requester's profile)"`
	Folder      string `json:"folder,omitempty" jsonschema:"Destination folder path (default: /)"`
	Name        string `json:"name" jsonschema:"required,Item name"`
	Description string `json:"description,omitempty" jsonschema:"Short description used for search"`
	Text        string `json:"text" jsonschema:"required,Item text; paragraphs become searchable nodes"`
}

type saveOutput struct {
	Path       string `json:"path" jsonschema:"Path of the saved item"`
	Redactions int    `json:"redactions" jsonschema:"Number of secrets removed before saving"`
}

type searchInput struct {
	Profile string `json:"profile,omitempty" jsonschema:"Profile to search (default: the requester's profile)"`
	Path    string `json:"path,omitempty" jsonschema:"Folder to search under (default: /)"`
	Query   string `json:"query" jsonschema:"required,Natural language query"`
	K       int    `json:"k,omitempty" jsonschema:"Number of items to return (default: 10, max: 100)"`
}

type searchHit struct {
	Path  string  `json:"path" jsonschema:"Item path"`
	Name  string  `json:"name" jsonschema:"Item name"`
	Score float64 `json:"score" jsonschema:"Similarity score"`
}

type searchOutput struct {
	Results []searchHit `json:"results" jsonschema:"Items ordered by score"`
}

type deepSearchInput struct {
	Profile string `json:"profile,omitempty" jsonschema:"Profile to search (default: the requester's profile)"`
	Path    string `json:"path,omitempty" jsonschema:"Folder to search under (default: /)"`
	Query   string `json:"query" jsonschema:"required,Natural language query"`
	Items   int    `json:"items,omitempty" jsonschema:"Number of items to search inside (default: 10)"`
	Results int    `json:"results,omitempty" jsonschema:"Number of passages to return (default: 10)"`
	Mode    string `json:"mode,omitempty" jsonschema:"Post-processing: empty, fill_up_to_25k or merge_siblings"`
}

type passage struct {
	ItemPath string  `json:"item_path" jsonschema:"Item the passage was found in"`
	Score    float64 `json:"score" jsonschema:"Pooled score"`
	Text     string  `json:"text" jsonschema:"Passage text"`
}

type deepSearchOutput struct {
	Results []passage `json:"results" jsonschema:"Passages ordered by score"`
}

// ===== REGISTRATION =====

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "vecfs_ls",
		Description: "List a folder of a profile, or describe one item",
	}, s.handleList)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "vecfs_mkdir",
		Description: "Create a folder inside a parent folder",
	}, s.handleMkdir)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "vecfs_save",
		Description: "Embed text and save it as an item in a folder. Existing items with the same name are overwritten",
	}, s.handleSave)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "vecfs_search",
		Description: "Find the items most similar to a query under a folder",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "vecfs_deep_search",
		Description: "Find the best matching items, then return the best matching passages inside them",
	}, s.handleDeepSearch)
}

// ===== HANDLERS =====

func (s *Server) handleList(ctx context.Context, _ *mcp.CallToolRequest, args listInput) (_ *mcp.CallToolResult, _ listOutput, err error) {
	done := s.metrics.track(ctx, "vecfs_ls")
	defer func() { done(err) }()

	ctx, profile, path, err := s.target(ctx, args.Profile, args.Path)
	if err != nil {
		return nil, listOutput{}, err
	}
	r, err := s.fs.NewReader(ctx, s.requester, path, profile)
	if err != nil {
		return nil, listOutput{}, err
	}
	entry, err := s.fs.RetrieveFSEntry(ctx, r)
	if err != nil {
		return nil, listOutput{}, err
	}

	out := listOutput{Path: path.String(), Kind: string(entry.Kind), Entries: []entryOutput{}}
	addFolders := func(fs []vectorfs.FSFolder) {
		for _, f := range fs {
			out.Entries = append(out.Entries, entryOutput{Name: f.Name, Path: f.Path.String(), Kind: string(vectorfs.EntryFolder), LastWritten: f.LastWrittenDatetime.Format(time.RFC3339)})
		}
	}
	addItems := func(is []vectorfs.FSItem) {
		for _, it := range is {
			out.Entries = append(out.Entries, entryOutput{Name: it.Name, Path: it.Path.String(), Kind: string(vectorfs.EntryItem), LastWritten: it.LastWrittenDatetime.Format(time.RFC3339)})
		}
	}
	switch entry.Kind {
	case vectorfs.EntryRoot:
		addFolders(entry.Root.ChildFolders)
		addItems(entry.Root.ChildItems)
	case vectorfs.EntryFolder:
		addFolders(entry.Folder.ChildFolders)
		addItems(entry.Folder.ChildItems)
	case vectorfs.EntryItem:
		addItems([]vectorfs.FSItem{*entry.Item})
	}
	return nil, out, nil
}

func (s *Server) handleMkdir(ctx context.Context, _ *mcp.CallToolRequest, args mkdirInput) (_ *mcp.CallToolResult, _ pathOutput, err error) {
	done := s.metrics.track(ctx, "vecfs_mkdir")
	defer func() { done(err) }()

	ctx, profile, parent, err := s.target(ctx, args.Profile, args.Parent)
	if err != nil {
		return nil, pathOutput{}, err
	}
	w, err := s.fs.NewWriter(ctx, s.requester, parent, profile)
	if err != nil {
		return nil, pathOutput{}, err
	}
	folder, err := s.fs.CreateNewFolder(ctx, w, args.Name)
	if err != nil {
		return nil, pathOutput{}, err
	}
	return nil, pathOutput{Path: folder.Path.String()}, nil
}

func (s *Server) handleSave(ctx context.Context, _ *mcp.CallToolRequest, args saveInput) (_ *mcp.CallToolResult, _ saveOutput, err error) {
	done := s.metrics.track(ctx, "vecfs_save")
	defer func() { done(err) }()

	if args.Name == "" || args.Text == "" {
		return nil, saveOutput{}, fmt.Errorf("%w: name and text are required", errInvalidArgument)
	}
	ctx, profile, folder, err := s.target(ctx, args.Profile, args.Folder)
	if err != nil {
		return nil, saveOutput{}, err
	}
	w, err := s.fs.NewWriter(ctx, s.requester, folder, profile)
	if err != nil {
		return nil, saveOutput{}, err
	}

	text, redactions := args.Text, 0
	if s.redactor != nil {
		res := s.redactor.Redact(text)
		text, redactions = res.Text, len(res.Redactions)
		if redactions > 0 {
			s.logger.Info("redacted secrets from item",
				zap.String("folder", folder.String()),
				zap.String("name", args.Name),
				zap.Any("rules", res.RuleCounts))
		}
	}

	doc, err := vectorfs.NewTextDocument(ctx, s.fs.Generator(), args.Name, args.Description, text, resource.NoSource())
	if err != nil {
		return nil, saveOutput{}, err
	}
	item, err := s.fs.SaveVectorResourceInFolder(ctx, w, doc, nil, nil)
	if err != nil {
		return nil, saveOutput{}, err
	}
	return nil, saveOutput{Path: item.Path.String(), Redactions: redactions}, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, args searchInput) (_ *mcp.CallToolResult, _ searchOutput, err error) {
	done := s.metrics.track(ctx, "vecfs_search")
	defer func() { done(err) }()

	if args.Query == "" {
		return nil, searchOutput{}, fmt.Errorf("%w: query is required", errInvalidArgument)
	}
	ctx, profile, path, err := s.target(ctx, args.Profile, args.Path)
	if err != nil {
		return nil, searchOutput{}, err
	}
	r, err := s.fs.NewReader(ctx, s.requester, path, profile)
	if err != nil {
		return nil, searchOutput{}, err
	}
	query, err := s.fs.GenerateQueryEmbedding(ctx, args.Query)
	if err != nil {
		return nil, searchOutput{}, err
	}
	found, err := s.fs.VectorSearchFSItemWithScore(ctx, r, query, clamp(args.K))
	if err != nil {
		return nil, searchOutput{}, err
	}

	out := searchOutput{Results: make([]searchHit, 0, len(found))}
	for _, f := range found {
		out.Results = append(out.Results, searchHit{Path: f.Item.Path.String(), Name: f.Item.Name, Score: float64(f.Score)})
	}
	return nil, out, nil
}

func (s *Server) handleDeepSearch(ctx context.Context, _ *mcp.CallToolRequest, args deepSearchInput) (_ *mcp.CallToolResult, _ deepSearchOutput, err error) {
	done := s.metrics.track(ctx, "vecfs_deep_search")
	defer func() { done(err) }()

	if args.Query == "" {
		return nil, deepSearchOutput{}, fmt.Errorf("%w: query is required", errInvalidArgument)
	}
	mode := resource.SearchMode(args.Mode)
	switch mode {
	case resource.SearchModeDefault, resource.SearchModeFillUpTo25k, resource.SearchModeMergeSiblings:
	default:
		return nil, deepSearchOutput{}, fmt.Errorf("%w: unknown search mode %s", errInvalidArgument, strconv.Quote(args.Mode))
	}
	ctx, profile, path, err := s.target(ctx, args.Profile, args.Path)
	if err != nil {
		return nil, deepSearchOutput{}, err
	}
	r, err := s.fs.NewReader(ctx, s.requester, path, profile)
	if err != nil {
		return nil, deepSearchOutput{}, err
	}
	found, err := s.fs.DeepVectorSearch(ctx, r, args.Query, clamp(args.Items), clamp(args.Results), mode)
	if err != nil {
		return nil, deepSearchOutput{}, err
	}

	out := deepSearchOutput{Results: make([]passage, 0, len(found))}
	for _, n := range found {
		out.Results = append(out.Results, passage{
			ItemPath: n.ItemPath.String(),
			Score:    float64(n.Score()),
			Text:     n.Node.Node.Text,
		})
	}
	return nil, out, nil
}

// ===== HELPERS =====

// target resolves the profile and path of a call and tags ctx for logging.
// An empty profile means the requester's own profile.
func (s *Server) target(ctx context.Context, rawProfile, rawPath string) (context.Context, identity.Name, resource.VRPath, error) {
	var (
		profile identity.Name
		err     error
	)
	switch {
	case rawProfile != "":
		profile, err = s.fs.NodeName().WithProfile(rawProfile)
	case s.requester.HasProfile() && s.requester.SameNode(s.fs.NodeName()):
		profile = s.requester
	default:
		err = errors.New("profile is required")
	}
	if err != nil {
		return ctx, identity.Name{}, resource.VRPath{}, fmt.Errorf("%w: %v", errInvalidArgument, err)
	}

	path := resource.Root()
	if rawPath != "" {
		if path, err = resource.ParseVRPath(rawPath); err != nil {
			return ctx, identity.Name{}, resource.VRPath{}, fmt.Errorf("%w: %v", errInvalidArgument, err)
		}
	}
	return logging.WithAccess(ctx, profile, s.requester), profile, path, nil
}

func clamp(k int) int {
	switch {
	case k <= 0:
		return defaultResults
	case k > maxResults:
		return maxResults
	}
	return k
}
