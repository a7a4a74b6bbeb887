package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/store"
	"github.com/fyrsmithlabs/vecfs/internal/vectorfs"
)

const (
	defaultSearchResults = 10
	maxSearchResults     = 100
	defaultAccessLogs    = 100
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// InitProfileRequest is the request body for POST .../init.
type InitProfileRequest struct {
	CreateDefaultFolders bool `json:"create_default_folders"`
}

// CreateFolderRequest is the request body for POST .../folders.
type CreateFolderRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// SaveItemRequest is the request body for POST .../items. Text is split into
// paragraphs and embedded with the node's generator.
type SaveItemRequest struct {
	Folder      string           `json:"folder"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Text        string           `json:"text"`
	Source      *resource.Source `json:"source,omitempty"`
}

// TransferRequest is the request body for POST .../copy and .../move.
type TransferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PermissionsRequest is the request body for PUT .../permissions.
// Whitelist maps full names to "read", "write" or "read_write"; an empty
// value removes the name. ReadProfiles and WriteProfiles list the node
// profiles granted by node_profiles, as full names or bare profile names.
type PermissionsRequest struct {
	Path          string            `json:"path"`
	Read          string            `json:"read"`
	Write         string            `json:"write"`
	ReadProfiles  []string          `json:"read_profiles,omitempty"`
	WriteProfiles []string          `json:"write_profiles,omitempty"`
	Recursive     bool              `json:"recursive"`
	Whitelist     map[string]string `json:"whitelist,omitempty"`
}

// SearchRequest is the request body for POST .../search.
type SearchRequest struct {
	Path  string `json:"path"`
	Query string `json:"query"`
	K     int    `json:"k"`
}

// SearchResponse is the response body for POST .../search.
type SearchResponse struct {
	Results []vectorfs.ScoredFSItem `json:"results"`
}

// DeepSearchRequest is the request body for POST .../deep-search.
type DeepSearchRequest struct {
	Path     string              `json:"path"`
	Query    string              `json:"query"`
	NItems   int                 `json:"n_items"`
	NResults int                 `json:"n_results"`
	Mode     resource.SearchMode `json:"mode"`
}

// DeepSearchResponse is the response body for POST .../deep-search.
type DeepSearchResponse struct {
	Results []vectorfs.FSRetrievedNode `json:"results"`
}

// AccessLogsResponse is the response body for GET .../access-logs.
type AccessLogsResponse struct {
	Logs []store.AccessLog `json:"logs"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func parsePath(raw string) (resource.VRPath, error) {
	if raw == "" {
		return resource.Root(), nil
	}
	return resource.ParseVRPath(raw)
}

func (s *Server) bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		s.logger.Warn("invalid request body", zap.String("uri", c.Request().RequestURI), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

func clampK(k int) int {
	switch {
	case k <= 0:
		return defaultSearchResults
	case k > maxSearchResults:
		return maxSearchResults
	}
	return k
}

func (s *Server) handleInitProfile(c echo.Context) error {
	var req InitProfileRequest
	if c.Request().ContentLength > 0 {
		if err := s.bind(c, &req); err != nil {
			return err
		}
	}
	profile, requester := access(c)
	gen := s.fs.Generator()
	err := s.fs.InitializeNewProfiles(c.Request().Context(), requester, []identity.Name{profile},
		gen.ModelType(), nil, req.CreateDefaultFolders)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetEntry(c echo.Context) error {
	path, err := parsePath(c.QueryParam("path"))
	if err != nil {
		return s.httpError(c, err)
	}
	profile, requester := access(c)
	ctx := c.Request().Context()

	r, err := s.fs.NewReader(ctx, requester, path, profile)
	if err != nil {
		return s.httpError(c, err)
	}
	entry, err := s.fs.RetrieveFSEntry(ctx, r)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(c echo.Context) error {
	path, err := parsePath(c.QueryParam("path"))
	if err != nil {
		return s.httpError(c, err)
	}
	profile, requester := access(c)
	ctx := c.Request().Context()

	w, err := s.fs.NewWriter(ctx, requester, path, profile)
	if err != nil {
		return s.httpError(c, err)
	}
	if s.fs.ValidatePathPointsToItem(profile, path) == nil {
		err = s.fs.DeleteItem(ctx, w)
	} else {
		err = s.fs.DeleteFolder(ctx, w)
	}
	if err != nil {
		return s.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleCreateFolder(c echo.Context) error {
	var req CreateFolderRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	path, err := parsePath(req.Path)
	if err != nil {
		return s.httpError(c, err)
	}
	profile, requester := access(c)
	ctx := c.Request().Context()

	w, err := s.fs.NewWriter(ctx, requester, path, profile)
	if err != nil {
		return s.httpError(c, err)
	}
	folder, err := s.fs.CreateNewFolder(ctx, w, req.Name)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, folder)
}

func (s *Server) handleSaveItem(c echo.Context) error {
	var req SaveItemRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if req.Name == "" || req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and text are required")
	}
	folder, err := parsePath(req.Folder)
	if err != nil {
		return s.httpError(c, err)
	}
	profile, requester := access(c)
	ctx := c.Request().Context()

	// Check access before spending time on embeddings.
	w, err := s.fs.NewWriter(ctx, requester, folder, profile)
	if err != nil {
		return s.httpError(c, err)
	}
	src := resource.NoSource()
	if req.Source != nil {
		src = *req.Source
	}
	text := req.Text
	if s.config.Redactor != nil {
		res := s.config.Redactor.Redact(text)
		if res.HasRedactions() {
			s.logger.Info("redacted secrets from item",
				zap.String("folder", folder.String()),
				zap.String("name", req.Name),
				zap.Any("rules", res.RuleCounts))
			c.Response().Header().Set(HeaderRedactions, strconv.Itoa(len(res.Redactions)))
		}
		text = res.Text
	}
	doc, err := vectorfs.NewTextDocument(ctx, s.fs.Generator(), req.Name, req.Description, text, src)
	if err != nil {
		return s.httpError(c, err)
	}
	item, err := s.fs.SaveVectorResourceInFolder(ctx, w, doc, nil, nil)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (s *Server) transfer(c echo.Context, move bool) error {
	var req TransferRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	from, err := parsePath(req.From)
	if err != nil {
		return s.httpError(c, err)
	}
	to, err := parsePath(req.To)
	if err != nil {
		return s.httpError(c, err)
	}
	profile, requester := access(c)
	ctx := c.Request().Context()

	w, err := s.fs.NewWriter(ctx, requester, from, profile)
	if err != nil {
		return s.httpError(c, err)
	}

	var out any
	if s.fs.ValidatePathPointsToItem(profile, from) == nil {
		if move {
			out, err = s.fs.MoveItem(ctx, w, to)
		} else {
			out, err = s.fs.CopyItem(ctx, w, to)
		}
	} else {
		if move {
			out, err = s.fs.MoveFolder(ctx, w, to)
		} else {
			out, err = s.fs.CopyFolder(ctx, w, to)
		}
	}
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCopy(c echo.Context) error {
	return s.transfer(c, false)
}

func (s *Server) handleMove(c echo.Context) error {
	return s.transfer(c, true)
}

// profileNames resolves full names and bare profile names against this node.
func (s *Server) profileNames(raw []string) ([]identity.Name, error) {
	names := make([]identity.Name, 0, len(raw))
	for _, r := range raw {
		var (
			name identity.Name
			err  error
		)
		if strings.HasPrefix(r, "@@") {
			name, err = identity.Parse(r)
		} else {
			name, err = s.fs.NodeName().WithProfile(r)
		}
		if err != nil || !name.HasProfile() {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid profile name "+strconv.Quote(r))
		}
		names = append(names, name)
	}
	return names, nil
}

func (s *Server) handleSetPermissions(c echo.Context) error {
	var req PermissionsRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	path, err := parsePath(req.Path)
	if err != nil {
		return s.httpError(c, err)
	}
	read, err := vectorfs.ParseReadPermission(req.Read)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	write, err := vectorfs.ParseWritePermission(req.Write)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var opts []vectorfs.PermissionOption
	if len(req.ReadProfiles) > 0 {
		names, err := s.profileNames(req.ReadProfiles)
		if err != nil {
			return err
		}
		opts = append(opts, vectorfs.WithReadProfiles(names...))
	}
	if len(req.WriteProfiles) > 0 {
		names, err := s.profileNames(req.WriteProfiles)
		if err != nil {
			return err
		}
		opts = append(opts, vectorfs.WithWriteProfiles(names...))
	}
	profile, requester := access(c)
	ctx := c.Request().Context()

	w, err := s.fs.NewWriter(ctx, requester, path, profile)
	if err != nil {
		return s.httpError(c, err)
	}
	if req.Recursive {
		err = s.fs.UpdatePermissionsRecursively(ctx, w, read, write, opts...)
	} else {
		err = s.fs.SetPathPermission(ctx, w, read, write, opts...)
	}
	if err != nil {
		return s.httpError(c, err)
	}

	for rawName, rawPerm := range req.Whitelist {
		name, err := identity.Parse(rawName)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid whitelist name "+strconv.Quote(rawName))
		}
		if rawPerm == "" {
			err = s.fs.RemoveWhitelistPermission(ctx, w, name)
		} else {
			var perm vectorfs.WhitelistPermission
			perm, err = vectorfs.ParseWhitelistPermission(rawPerm)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			err = s.fs.SetWhitelistPermission(ctx, w, name, perm)
		}
		if err != nil {
			return s.httpError(c, err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	path, err := parsePath(req.Path)
	if err != nil {
		return s.httpError(c, err)
	}
	profile, requester := access(c)
	ctx := c.Request().Context()

	r, err := s.fs.NewReader(ctx, requester, path, profile)
	if err != nil {
		return s.httpError(c, err)
	}
	query, err := s.fs.GenerateQueryEmbedding(ctx, req.Query)
	if err != nil {
		return s.httpError(c, err)
	}
	results, err := s.fs.VectorSearchFSItemWithScore(ctx, r, query, clampK(req.K))
	if err != nil {
		return s.httpError(c, err)
	}
	if results == nil {
		results = []vectorfs.ScoredFSItem{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) handleDeepSearch(c echo.Context) error {
	var req DeepSearchRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	switch req.Mode {
	case resource.SearchModeDefault, resource.SearchModeFillUpTo25k, resource.SearchModeMergeSiblings:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown search mode "+strconv.Quote(string(req.Mode)))
	}
	path, err := parsePath(req.Path)
	if err != nil {
		return s.httpError(c, err)
	}
	profile, requester := access(c)
	ctx := c.Request().Context()

	r, err := s.fs.NewReader(ctx, requester, path, profile)
	if err != nil {
		return s.httpError(c, err)
	}
	results, err := s.fs.DeepVectorSearch(ctx, r, req.Query, clampK(req.NItems), clampK(req.NResults), req.Mode)
	if err != nil {
		return s.httpError(c, err)
	}
	if results == nil {
		results = []vectorfs.FSRetrievedNode{}
	}
	return c.JSON(http.StatusOK, DeepSearchResponse{Results: results})
}

func (s *Server) handleAccessLogs(c echo.Context) error {
	limit := s.config.AccessLogLimit
	if limit <= 0 {
		limit = defaultAccessLogs
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	profile, requester := access(c)
	logs, err := s.fs.AccessLogs(c.Request().Context(), requester, profile, limit)
	if err != nil {
		return s.httpError(c, err)
	}
	if logs == nil {
		logs = []store.AccessLog{}
	}
	return c.JSON(http.StatusOK, AccessLogsResponse{Logs: logs})
}
