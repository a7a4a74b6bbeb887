package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/config"
	"github.com/fyrsmithlabs/vecfs/internal/embeddings"
	"github.com/fyrsmithlabs/vecfs/internal/identity"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
	"github.com/fyrsmithlabs/vecfs/internal/secrets"
	"github.com/fyrsmithlabs/vecfs/internal/store"
	"github.com/fyrsmithlabs/vecfs/internal/store/badgerstore"
	"github.com/fyrsmithlabs/vecfs/internal/store/sqlite"
	"github.com/fyrsmithlabs/vecfs/internal/vectorfs"
)

// Build opens every service described by cfg. Configured profiles are
// initialized, and seeded when cfg.VectorFS.SeedDefaultFolders is set.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	node, err := identity.Parse(cfg.VectorFS.NodeName)
	if err != nil {
		return nil, fmt.Errorf("parsing node name: %w", err)
	}
	profiles, err := ParseProfiles(node, cfg.VectorFS.Profiles)
	if err != nil {
		return nil, err
	}
	redactor, err := NewRedactor(cfg.VectorFS)
	if err != nil {
		return nil, err
	}
	supported := make([]resource.ModelType, 0, len(cfg.VectorFS.SupportedModels))
	for _, m := range cfg.VectorFS.SupportedModels {
		supported = append(supported, resource.ModelType(m))
	}

	st, err := OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	if p := cfg.Embeddings.Provider; p == "" || p == embeddings.ProviderFastEmbed {
		if _, err := embeddings.EnsureONNXRuntime(ctx, logger.Named("embeddings")); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	gen, err := NewGenerator(cfg.Embeddings)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	reg := NewRegistry(Options{Store: st, Generator: gen})

	fs, err := vectorfs.New(ctx, gen, supported, nil, st, node,
		vectorfs.WithLogger(logger.Named("vectorfs")),
		vectorfs.WithSeedPolicy(SeedPolicy(cfg.VectorFS)),
		vectorfs.WithAccessLogRetention(cfg.Storage.AccessLogRetention))
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("loading vector fs: %w", err)
	}
	if err := fs.InitializeNewProfiles(ctx, node, profiles, gen.ModelType(), supported, cfg.VectorFS.SeedDefaultFolders); err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("initializing profiles: %w", err)
	}

	logger.Info("services ready",
		zap.String("node", node.String()),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("embeddings_key", cfg.Embeddings.APIKey.Fingerprint()),
		zap.Int("profiles", len(profiles)),
		zap.Bool("redact_secrets", redactor != nil))
	return NewRegistry(Options{VectorFS: fs, Store: st, Generator: gen, Redactor: redactor}), nil
}

// NewRedactor returns nil when cfg.RedactSecrets is off.
func NewRedactor(cfg config.VectorFSConfig) (*secrets.Redactor, error) {
	if !cfg.RedactSecrets {
		return nil, nil
	}
	path, err := config.ExpandPath(cfg.SecretsAllowlist)
	if err != nil {
		return nil, err
	}
	allow, err := secrets.LoadAllowlist(path)
	if err != nil {
		return nil, fmt.Errorf("loading secrets allowlist: %w", err)
	}
	r, err := secrets.NewRedactor(allow)
	if err != nil {
		return nil, fmt.Errorf("creating secrets redactor: %w", err)
	}
	return r, nil
}

// ParseProfiles turns configured profile names into full names on node.
// Entries may be a bare profile ("main") or a full name on the same node.
func ParseProfiles(node identity.Name, raw []string) ([]identity.Name, error) {
	out := make([]identity.Name, 0, len(raw))
	for _, r := range raw {
		var (
			name identity.Name
			err  error
		)
		if strings.HasPrefix(r, "@@") {
			name, err = identity.Parse(r)
		} else {
			name, err = node.WithProfile(r)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing profile %q: %w", r, err)
		}
		if !name.HasProfile() || !name.SameNode(node) {
			return nil, fmt.Errorf("profile %q must be a profile of %s", r, node)
		}
		out = append(out, name)
	}
	return out, nil
}

// SeedPolicy returns the folder layout for new profiles.
func SeedPolicy(cfg config.VectorFSConfig) vectorfs.SeedPolicy {
	if len(cfg.DefaultFolders) == 0 {
		return vectorfs.NoSeed()
	}
	return vectorfs.FolderSeedPolicy(cfg.DefaultFolders...)
}

// OpenStore opens the configured backend wrapped with metrics.
func OpenStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.Instrument(store.NewMemoryStore()), nil

	case config.BackendSQLite:
		path, err := prepareDataPath(cfg.Path, false)
		if err != nil {
			return nil, err
		}
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return store.Instrument(db), nil

	case config.BackendBadger:
		path := ""
		if !cfg.InMemory {
			var err error
			if path, err = prepareDataPath(cfg.Path, true); err != nil {
				return nil, err
			}
		}
		db, err := badgerstore.Open(badgerstore.Config{Path: path, InMemory: cfg.InMemory}, logger)
		if err != nil {
			return nil, err
		}
		return store.Instrument(db), nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", store.ErrInvalidConfig, cfg.Backend)
}

// prepareDataPath expands p and creates the directory that will hold it.
func prepareDataPath(p string, isDir bool) (string, error) {
	path, err := config.ExpandPath(p)
	if err != nil {
		return "", err
	}
	dir := path
	if !isDir {
		dir = filepath.Dir(path)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	return path, nil
}

// NewGenerator creates the configured embedding provider and wraps it in a
// rate-limited generator.
func NewGenerator(cfg config.EmbeddingsConfig) (*embeddings.ProviderGenerator, error) {
	cacheDir, err := config.ExpandPath(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	p, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey.Value(),
		Dimension: cfg.Dimension,
		CacheDir:  cacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	return embeddings.NewGenerator(p, resource.ModelType(cfg.Model),
		embeddings.WithRateLimit(cfg.RateLimit, cfg.RateBurst)), nil
}
