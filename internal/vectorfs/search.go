package vectorfs

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/vecfs/internal/resource"
)

// deepSearchConcurrency bounds how many items are searched at once during the
// second phase of a deep search.
const deepSearchConcurrency = 8

// FSRetrievedNode is a node found inside an item by a deep search.
type FSRetrievedNode struct {
	ItemPath resource.VRPath       `json:"fs_item_path"`
	Node     resource.RetrievedNode `json:"resource_retrieved_node"`
}

// ItemName returns the name of the item the node was found in.
func (n FSRetrievedNode) ItemName() string { return n.Node.ResourceHeader.ResourceName }

// ReferenceString returns the reference string of the item's resource.
func (n FSRetrievedNode) ReferenceString() string { return n.Node.ResourceHeader.ReferenceString() }

// Score returns the pooled score of the node.
func (n FSRetrievedNode) Score() float32 { return n.Node.Score }

// ScoredFSItem pairs an item with its search score.
type ScoredFSItem struct {
	Item  FSItem  `json:"item"`
	Score float32 `json:"score"`
}

// GenerateQueryEmbedding embeds text with the default model of the generator.
func (v *VectorFS) GenerateQueryEmbedding(ctx context.Context, text string) (resource.Embedding, error) {
	e, err := v.generator.GenerateEmbeddingDefault(ctx, text)
	if err != nil {
		return resource.Embedding{}, fmt.Errorf("embedding query: %w", err)
	}
	return e, nil
}

// vectorSearchCore is the only way the profile tree is searched. Caller
// options that limit traversal or change scoring are dropped and replaced by
// a validator over the reader's exported permissions, so folders the reader
// cannot see are never entered. Items the reader cannot read are filtered out.
func vectorSearchCore(in *Internals, r *Reader, query resource.Embedding, k int, method resource.TraversalMethod, opts []resource.TraversalOption, mode resource.SearchMode) ([]resource.RetrievedNode, error) {
	if !r.path.IsRoot() {
		if _, err := folderAt(in, r.path); err != nil {
			return nil, err
		}
	}
	exported, err := in.Permissions.ExportForReader(r.requester)
	if err != nil {
		return nil, err
	}

	kept := make([]resource.TraversalOption, 0, len(opts)+1)
	for _, o := range opts {
		if resource.IsTraversalLimiting(o) || resource.IsScoringMode(o) {
			continue
		}
		kept = append(kept, o)
	}
	kept = append(kept, resource.LimitTraversalByValidation{Func: readValidator, Context: exported})

	results := resource.VectorSearchCustomized(in.Core, query, -1, method, kept, r.path)
	visible := results[:0]
	for _, ret := range results {
		if in.Permissions.ValidateReadAccess(r.requester, ret.RetrievalPath) == nil {
			visible = append(visible, ret)
		}
	}
	if k >= 0 && len(visible) > k {
		visible = visible[:k]
	}
	return resource.ApplySearchMode(in.Core, visible, mode), nil
}

// searchHeaders returns the k best readable items. k <= 0 returns none.
func (v *VectorFS) searchHeaders(ctx context.Context, r *Reader, query resource.Embedding, k int) ([]ScoredFSItem, error) {
	if k <= 0 {
		return nil, nil
	}
	var out []ScoredFSItem
	err := v.view(r.profile, func(in *Internals) error {
		results, err := vectorSearchCore(in, r, query, -1, resource.Exhaustive, nil, resource.SearchModeDefault)
		if err != nil {
			return err
		}
		for _, ret := range results {
			if ret.Node.Kind != resource.ContentVRHeader {
				continue
			}
			item, err := itemFromNode(ret.Node, ret.RetrievalPath, in.LastRead)
			if err != nil {
				return err
			}
			out = append(out, ScoredFSItem{Item: item, Score: ret.Score})
			if len(out) == k {
				break
			}
		}
		return nil
	})
	return out, err
}

// VectorSearchFSItemWithScore returns the k items under the reader's path most
// similar to query, with their scores. k <= 0 returns no items.
func (v *VectorFS) VectorSearchFSItemWithScore(ctx context.Context, r *Reader, query resource.Embedding, k int) ([]ScoredFSItem, error) {
	ctx, span := v.tracer.Start(ctx, "vectorfs.search_items")
	defer span.End()
	span.SetAttributes(
		attribute.String("vfs.profile", r.profile.String()),
		attribute.String("vfs.path", r.path.String()),
		attribute.Int("k", k))
	defer recordSearch("items", time.Now())

	out, err := v.searchHeaders(ctx, r, query, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "item search failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// VectorSearchFSItem is VectorSearchFSItemWithScore without the scores.
func (v *VectorFS) VectorSearchFSItem(ctx context.Context, r *Reader, query resource.Embedding, k int) ([]FSItem, error) {
	scored, err := v.VectorSearchFSItemWithScore(ctx, r, query, k)
	if err != nil {
		return nil, err
	}
	items := make([]FSItem, len(scored))
	for i, s := range scored {
		items[i] = s.Item
	}
	return items, nil
}

// VectorSearchVRHeader returns the headers of the k most similar items.
func (v *VectorFS) VectorSearchVRHeader(ctx context.Context, r *Reader, query resource.Embedding, k int) ([]resource.VRHeader, error) {
	defer recordSearch("vr_header", time.Now())
	if k <= 0 {
		return nil, nil
	}
	var out []resource.VRHeader
	err := v.view(r.profile, func(in *Internals) error {
		results, err := vectorSearchCore(in, r, query, k, resource.Exhaustive, nil, resource.SearchModeDefault)
		if err != nil {
			return err
		}
		for _, ret := range results {
			if ret.Node.Kind == resource.ContentVRHeader && ret.Node.Header != nil {
				out = append(out, ret.Node.Header.Clone())
			}
		}
		return nil
	})
	return out, err
}

// itemReaders re-checks read access on each item. Items that are no longer
// readable are dropped.
func (v *VectorFS) itemReaders(ctx context.Context, r *Reader, items []FSItem) []*Reader {
	readers := make([]*Reader, 0, len(items))
	for _, item := range items {
		ir, err := r.itemReader(ctx, item.Path)
		if err != nil {
			continue
		}
		readers = append(readers, ir)
	}
	return readers
}

// VectorSearchVectorResource loads the resources of the k most similar items.
func (v *VectorFS) VectorSearchVectorResource(ctx context.Context, r *Reader, query resource.Embedding, k int) ([]resource.VectorResource, error) {
	items, err := v.VectorSearchFSItem(ctx, r, query, k)
	if err != nil {
		return nil, err
	}
	var out []resource.VectorResource
	for _, ir := range v.itemReaders(ctx, r, items) {
		if vr, err := v.RetrieveVectorResource(ctx, ir); err == nil {
			out = append(out, vr)
		}
	}
	return out, nil
}

// VectorSearchVRKai loads the resource bundles of the k most similar items.
func (v *VectorFS) VectorSearchVRKai(ctx context.Context, r *Reader, query resource.Embedding, k int) ([]VRKai, error) {
	items, err := v.VectorSearchFSItem(ctx, r, query, k)
	if err != nil {
		return nil, err
	}
	var out []VRKai
	for _, ir := range v.itemReaders(ctx, r, items) {
		if kai, err := v.RetrieveVRKai(ctx, ir); err == nil {
			out = append(out, kai)
		}
	}
	return out, nil
}

// VectorSearchSourceFileMap loads the source file maps of the k most similar
// items. Items without one are skipped.
func (v *VectorFS) VectorSearchSourceFileMap(ctx context.Context, r *Reader, query resource.Embedding, k int) ([]*SourceFileMap, error) {
	items, err := v.VectorSearchFSItem(ctx, r, query, k)
	if err != nil {
		return nil, err
	}
	var out []*SourceFileMap
	for _, ir := range v.itemReaders(ctx, r, items) {
		if sfm, err := v.RetrieveSourceFileMap(ctx, ir); err == nil {
			out = append(out, sfm)
		}
	}
	return out, nil
}

// DeepVectorSearch runs DeepVectorSearchCustomized with hierarchical scoring
// inside items and averaged scores.
func (v *VectorFS) DeepVectorSearch(ctx context.Context, r *Reader, queryText string, nItems, nResults int, mode resource.SearchMode) ([]FSRetrievedNode, error) {
	opts := []resource.TraversalOption{resource.SetScoringMode(resource.HierarchicalAverageScoring)}
	return v.DeepVectorSearchCustomized(ctx, r, queryText, nItems, nResults, opts, true, mode)
}

// DeepVectorSearchCustomized finds the nItems items most similar to queryText,
// searches inside each of them for nResults nodes and returns the best
// nResults nodes of the pool. With averageScores each node score is blended
// with the score of the item it came from. opts only apply inside items.
// nItems or nResults <= 0 returns no nodes.
func (v *VectorFS) DeepVectorSearchCustomized(
	ctx context.Context,
	r *Reader,
	queryText string,
	nItems, nResults int,
	opts []resource.TraversalOption,
	averageScores bool,
	mode resource.SearchMode,
) (_ []FSRetrievedNode, err error) {
	ctx, span := v.tracer.Start(ctx, "vectorfs.deep_search")
	defer span.End()
	span.SetAttributes(
		attribute.String("vfs.profile", r.profile.String()),
		attribute.String("vfs.path", r.path.String()),
		attribute.Int("n_items", nItems),
		attribute.Int("n_results", nResults))
	defer recordSearch("deep", time.Now())
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "deep search failed")
		}
	}()

	if nItems <= 0 || nResults <= 0 {
		return nil, nil
	}
	query, err := v.GenerateQueryEmbedding(ctx, queryText)
	if err != nil {
		return nil, err
	}
	items, err := v.searchHeaders(ctx, r, query, nItems)
	if err != nil {
		return nil, err
	}

	type itemResults struct {
		ref     string
		path    resource.VRPath
		results []resource.RetrievedNode
	}
	found := make([]*itemResults, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deepSearchConcurrency)
	for i, scored := range items {
		g.Go(func() error {
			ir, err := r.itemReader(gctx, scored.Item.Path)
			if err != nil {
				return nil
			}
			vr, err := v.RetrieveVectorResource(gctx, ir)
			if err != nil {
				v.logger.Debug("deep search skipped item",
					zap.String("vfs.profile", r.profile.String()),
					zap.String("path", scored.Item.Path.String()),
					zap.Error(err))
				return nil
			}
			results := resource.VectorSearchCustomized(vr, query, nResults, resource.Exhaustive, opts, resource.Root())
			results = resource.ApplySearchMode(vr, results, mode)
			if averageScores {
				for j := range results {
					results[j].Score = resource.DeepSearchScoresAverageOut(
						queryText, scored.Score, vr.Description(), results[j].Score, results[j].Node.Text)
				}
			}
			found[i] = &itemResults{ref: vr.ReferenceString(), path: scored.Item.Path, results: results}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	paths := make(map[string]resource.VRPath, len(found))
	var pool []resource.RetrievedNode
	for _, f := range found {
		if f == nil {
			continue
		}
		paths[f.ref] = f.path
		pool = append(pool, f.results...)
	}

	resource.NormalizeScores(pool)
	sorted := resource.SortByScore(pool, nResults)
	out := make([]FSRetrievedNode, 0, len(sorted))
	for _, n := range sorted {
		p, ok := paths[n.ResourceHeader.ReferenceString()]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrFailedGettingFSPathOfRetrievedNode, n.ResourceHeader.ReferenceString())
		}
		out = append(out, FSRetrievedNode{ItemPath: p, Node: n})
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}
