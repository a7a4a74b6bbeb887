package resource

import (
	"strconv"
	"strings"
)

// hierarchicalWeight is the share of a node score taken from the resources above it.
const hierarchicalWeight = 0.2

// VectorSearch runs an exhaustive search with hierarchical average scoring.
func VectorSearch(vr VectorResource, query Embedding, k int) []RetrievedNode {
	return VectorSearchCustomized(vr, query, k, Exhaustive,
		[]TraversalOption{SetScoringMode(HierarchicalAverageScoring)}, Root())
}

// SyntacticVectorSearch scores only nodes tagged with one of tagNames.
func SyntacticVectorSearch(vr VectorResource, query Embedding, k int, tagNames []string) []RetrievedNode {
	return VectorSearchCustomized(vr, query, k, Exhaustive, []TraversalOption{
		SetScoringMode(HierarchicalAverageScoring),
		SyntacticPrefilter{TagNames: tagNames},
	}, Root())
}

// RetrieveNodesExhaustive returns every node under start, resources first.
func RetrieveNodesExhaustive(vr VectorResource, start VRPath) []RetrievedNode {
	return VectorSearchCustomized(vr, EmptyEmbedding(), 0, UnscoredAllNodes, nil, start)
}

// RetrieveNodesOfKind returns every node of kind under start.
func RetrieveNodesOfKind(vr VectorResource, start VRPath, kind ContentKind) []RetrievedNode {
	var out []RetrievedNode
	for _, ret := range RetrieveNodesExhaustive(vr, start) {
		if ret.Node.Kind == kind {
			out = append(out, ret)
		}
	}
	return out
}

// VectorSearchCustomized searches vr for the k nodes most similar to query.
// k == 0 returns nothing and k < 0 returns every result. A non-root start
// searches inside the resource found at that path; retrieval paths remain
// absolute. A start that does not lead to a resource returns nothing. Every
// result carries vr's header.
func VectorSearchCustomized(vr VectorResource, query Embedding, k int, method TraversalMethod, opts []TraversalOption, start VRPath) []RetrievedNode {
	if k == 0 && method != UnscoredAllNodes {
		return nil
	}
	o := options(opts)
	header := vr.Header()

	target, basePath := vr, Root()
	if !start.IsRoot() {
		ret, err := RetrieveNodeAtPath(vr, start)
		if err != nil || ret.Node.Kind != ContentResource || ret.Node.Resource == nil {
			return nil
		}
		target, basePath = ret.Node.Resource, start
	}
	results := searchLevel(target, query, k, method, o, nil, basePath, header)

	if tol, ok := o.tolerance(); ok {
		results = toleranceRange(tol, results)
	}
	if minScore, ok := o.minimumScore(); ok {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= minScore {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	if prox, ok := o.proximity(); ok {
		results = expandProximity(vr, query, results, prox, header)
	}
	if method != UnscoredAllNodes && k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// searchLevel scores the root nodes of vr and descends into nested resources.
func searchLevel(vr VectorResource, query Embedding, k int, method TraversalMethod, o options, parentScores []float32, path VRPath, header VRHeader) []RetrievedNode {
	var candidates []Embedding
	if pre, ok := o.prefilter(); ok {
		seen := make(map[string]bool)
		for _, name := range pre.TagNames {
			for _, id := range vr.DataTagIndex().NodeIDs(name) {
				if seen[id] {
					continue
				}
				seen[id] = true
				if e, err := vr.GetNodeEmbedding(id); err == nil {
					candidates = append(candidates, e)
				}
			}
		}
	} else {
		candidates = vr.Embeddings()
	}

	var scores []Score
	switch method {
	case Exhaustive:
		scores = query.ScoreSimilarities(candidates, 0)
	case UnscoredAllNodes:
		scores = make([]Score, 0, len(candidates))
		for _, c := range candidates {
			scores = append(scores, Score{ID: c.ID})
		}
	default:
		scores = query.ScoreSimilarities(candidates, k)
	}

	filter, hasFilter := o.filter()
	var results []RetrievedNode
	resourceCount := 0
	for _, s := range scores {
		node, err := vr.GetNode(s.ID)
		if err != nil {
			continue
		}
		if hasFilter && !filter.matches(node) {
			continue
		}
		nodePath := path.Push(node.ID)
		if node.Kind == ContentResource && node.Resource != nil {
			resourceCount++
			skip := false
			if d, ok := o.untilDepth(); ok && d == path.DepthInclusive() {
				results = append(results, RetrievedNode{Node: node, Score: s.Value, ResourceHeader: header, RetrievalPath: nodePath})
				skip = true
			}
			if bt, ok := o.limitToType(); ok && node.Resource.BaseType() != bt {
				skip = true
			}
			if v, ok := o.validation(); ok && !v.Func(node, nodePath, v.Context) {
				skip = true
			}
			if skip {
				continue
			}
		}
		results = append(results, extract(node, s.Value, query, k, method, o, parentScores, nodePath, header)...)
	}

	if resourceCount > 0 && method != UnscoredAllNodes {
		return SortByScore(results, k)
	}
	return results
}

// extract returns node itself, or when it holds a resource, the results found
// inside it.
func extract(node Node, score float32, query Embedding, k int, method TraversalMethod, o options, parentScores []float32, nodePath VRPath, header VRHeader) []RetrievedNode {
	if node.Kind == ContentResource && node.Resource != nil {
		scores := append(append([]float32(nil), parentScores...), score)
		inner := searchLevel(node.Resource, query, k, method, o, scores, nodePath, header)
		if method == UnscoredAllNodes {
			return append([]RetrievedNode{{Node: node, Score: score, ResourceHeader: header, RetrievalPath: nodePath}}, inner...)
		}
		return inner
	}
	if o.hierarchical() {
		score = hierarchicalScore(score, parentScores)
	}
	return []RetrievedNode{{Node: node, Score: score, ResourceHeader: header, RetrievalPath: nodePath}}
}

// hierarchicalScore blends score with the mean of parents.
func hierarchicalScore(score float32, parents []float32) float32 {
	if len(parents) == 0 {
		return score
	}
	var sum float32
	for _, p := range parents {
		sum += p
	}
	if sum <= 0 {
		return score
	}
	return score*(1-hierarchicalWeight) + (sum/float32(len(parents)))*hierarchicalWeight
}

// toleranceRange keeps results scoring within top*(1-tol) and top.
func toleranceRange(tol float32, results []RetrievedNode) []RetrievedNode {
	if len(results) == 0 {
		return results
	}
	if tol < 0 {
		tol = 0
	} else if tol > 1 {
		tol = 1
	}
	top := results[0].Score
	lower := top * (1 - tol)
	var out []RetrievedNode
	for _, r := range results {
		if r.Score >= lower && r.Score <= top {
			out = append(out, r)
		}
	}
	return out
}

// expandProximity replaces the top results with their proximity windows,
// numbering each group and never repeating a path.
func expandProximity(vr VectorResource, query Embedding, results []RetrievedNode, prox ProximityResults, header VRHeader) []RetrievedNode {
	checked := make(map[string]bool)
	var out []RetrievedNode
	added := 0
	for _, top := range results {
		if added >= prox.TopResults {
			break
		}
		if checked[top.RetrievalPath.String()] {
			continue
		}
		window, err := ProximityRetrieveNodesAtPath(vr, top.RetrievalPath, prox.Window, &query)
		if err != nil {
			out = append(out, top)
			continue
		}
		group := strconv.Itoa(added)
		for _, r := range window {
			if r.RetrievalPath.Equal(top.RetrievalPath) {
				r = top
			}
			key := r.RetrievalPath.String()
			if checked[key] {
				continue
			}
			checked[key] = true
			r.ResourceHeader = header
			r.ProximityGroupID = group
			out = append(out, r)
		}
		added++
	}
	return out
}

// ProximitySearch finds the best match among the root nodes of an ordered
// resource and returns it with up to window siblings on each side, all
// scored 0.
func ProximitySearch(vr VectorResource, query Embedding, window int) ([]RetrievedNode, error) {
	top := VectorSearchCustomized(vr, query, 1, Exhaustive, []TraversalOption{UntilDepth(0)}, Root())
	if len(top) == 0 {
		return nil, nil
	}
	return ProximityRetrieveNodesAtPath(vr, top[0].RetrievalPath, window, nil)
}

// SearchMode post-processes results for prompt building.
type SearchMode string

const (
	SearchModeDefault       SearchMode = ""
	SearchModeFillUpTo25k   SearchMode = "fill_up_to_25k"
	SearchModeMergeSiblings SearchMode = "merge_siblings"
)

const (
	fillTokenBudget = 25000
	charsPerToken   = 4
	mergeWindow     = 3
)

// ApplySearchMode adjusts results from vr according to mode.
// FillUpTo25k keeps results in order until their text exceeds roughly 25k
// tokens. MergeSiblings folds the text of up to three ordered siblings on each
// side into every text result.
func ApplySearchMode(vr VectorResource, results []RetrievedNode, mode SearchMode) []RetrievedNode {
	switch mode {
	case SearchModeFillUpTo25k:
		budget := fillTokenBudget * charsPerToken
		var out []RetrievedNode
		for _, r := range results {
			size := len(r.Node.Text)
			if len(out) > 0 && size > budget {
				break
			}
			budget -= size
			out = append(out, r)
		}
		return out
	case SearchModeMergeSiblings:
		out := make([]RetrievedNode, 0, len(results))
		for _, r := range results {
			if r.Node.Kind != ContentText {
				out = append(out, r)
				continue
			}
			window, err := ProximityRetrieveNodesAtPath(vr, r.RetrievalPath, mergeWindow, nil)
			if err != nil {
				out = append(out, r)
				continue
			}
			var parts []string
			for _, w := range window {
				if w.Node.Kind == ContentText {
					parts = append(parts, w.Node.Text)
				}
			}
			merged := r
			merged.Node = r.Node.Clone()
			merged.Node.Text = strings.Join(parts, "\n")
			out = append(out, merged)
		}
		return out
	default:
		return results
	}
}
