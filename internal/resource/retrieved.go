package resource

import (
	"sort"
)

// RetrievedNode is a node returned by a search, with the header of the
// resource it was found in and its absolute path.
type RetrievedNode struct {
	Node             Node     `json:"node"`
	Score            float32  `json:"score"`
	ResourceHeader   VRHeader `json:"resource_header"`
	RetrievalPath    VRPath   `json:"retrieval_path"`
	ProximityGroupID string   `json:"proximity_group_id,omitempty"`
}

// SortByScore returns a copy sorted by descending score, truncated to k.
// k < 0 keeps every node. Equal scores keep their input order.
func SortByScore(nodes []RetrievedNode, k int) []RetrievedNode {
	if k == 0 {
		return nil
	}
	out := make([]RetrievedNode, len(nodes))
	copy(out, nodes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// NormalizeScores scales each score by the normalization factor of the model
// that produced it. Results from a single model are left untouched.
func NormalizeScores(nodes []RetrievedNode) {
	if len(nodes) == 0 {
		return
	}
	first := nodes[0].ResourceHeader.ResourceEmbeddingModelUsed
	mixed := false
	for _, n := range nodes[1:] {
		if n.ResourceHeader.ResourceEmbeddingModelUsed != first {
			mixed = true
			break
		}
	}
	if !mixed {
		return
	}
	for i := range nodes {
		nodes[i].Score *= nodes[i].ResourceHeader.ResourceEmbeddingModelUsed.NormalizationFactor()
	}
}

// GroupByProximity groups results that share a ProximityGroupID, keeping the
// order in which groups first appear. Results without a group stand alone.
func GroupByProximity(nodes []RetrievedNode) [][]RetrievedNode {
	var groups [][]RetrievedNode
	index := make(map[string]int)
	for _, n := range nodes {
		if n.ProximityGroupID == "" {
			groups = append(groups, []RetrievedNode{n})
			continue
		}
		if i, ok := index[n.ProximityGroupID]; ok {
			groups[i] = append(groups[i], n)
			continue
		}
		index[n.ProximityGroupID] = len(groups)
		groups = append(groups, []RetrievedNode{n})
	}
	return groups
}

// DeepSearchScoresAverageOut blends a node score found inside a resource with
// the resource's own search score. The resource adds at most 0.2.
func DeepSearchScoresAverageOut(queryText string, resourceScore float32, resourceDescription string, nodeScore float32, nodeText string) float32 {
	adjusted := resourceScore * hierarchicalWeight
	if adjusted > 0.2 {
		adjusted = 0.2
	}
	return nodeScore + adjusted
}
