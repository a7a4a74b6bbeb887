package resource

import (
	"fmt"
)

// descend walks parent through every id of p, requiring each node on the way
// to hold a resource. It returns the resource found at p and the nodes visited.
func descend(root VectorResource, p VRPath) (VectorResource, []*Node, error) {
	cur := root
	var chain []*Node
	for _, id := range p.ids {
		ref, _, err := cur.nodeRef(id)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalidVRPath, p, err)
		}
		if ref.Kind != ContentResource || ref.Resource == nil {
			return nil, nil, fmt.Errorf("%w: %s: node %s is not a resource", ErrInvalidVRPath, p, id)
		}
		chain = append(chain, ref)
		cur = ref.Resource
	}
	return cur, chain, nil
}

// touch marks every node and resource along a mutated path as written.
func touch(root VectorResource, chain []*Node) {
	t := now()
	root.SetLastWrittenDatetime(t)
	for _, n := range chain {
		n.LastWritten = t
		n.Resource.SetLastWrittenDatetime(t)
	}
}

// RetrieveNodeAndEmbeddingAtPath returns the node at p and its embedding. When
// query is non-nil the node is scored against it.
func RetrieveNodeAndEmbeddingAtPath(vr VectorResource, p VRPath, query *Embedding) (RetrievedNode, Embedding, error) {
	if p.IsRoot() {
		return RetrievedNode{}, Embedding{}, fmt.Errorf("%w: root has no node", ErrInvalidVRPath)
	}
	parent, _, err := descend(vr, p.Parent())
	if err != nil {
		return RetrievedNode{}, Embedding{}, err
	}
	id, _ := p.LastID()
	node, err := parent.GetNode(id)
	if err != nil {
		return RetrievedNode{}, Embedding{}, fmt.Errorf("%w: %s: %v", ErrInvalidVRPath, p, err)
	}
	emb, err := parent.GetNodeEmbedding(id)
	if err != nil {
		return RetrievedNode{}, Embedding{}, fmt.Errorf("%w: %s: %v", ErrInvalidVRPath, p, err)
	}
	ret := RetrievedNode{Node: node, ResourceHeader: vr.Header(), RetrievalPath: p}
	if query != nil {
		ret.Score = query.ScoreSimilarity(emb)
	}
	return ret, emb, nil
}

// RetrieveNodeAtPath returns the node at p.
func RetrieveNodeAtPath(vr VectorResource, p VRPath) (RetrievedNode, error) {
	ret, _, err := RetrieveNodeAndEmbeddingAtPath(vr, p, nil)
	return ret, err
}

// RetrieveEmbeddingAtPath returns the embedding of the node at p.
func RetrieveEmbeddingAtPath(vr VectorResource, p VRPath) (Embedding, error) {
	_, emb, err := RetrieveNodeAndEmbeddingAtPath(vr, p, nil)
	return emb, err
}

// RetrieveResourceAtPath returns the resource at p. The root path yields vr.
func RetrieveResourceAtPath(vr VectorResource, p VRPath) (VectorResource, error) {
	res, _, err := descend(vr, p)
	return res, err
}

// CheckNodeExistsAtPath reports whether p resolves to a node.
func CheckNodeExistsAtPath(vr VectorResource, p VRPath) bool {
	_, err := RetrieveNodeAtPath(vr, p)
	return err == nil
}

// ProximityRetrieveNodesAtPath returns the node at p and up to window ordered
// siblings on each side. Nodes are scored against query when it is non-nil and
// otherwise carry 0.
func ProximityRetrieveNodesAtPath(vr VectorResource, p VRPath, window int, query *Embedding) ([]RetrievedNode, error) {
	if p.IsRoot() {
		return nil, fmt.Errorf("%w: root has no node", ErrInvalidVRPath)
	}
	parent, _, err := descend(vr, p.Parent())
	if err != nil {
		return nil, err
	}
	ordered, ok := parent.(OrderedResource)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderedOperationsUnsupported, parent.ReferenceString())
	}
	id, _ := p.LastID()
	nodes, embs, err := ordered.NodeProximity(id, window)
	if err != nil {
		return nil, err
	}
	header := vr.Header()
	out := make([]RetrievedNode, 0, len(nodes))
	for i, n := range nodes {
		ret := RetrievedNode{Node: n, ResourceHeader: header, RetrievalPath: p.Parent().Push(n.ID)}
		if query != nil {
			ret.Score = query.ScoreSimilarity(embs[i])
		}
		out = append(out, ret)
	}
	return out, nil
}

// MutateNodeAtPath applies fn to a copy of the node at p and its embedding and
// stores the result. Nothing changes if the path is invalid or fn fails.
func MutateNodeAtPath(vr VectorResource, p VRPath, fn func(n *Node, e *Embedding) error) error {
	if p.IsRoot() {
		return fmt.Errorf("%w: root has no node", ErrInvalidVRPath)
	}
	parent, chain, err := descend(vr, p.Parent())
	if err != nil {
		return err
	}
	id, _ := p.LastID()
	ref, embRef, err := parent.nodeRef(id)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidVRPath, p, err)
	}
	n, e := ref.Clone(), embRef.Clone()
	if err := fn(&n, &e); err != nil {
		return err
	}
	if _, _, err := parent.ReplaceNode(id, n, e); err != nil {
		return err
	}
	touch(vr, chain)
	return nil
}

// ReplaceNodeAtPath swaps the node at p, returning the old node and embedding.
func ReplaceNodeAtPath(vr VectorResource, p VRPath, n Node, e Embedding) (Node, Embedding, error) {
	if p.IsRoot() {
		return Node{}, Embedding{}, fmt.Errorf("%w: root has no node", ErrInvalidVRPath)
	}
	parent, chain, err := descend(vr, p.Parent())
	if err != nil {
		return Node{}, Embedding{}, err
	}
	id, _ := p.LastID()
	oldNode, oldEmb, err := parent.ReplaceNode(id, n, e)
	if err != nil {
		return Node{}, Embedding{}, fmt.Errorf("%w: %s: %v", ErrInvalidVRPath, p, err)
	}
	touch(vr, chain)
	return oldNode, oldEmb, nil
}

// RemoveNodeAtPath removes the node at p.
func RemoveNodeAtPath(vr VectorResource, p VRPath) (Node, Embedding, error) {
	if p.IsRoot() {
		return Node{}, Embedding{}, fmt.Errorf("%w: root has no node", ErrInvalidVRPath)
	}
	parent, chain, err := descend(vr, p.Parent())
	if err != nil {
		return Node{}, Embedding{}, err
	}
	id, _ := p.LastID()
	oldNode, oldEmb, err := parent.RemoveNode(id)
	if err != nil {
		return Node{}, Embedding{}, fmt.Errorf("%w: %s: %v", ErrInvalidVRPath, p, err)
	}
	touch(vr, chain)
	return oldNode, oldEmb, nil
}

// InsertNodeAtPath inserts n with the given id inside the resource at parentPath.
func InsertNodeAtPath(vr VectorResource, parentPath VRPath, id string, n Node, e Embedding) error {
	parent, chain, err := descend(vr, parentPath)
	if err != nil {
		return err
	}
	if err := parent.InsertNode(id, n, e); err != nil {
		return err
	}
	touch(vr, chain)
	return nil
}

// AppendNodeAtPath appends n to the ordered resource at parentPath.
func AppendNodeAtPath(vr VectorResource, parentPath VRPath, n Node, e Embedding) error {
	parent, chain, err := descend(vr, parentPath)
	if err != nil {
		return err
	}
	ordered, ok := parent.(OrderedResource)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderedOperationsUnsupported, parent.ReferenceString())
	}
	if err := ordered.InsertNode(ordered.NextNodeID(), n, e); err != nil {
		return err
	}
	touch(vr, chain)
	return nil
}

// PopNodeAtPath removes the last node of the ordered resource at parentPath.
func PopNodeAtPath(vr VectorResource, parentPath VRPath) (Node, Embedding, error) {
	parent, _, err := descend(vr, parentPath)
	if err != nil {
		return Node{}, Embedding{}, err
	}
	ordered, ok := parent.(OrderedResource)
	if !ok {
		return Node{}, Embedding{}, fmt.Errorf("%w: %s", ErrOrderedOperationsUnsupported, parent.ReferenceString())
	}
	id, ok := ordered.LastNodeID()
	if !ok {
		return Node{}, Embedding{}, fmt.Errorf("%w: last node id not found", ErrInvalidNodeID)
	}
	return RemoveNodeAtPath(vr, parentPath.Push(id))
}

// MetadataSearch scans every node in the tree and returns those whose metadata
// holds key with exactly value.
func MetadataSearch(vr VectorResource, key, value string) ([]RetrievedNode, error) {
	var out []RetrievedNode
	for _, ret := range RetrieveNodesExhaustive(vr, Root()) {
		if v, ok := ret.Node.Metadata[key]; ok && v == value {
			out = append(out, ret)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: metadata %s=%s", ErrNoNodeFound, key, value)
	}
	return out, nil
}
