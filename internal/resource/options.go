package resource

// TraversalMethod selects how a search moves through nested resources.
type TraversalMethod int

const (
	// Exhaustive scores every node at every level.
	Exhaustive TraversalMethod = iota
	// Efficient scores only the top k nodes at each level before descending.
	Efficient
	// UnscoredAllNodes returns every node with score 0, resources before
	// their children, and never truncates.
	UnscoredAllNodes
)

func (m TraversalMethod) String() string {
	switch m {
	case Exhaustive:
		return "exhaustive"
	case Efficient:
		return "efficient"
	case UnscoredAllNodes:
		return "unscored_all_nodes"
	default:
		return "unknown"
	}
}

// ScoringMode alters how node scores are computed.
type ScoringMode int

const (
	// HierarchicalAverageScoring blends a node score with the scores of the
	// resources above it.
	HierarchicalAverageScoring ScoringMode = iota + 1
)

// FilterKind selects how FilterMode metadata pairs are matched.
type FilterKind int

const (
	ContainsAnyMetadataKeyValues FilterKind = iota
	ContainsAllMetadataKeyValues
)

// KeyValue is a metadata key with an optional value. An empty value matches
// any value for the key.
type KeyValue struct {
	Key   string
	Value string
}

// ValidationFunc decides whether traversal may descend into the resource node
// at path. ctx carries caller state such as an exported permission map.
type ValidationFunc func(n Node, path VRPath, ctx map[string]string) bool

// TraversalOption customizes a search. Implementations are the option types
// declared in this file.
type TraversalOption interface {
	traversalOption()
}

// ToleranceRange keeps results within top*(1-Range) of the top score.
type ToleranceRange float32

// MinimumScore drops results scoring below the value.
type MinimumScore float32

// UntilDepth stops descending below the given depth and returns the resource
// nodes found there instead.
type UntilDepth int

// LimitTraversalToType only descends into resources of the given base type.
type LimitTraversalToType BaseType

// LimitTraversalByValidation only descends into resource nodes accepted by Func.
type LimitTraversalByValidation struct {
	Func    ValidationFunc
	Context map[string]string
}

// FilterMode drops nodes whose metadata does not match Pairs.
type FilterMode struct {
	Kind  FilterKind
	Pairs []KeyValue
}

// SyntacticPrefilter scores only nodes carrying at least one of the data tags.
type SyntacticPrefilter struct {
	TagNames []string
}

// ProximityResults expands each of the top TopResults results with Window
// ordered siblings on each side.
type ProximityResults struct {
	Window     int
	TopResults int
}

// SetScoringMode selects a ScoringMode.
type SetScoringMode ScoringMode

func (ToleranceRange) traversalOption()             {}
func (MinimumScore) traversalOption()               {}
func (UntilDepth) traversalOption()                 {}
func (LimitTraversalToType) traversalOption()       {}
func (LimitTraversalByValidation) traversalOption() {}
func (FilterMode) traversalOption()                 {}
func (SyntacticPrefilter) traversalOption()         {}
func (ProximityResults) traversalOption()           {}
func (SetScoringMode) traversalOption()             {}

// IsTraversalLimiting reports whether o restricts which resources are entered.
func IsTraversalLimiting(o TraversalOption) bool {
	switch o.(type) {
	case LimitTraversalToType, LimitTraversalByValidation:
		return true
	}
	return false
}

// IsScoringMode reports whether o sets a scoring mode.
func IsScoringMode(o TraversalOption) bool {
	_, ok := o.(SetScoringMode)
	return ok
}

type options []TraversalOption

func (o options) tolerance() (float32, bool) {
	for _, opt := range o {
		if v, ok := opt.(ToleranceRange); ok {
			return float32(v), true
		}
	}
	return 0, false
}

func (o options) minimumScore() (float32, bool) {
	for _, opt := range o {
		if v, ok := opt.(MinimumScore); ok {
			return float32(v), true
		}
	}
	return 0, false
}

func (o options) untilDepth() (int, bool) {
	for _, opt := range o {
		if v, ok := opt.(UntilDepth); ok {
			return int(v), true
		}
	}
	return 0, false
}

func (o options) limitToType() (BaseType, bool) {
	for _, opt := range o {
		if v, ok := opt.(LimitTraversalToType); ok {
			return BaseType(v), true
		}
	}
	return "", false
}

func (o options) validation() (LimitTraversalByValidation, bool) {
	for _, opt := range o {
		if v, ok := opt.(LimitTraversalByValidation); ok && v.Func != nil {
			return v, true
		}
	}
	return LimitTraversalByValidation{}, false
}

func (o options) filter() (FilterMode, bool) {
	for _, opt := range o {
		if v, ok := opt.(FilterMode); ok {
			return v, true
		}
	}
	return FilterMode{}, false
}

func (o options) prefilter() (SyntacticPrefilter, bool) {
	for _, opt := range o {
		if v, ok := opt.(SyntacticPrefilter); ok {
			return v, true
		}
	}
	return SyntacticPrefilter{}, false
}

func (o options) proximity() (ProximityResults, bool) {
	for _, opt := range o {
		if v, ok := opt.(ProximityResults); ok {
			return v, true
		}
	}
	return ProximityResults{}, false
}

func (o options) hierarchical() bool {
	for _, opt := range o {
		if v, ok := opt.(SetScoringMode); ok {
			return ScoringMode(v) == HierarchicalAverageScoring
		}
	}
	return false
}

func (f FilterMode) matches(n Node) bool {
	match := func(kv KeyValue) bool {
		v, ok := n.Metadata[kv.Key]
		return ok && (kv.Value == "" || v == kv.Value)
	}
	switch f.Kind {
	case ContainsAllMetadataKeyValues:
		for _, kv := range f.Pairs {
			if !match(kv) {
				return false
			}
		}
		return true
	default:
		for _, kv := range f.Pairs {
			if match(kv) {
				return true
			}
		}
		return false
	}
}
