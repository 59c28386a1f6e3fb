package domain

// HierarchyEntry is one record from the classification reference file.
// Code and Indent place the entry in its chapter tree; the tariff columns
// are carried through for display but never interpreted.
type HierarchyEntry struct {
	Code        string `json:"code"`
	Indent      int    `json:"indent"`
	Description string `json:"description"`
	Units       string `json:"units,omitempty"`
	General     string `json:"general,omitempty"`
	Special     string `json:"special,omitempty"`
	Other       string `json:"other,omitempty"`
}

// HierarchyNode is an entry linked into the tree. Links are code keys into
// the owning node map, never pointers between nodes.
type HierarchyNode struct {
	Entry      HierarchyEntry `json:"entry"`
	ParentCode string         `json:"parent,omitempty"`   // empty for roots and orphans
	ChildCodes []string       `json:"children,omitempty"` // insertion order
}

// PathStep is one level of a root-to-leaf classification path.
type PathStep struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Indent      int    `json:"indent"`
}

// ContextResult is the outcome of a single classification lookup.
type ContextResult struct {
	Code  string     `json:"code"`
	Found bool       `json:"found"`
	Path  []PathStep `json:"path,omitempty"`
	Error string     `json:"error,omitempty"`
}

// MatchCounts tallies how parent links were resolved while building the tree.
type MatchCounts struct {
	Prefix   int `json:"prefixMatches"`
	Fallback int `json:"fallbackMatches"`
	Failed   int `json:"failed"`
}

// HierarchyStatistics summarizes a built hierarchy.
type HierarchyStatistics struct {
	TotalCodes         int         `json:"totalCodes"`
	IndentDistribution map[int]int `json:"indentDistribution"`
	OrphanedCodes      []string    `json:"orphanedCodes"`
	MatchCounts        MatchCounts `json:"matchCounts"`
}
