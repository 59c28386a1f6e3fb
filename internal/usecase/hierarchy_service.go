package usecase

import (
	"encoding/json"
	"io"

	"go.uber.org/zap"

	"github.com/tradelens/backend/internal/domain"
)

// HierarchyService answers classification lookups against a loaded
// reference tree. It is read-only after construction and safe for
// concurrent use.
type HierarchyService struct {
	nodes   map[string]*domain.HierarchyNode
	orphans []string
	counts  domain.MatchCounts
	log     *zap.Logger
}

// NewHierarchyService loads the reference file at path and links it into a
// tree. Load and validation failures abort construction.
func NewHierarchyService(path string, log *zap.Logger) (*HierarchyService, error) {
	entries, err := LoadEntries(path, log)
	if err != nil {
		return nil, err
	}
	return NewHierarchyServiceFromEntries(entries, log), nil
}

// NewHierarchyServiceFromEntries links already-loaded entries into a tree.
func NewHierarchyServiceFromEntries(entries []domain.HierarchyEntry, log *zap.Logger) *HierarchyService {
	if log == nil {
		log = zap.NewNop()
	}
	b := NewBuilder(log)
	nodes := b.Build(entries)
	log.Info("hierarchy service ready", zap.Int("codes", len(nodes)))
	return &HierarchyService{
		nodes:   nodes,
		orphans: b.Orphans(),
		counts:  b.Counts(),
		log:     log,
	}
}

// Context resolves the root-to-leaf path for a code. Paths are computed on
// every call, never cached. A revisited code during the parent walk means
// the map is cyclic; the walk aborts with an error rather than looping.
func (s *HierarchyService) Context(code string) domain.ContextResult {
	if _, ok := s.nodes[code]; !ok {
		s.log.Debug("classification code not found", zap.String("code", code))
		return domain.ContextResult{
			Code:  code,
			Found: false,
			Error: "code not found in reference data",
		}
	}

	var path []domain.PathStep
	visited := make(map[string]struct{})
	for current := code; current != ""; {
		if _, seen := visited[current]; seen {
			s.log.Error("hierarchy cycle detected",
				zap.String("code", code),
				zap.String("at", current))
			return domain.ContextResult{
				Code:  code,
				Found: false,
				Error: "hierarchy cycle detected at " + current,
			}
		}
		visited[current] = struct{}{}

		node, ok := s.nodes[current]
		if !ok {
			s.log.Error("dangling parent link",
				zap.String("code", code),
				zap.String("parent", current))
			return domain.ContextResult{
				Code:  code,
				Found: false,
				Error: "dangling parent link: " + current,
			}
		}
		path = append(path, domain.PathStep{
			Code:        current,
			Description: node.Entry.Description,
			Indent:      node.Entry.Indent,
		})
		current = node.ParentCode
	}

	// Root first.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	s.log.Debug("context resolved",
		zap.String("code", code),
		zap.Int("levels", len(path)))
	return domain.ContextResult{Code: code, Found: true, Path: path}
}

// Exists reports whether a code is present in the reference data.
func (s *HierarchyService) Exists(code string) bool {
	_, ok := s.nodes[code]
	return ok
}

// Statistics summarizes the loaded tree.
func (s *HierarchyService) Statistics() domain.HierarchyStatistics {
	dist := make(map[int]int)
	for _, node := range s.nodes {
		dist[node.Entry.Indent]++
	}
	return domain.HierarchyStatistics{
		TotalCodes:         len(s.nodes),
		IndentDistribution: dist,
		OrphanedCodes:      s.orphans,
		MatchCounts:        s.counts,
	}
}

// ExportMap writes the full node map as indented JSON, for offline
// inspection of how codes were linked.
func (s *HierarchyService) ExportMap(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.nodes)
}
