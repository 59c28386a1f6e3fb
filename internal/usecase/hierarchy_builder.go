package usecase

import (
	"strings"

	"go.uber.org/zap"

	"github.com/tradelens/backend/internal/domain"
)

// Builder links loaded entries into a parent-child tree. The result is a
// flat map keyed by code; nodes reference each other by code, never by
// pointer, so the map serializes cleanly and has no ownership knots.
type Builder struct {
	orphans []string
	counts  domain.MatchCounts
	log     *zap.Logger
}

// NewBuilder returns a Builder ready for a single Build call.
func NewBuilder(log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{log: log}
}

// Build indexes every entry, then resolves a parent for each non-root one.
// Child lists keep input order. Codes at indent > 0 that match nothing are
// recorded as orphans.
func (b *Builder) Build(entries []domain.HierarchyEntry) map[string]*domain.HierarchyNode {
	b.log.Info("building hierarchy map", zap.Int("codes", len(entries)))

	nodes := make(map[string]*domain.HierarchyNode, len(entries))
	for _, e := range entries {
		nodes[e.Code] = &domain.HierarchyNode{Entry: e}
	}

	for idx, e := range entries {
		parent := b.findParent(e.Code, e.Indent, idx, entries)
		if parent != "" {
			nodes[e.Code].ParentCode = parent
			nodes[parent].ChildCodes = append(nodes[parent].ChildCodes, e.Code)
		} else if e.Indent > 0 {
			b.orphans = append(b.orphans, e.Code)
			b.log.Warn("orphaned code",
				zap.String("code", e.Code),
				zap.Int("indent", e.Indent))
		}
	}

	b.log.Info("hierarchy map built",
		zap.Int("prefix", b.counts.Prefix),
		zap.Int("fallback", b.counts.Fallback),
		zap.Int("failed", b.counts.Failed))
	return nodes
}

// findParent resolves the parent code for one entry.
//
// Primary method: among all entries exactly one indent level up, pick the
// longest code that prefixes this one. Failing that, walk backwards through
// the file for any lower-indent entry that still prefixes this code. Last
// resort is the nearest earlier lower-indent entry in the same chapter.
func (b *Builder) findParent(code string, indent, index int, entries []domain.HierarchyEntry) string {
	if indent == 0 {
		return ""
	}

	best := ""
	for _, cand := range entries {
		if cand.Indent != indent-1 {
			continue
		}
		if strings.HasPrefix(code, cand.Code) && len(cand.Code) > len(best) {
			best = cand.Code
		}
	}
	if best != "" {
		b.counts.Prefix++
		return best
	}

	for i := index - 1; i >= 0; i-- {
		if entries[i].Indent < indent && strings.HasPrefix(code, entries[i].Code) {
			b.counts.Fallback++
			return entries[i].Code
		}
	}

	chapter := chapterOf(code)
	for i := index - 1; i >= 0; i-- {
		if entries[i].Indent < indent && chapterOf(entries[i].Code) == chapter {
			b.counts.Fallback++
			return entries[i].Code
		}
	}

	b.counts.Failed++
	return ""
}

// chapterOf returns the segment before the first dot, or the first four
// characters of a dotless code.
func chapterOf(code string) string {
	if i := strings.Index(code, "."); i >= 0 {
		return code[:i]
	}
	if len(code) > 4 {
		return code[:4]
	}
	return code
}

// Orphans lists codes that needed a parent but got none, in input order.
func (b *Builder) Orphans() []string {
	return b.orphans
}

// Counts reports how parent links were resolved.
func (b *Builder) Counts() domain.MatchCounts {
	return b.counts
}
