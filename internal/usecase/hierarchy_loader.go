package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tradelens/backend/internal/domain"
)

// requiredEntryFields must be present on every reference record that
// survives filtering.
var requiredEntryFields = []string{"htsno", "indent", "description"}

// LoadEntries reads and validates the classification reference file.
//
// Records with a missing, empty, or shorter-than-four-character code are
// section headers and are skipped. Indent values arriving as strings are
// converted; unparseable ones default to 0 with a warning. Missing or
// mistyped required fields and duplicate codes are fatal.
func LoadEntries(path string, log *zap.Logger) ([]domain.HierarchyEntry, error) {
	if log == nil {
		log = zap.NewNop()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrReferenceFile, path)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrReferenceFile, path, err)
	}
	log.Info("loading classification reference",
		zap.String("path", path),
		zap.Int("bytes", len(raw)))

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReferenceFormat, err)
	}
	items, ok := decoded.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list of records", domain.ErrReferenceFormat)
	}

	records, err := filterRecords(items, log)
	if err != nil {
		return nil, err
	}
	log.Info("reference records filtered",
		zap.Int("raw", len(items)),
		zap.Int("valid", len(records)))

	normalizeIndents(records, log)

	entries := make([]domain.HierarchyEntry, 0, len(records))
	for i, rec := range records {
		entry, err := entryFromRecord(i, rec, log)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := checkDuplicates(entries); err != nil {
		return nil, err
	}

	dist := make(map[int]int)
	for _, e := range entries {
		dist[e.Indent]++
	}
	log.Debug("indent distribution", zap.Any("distribution", dist))

	return entries, nil
}

// filterRecords drops header rows and rejects records that are not objects
// or carry a non-string code.
func filterRecords(items []any, log *zap.Logger) ([]map[string]any, error) {
	records := make([]map[string]any, 0, len(items))
	skipped := 0

	for i, it := range items {
		rec, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: record at index %d is not an object", domain.ErrReferenceFormat, i)
		}

		codeVal, present := rec["htsno"]
		if !present {
			skipped++
			continue
		}
		code, ok := codeVal.(string)
		if !ok {
			return nil, fmt.Errorf("%w: record at index %d: htsno must be a string", domain.ErrReferenceFormat, i)
		}
		code = strings.TrimSpace(code)
		if code == "" || len(code) < 4 {
			skipped++
			continue
		}
		rec["htsno"] = code
		records = append(records, rec)
	}

	if skipped > 0 {
		log.Debug("filtered header records", zap.Int("skipped", skipped))
	}
	return records, nil
}

// normalizeIndents converts string indents in place. Unparseable values
// default to 0; the original file carries a handful of these and a load
// failure over them is not worth it.
func normalizeIndents(records []map[string]any, log *zap.Logger) {
	for _, rec := range records {
		s, ok := rec["indent"].(string)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			code, _ := rec["htsno"].(string)
			log.Warn("indent not numeric, defaulting to 0",
				zap.String("code", code),
				zap.String("indent", s))
			n = 0
		}
		rec["indent"] = n
	}
}

func entryFromRecord(idx int, rec map[string]any, log *zap.Logger) (domain.HierarchyEntry, error) {
	for _, field := range requiredEntryFields {
		if _, present := rec[field]; !present {
			return domain.HierarchyEntry{}, fmt.Errorf("%w: record at index %d missing required field %q",
				domain.ErrReferenceFormat, idx, field)
		}
	}

	code := rec["htsno"].(string)
	indent, err := indentValue(rec["indent"])
	if err != nil {
		return domain.HierarchyEntry{}, fmt.Errorf("%w: record at index %d: %v", domain.ErrReferenceFormat, idx, err)
	}
	desc, ok := rec["description"].(string)
	if !ok {
		return domain.HierarchyEntry{}, fmt.Errorf("%w: record at index %d: description must be a string",
			domain.ErrReferenceFormat, idx)
	}
	if indent < 0 {
		log.Warn("negative indent", zap.String("code", code), zap.Int("indent", indent))
	}

	return domain.HierarchyEntry{
		Code:        code,
		Indent:      indent,
		Description: desc,
		Units:       stringField(rec, "units"),
		General:     stringField(rec, "general"),
		Special:     stringField(rec, "special"),
		Other:       stringField(rec, "other"),
	}, nil
}

func indentValue(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("indent must be an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("indent must be an integer, got %T", v)
	}
}

func stringField(rec map[string]any, key string) string {
	s, _ := rec[key].(string)
	return s
}

func checkDuplicates(entries []domain.HierarchyEntry) error {
	seen := make(map[string]struct{}, len(entries))
	var duplicates []string
	for _, e := range entries {
		if _, dup := seen[e.Code]; dup {
			duplicates = append(duplicates, e.Code)
		}
		seen[e.Code] = struct{}{}
	}
	if len(duplicates) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateCode, strings.Join(duplicates, ", "))
	}
	return nil
}
