package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tradelens/backend/internal/domain"
)

const enricherResponse = `{
	"enhanced_description": "Ductile Iron Coupling",
	"confidence_score": "0.85",
	"confidence_level": "High",
	"extracted_features": {"product": "Coupling", "customer_name": null, "dimensions": "3 inch"}
}`

type fakeProductStore struct {
	products       []domain.Product
	updates        map[string]domain.ProcessingResult
	updateErr      map[string]error
	unprocessedErr error
	byIDsErr       error
	countErr       error
}

func newFakeProductStore(products ...domain.Product) *fakeProductStore {
	return &fakeProductStore{
		products:  products,
		updates:   make(map[string]domain.ProcessingResult),
		updateErr: make(map[string]error),
	}
}

func (f *fakeProductStore) GetUnprocessed(ctx context.Context, limit int) ([]domain.Product, error) {
	if f.unprocessedErr != nil {
		return nil, f.unprocessedErr
	}
	var out []domain.Product
	for _, p := range f.products {
		if _, done := f.updates[p.ItemID]; done {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeProductStore) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if f.byIDsErr != nil {
		return nil, f.byIDsErr
	}
	var out []domain.Product
	for _, id := range ids {
		for _, p := range f.products {
			if p.ItemID != id {
				continue
			}
			if res, done := f.updates[id]; done {
				r := res
				p.Enhancement = &r
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductStore) UpdateResult(ctx context.Context, itemID string, res domain.ProcessingResult) error {
	if err := f.updateErr[itemID]; err != nil {
		return err
	}
	f.updates[itemID] = res
	return nil
}

func (f *fakeProductStore) CountUnprocessed(ctx context.Context) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	var n int64
	for _, p := range f.products {
		if _, done := f.updates[p.ItemID]; !done {
			n++
		}
	}
	return n, nil
}

type fakeRuleStore struct {
	rules     []domain.Rule
	activeErr error
	byIDs     [][]string
}

func (f *fakeRuleStore) GetActive(ctx context.Context) ([]domain.Rule, error) {
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	var out []domain.Rule
	for _, r := range f.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleStore) GetByIDs(ctx context.Context, ids []string) ([]domain.Rule, error) {
	f.byIDs = append(f.byIDs, ids)
	var out []domain.Rule
	for _, id := range ids {
		for _, r := range f.rules {
			if r.RuleID == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

type scriptedGenerator struct {
	calls   int
	systems []string
	prompts []string
	respond func(userPrompt string) (string, error)
}

func (g *scriptedGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	g.calls++
	g.systems = append(g.systems, systemPrompt)
	g.prompts = append(g.prompts, userPrompt)
	if g.respond != nil {
		return g.respond(userPrompt)
	}
	return enricherResponse, nil
}

type countingLookup struct {
	calls int
	codes []string
}

func (l *countingLookup) Context(code string) domain.ContextResult {
	l.calls++
	l.codes = append(l.codes, code)
	return domain.ContextResult{
		Code:  code,
		Found: true,
		Path:  []domain.PathStep{{Code: code, Description: "fixture", Indent: 0}},
	}
}

func (l *countingLookup) Exists(code string) bool { return true }

func (l *countingLookup) Statistics() domain.HierarchyStatistics {
	return domain.HierarchyStatistics{}
}

func testProducts(n int, codes []string) []domain.Product {
	products := make([]domain.Product, 0, n)
	for i := 0; i < n; i++ {
		code := ""
		if len(codes) > 0 {
			code = codes[i%len(codes)]
		}
		products = append(products, domain.Product{
			ItemID:      fmt.Sprintf("ITEM-%d", i+1),
			Description: fmt.Sprintf("WIDGET-%d RAW", i+1),
			HTSCode:     code,
		})
	}
	return products
}

func newTestService(store *fakeProductStore, rules *fakeRuleStore, gen *scriptedGenerator, lookup *countingLookup) *EnhancementService {
	return NewEnhancementService(store, rules, gen, lookup, nil)
}

func TestProcessBatchFirstPass(t *testing.T) {
	ctx := context.Background()

	t.Run("processes every unprocessed product", func(t *testing.T) {
		store := newFakeProductStore(testProducts(5, []string{"7307.11.00"})...)
		gen := &scriptedGenerator{}
		svc := newTestService(store, &fakeRuleStore{}, gen, &countingLookup{})

		report, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1, BatchSize: 10})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.TotalProcessed != 5 || report.Successful != 5 || report.Failed != 0 {
			t.Errorf("report = %v/%v/%v, want 5/5/0", report.TotalProcessed, report.Successful, report.Failed)
		}
		if report.SuccessRate != 1.0 {
			t.Errorf("SuccessRate = %v, want 1.0", report.SuccessRate)
		}
		if report.ConfidenceDistribution[domain.ConfidenceHigh] != 5 {
			t.Errorf("High count = %v, want 5", report.ConfidenceDistribution[domain.ConfidenceHigh])
		}
		if len(report.Outcomes) != 5 {
			t.Fatalf("outcomes = %v, want 5", len(report.Outcomes))
		}
		for _, o := range report.Outcomes {
			if !o.Success || o.ConfidenceScore != "0.85" || o.ConfidenceLevel != domain.ConfidenceHigh {
				t.Errorf("outcome = %+v, want success at 0.85 High", o)
			}
		}
		if len(store.updates) != 5 {
			t.Errorf("stored results = %v, want 5", len(store.updates))
		}
	})

	t.Run("persists flattened first-pass records", func(t *testing.T) {
		store := newFakeProductStore(testProducts(1, []string{"7307.11.00"})...)
		svc := newTestService(store, &fakeRuleStore{}, &scriptedGenerator{}, &countingLookup{})

		if _, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rec := store.updates["ITEM-1"]
		if rec.EnhancedDescription != "Ductile Iron Coupling" {
			t.Errorf("EnhancedDescription = %q", rec.EnhancedDescription)
		}
		if rec.RulesApplied != "[]" {
			t.Errorf("RulesApplied = %q, want [] on pass 1", rec.RulesApplied)
		}
		if rec.Pass != "1" {
			t.Errorf("Pass = %q, want 1", rec.Pass)
		}
	})

	t.Run("sends the system prompt and product prompt", func(t *testing.T) {
		store := newFakeProductStore(testProducts(1, []string{"7307.11.00"})...)
		gen := &scriptedGenerator{}
		svc := newTestService(store, &fakeRuleStore{}, gen, &countingLookup{})

		if _, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if gen.systems[0] != SystemPrompt {
			t.Error("generator should receive the enrichment system prompt")
		}
		if !strings.Contains(gen.prompts[0], "Original Description: WIDGET-1 RAW") {
			t.Errorf("prompt = %q, want product description", gen.prompts[0])
		}
		if !strings.Contains(gen.prompts[0], "HTS Classification Context:") {
			t.Errorf("prompt = %q, want classification context", gen.prompts[0])
		}
	})
}

func TestProcessBatchContextCache(t *testing.T) {
	ctx := context.Background()

	t.Run("looks up each distinct code once", func(t *testing.T) {
		codes := []string{"7307.11", "7307.19", "7307.21", "7307.22", "7307.23"}
		store := newFakeProductStore(testProducts(20, codes)...)
		lookup := &countingLookup{}
		svc := newTestService(store, &fakeRuleStore{}, &scriptedGenerator{}, lookup)

		report, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1, BatchSize: 20})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.Successful != 20 {
			t.Fatalf("Successful = %v, want 20", report.Successful)
		}
		if lookup.calls != 5 {
			t.Errorf("lookup calls = %v, want 5 distinct codes", lookup.calls)
		}
	})

	t.Run("cache does not survive between batches", func(t *testing.T) {
		store := newFakeProductStore(testProducts(2, []string{"7307.11"})...)
		lookup := &countingLookup{}
		svc := newTestService(store, &fakeRuleStore{}, &scriptedGenerator{}, lookup)

		if _, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1, ItemIDs: []string{"ITEM-1"}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1, ItemIDs: []string{"ITEM-2"}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if lookup.calls != 2 {
			t.Errorf("lookup calls = %v, want 2 (one per batch, nothing shared)", lookup.calls)
		}
	})

	t.Run("products without a code skip the lookup", func(t *testing.T) {
		store := newFakeProductStore(testProducts(3, nil)...)
		lookup := &countingLookup{}
		svc := newTestService(store, &fakeRuleStore{}, &scriptedGenerator{}, lookup)

		report, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if lookup.calls != 0 {
			t.Errorf("lookup calls = %v, want 0 for codeless products", lookup.calls)
		}
		if report.Successful != 3 {
			t.Errorf("Successful = %v, want 3 despite missing codes", report.Successful)
		}
	})
}

func TestProcessBatchFailureIsolation(t *testing.T) {
	ctx := context.Background()

	t.Run("one bad generation does not stop the batch", func(t *testing.T) {
		store := newFakeProductStore(testProducts(5, []string{"7307.11"})...)
		gen := &scriptedGenerator{respond: func(prompt string) (string, error) {
			if strings.Contains(prompt, "WIDGET-3") {
				return "", fmt.Errorf("%w: deadline exceeded", domain.ErrProviderTimeout)
			}
			return enricherResponse, nil
		}}
		svc := newTestService(store, &fakeRuleStore{}, gen, &countingLookup{})

		report, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.Successful != 4 || report.Failed != 1 {
			t.Errorf("successful/failed = %v/%v, want 4/1", report.Successful, report.Failed)
		}
		if report.SuccessRate != 0.8 {
			t.Errorf("SuccessRate = %v, want 0.8", report.SuccessRate)
		}

		var failure domain.ProductOutcome
		for _, o := range report.Outcomes {
			if o.ItemID == "ITEM-3" {
				failure = o
			}
		}
		if failure.Success || failure.Error == "" {
			t.Errorf("outcome for ITEM-3 = %+v, want recorded failure", failure)
		}
		if _, stored := store.updates["ITEM-3"]; stored {
			t.Error("failed item should not be persisted")
		}
	})

	t.Run("unparseable responses are recorded failures", func(t *testing.T) {
		store := newFakeProductStore(testProducts(2, []string{"7307.11"})...)
		gen := &scriptedGenerator{respond: func(prompt string) (string, error) {
			if strings.Contains(prompt, "WIDGET-2") {
				return "I am unable to help with that.", nil
			}
			return enricherResponse, nil
		}}
		svc := newTestService(store, &fakeRuleStore{}, gen, &countingLookup{})

		report, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Successful != 1 || report.Failed != 1 {
			t.Errorf("successful/failed = %v/%v, want 1/1", report.Successful, report.Failed)
		}
	})

	t.Run("persistence failures are recorded failures", func(t *testing.T) {
		store := newFakeProductStore(testProducts(2, []string{"7307.11"})...)
		store.updateErr["ITEM-2"] = errors.New("disk full")
		svc := newTestService(store, &fakeRuleStore{}, &scriptedGenerator{}, &countingLookup{})

		report, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.Successful != 1 || report.Failed != 1 {
			t.Errorf("successful/failed = %v/%v, want 1/1", report.Successful, report.Failed)
		}
		var failure domain.ProductOutcome
		for _, o := range report.Outcomes {
			if o.ItemID == "ITEM-2" {
				failure = o
			}
		}
		if !strings.Contains(failure.Error, "storing result") {
			t.Errorf("Error = %q, want persistence failure", failure.Error)
		}
	})
}

func TestProcessBatchLoadErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("product load failure aborts the batch", func(t *testing.T) {
		store := newFakeProductStore(testProducts(2, nil)...)
		store.unprocessedErr = errors.New("database is locked")
		svc := newTestService(store, &fakeRuleStore{}, &scriptedGenerator{}, &countingLookup{})

		_, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1})
		if err == nil || !strings.Contains(err.Error(), "loading unprocessed products") {
			t.Errorf("error = %v, want load failure", err)
		}
	})

	t.Run("rule load failure aborts the batch", func(t *testing.T) {
		store := newFakeProductStore(testProducts(1, nil)...)
		rules := &fakeRuleStore{activeErr: errors.New("database is locked")}
		gen := &scriptedGenerator{}
		svc := newTestService(store, rules, gen, &countingLookup{})

		_, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 2, ItemIDs: []string{"ITEM-1"}})
		if err == nil || !strings.Contains(err.Error(), "loading active rules") {
			t.Errorf("error = %v, want rule load failure", err)
		}
		if gen.calls != 0 {
			t.Errorf("generator calls = %v, want 0 after aborted load", gen.calls)
		}
	})
}

func TestProcessBatchSelections(t *testing.T) {
	ctx := context.Background()

	t.Run("first pass reprocesses an explicit selection", func(t *testing.T) {
		store := newFakeProductStore(testProducts(3, []string{"7307.11"})...)
		store.updates["ITEM-1"] = domain.ProcessingResult{EnhancedDescription: "old result"}
		gen := &scriptedGenerator{}
		svc := newTestService(store, &fakeRuleStore{}, gen, &countingLookup{})

		report, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1, ItemIDs: []string{"ITEM-1", "ITEM-2"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.TotalProcessed != 2 {
			t.Errorf("TotalProcessed = %v, want 2 selected", report.TotalProcessed)
		}
		if gen.calls != 2 {
			t.Errorf("generator calls = %v, want 2", gen.calls)
		}
		if store.updates["ITEM-1"].EnhancedDescription != "Ductile Iron Coupling" {
			t.Error("already-processed selection should be overwritten")
		}
	})

	t.Run("later passes demand a selection", func(t *testing.T) {
		store := newFakeProductStore(testProducts(3, []string{"7307.11"})...)
		gen := &scriptedGenerator{}
		svc := newTestService(store, &fakeRuleStore{}, gen, &countingLookup{})

		report, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 2})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.TotalProcessed != 0 || len(report.Outcomes) != 0 {
			t.Errorf("report = %+v, want empty", report)
		}
		if report.Pass != 2 {
			t.Errorf("Pass = %v, want 2 echoed", report.Pass)
		}
		if len(report.ConfidenceDistribution) != 3 {
			t.Errorf("distribution = %v, want all three levels present", report.ConfidenceDistribution)
		}
		if gen.calls != 0 {
			t.Errorf("generator calls = %v, want 0", gen.calls)
		}
	})

	t.Run("invalid pass yields an empty report", func(t *testing.T) {
		store := newFakeProductStore(testProducts(1, nil)...)
		gen := &scriptedGenerator{}
		svc := newTestService(store, &fakeRuleStore{}, gen, &countingLookup{})

		report, err := svc.ProcessBatch(ctx, BatchOptions{Pass: -1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.TotalProcessed != 0 || gen.calls != 0 {
			t.Errorf("report = %+v with %v calls, want nothing processed", report, gen.calls)
		}
	})

	t.Run("second pass applies selected rules", func(t *testing.T) {
		store := newFakeProductStore(testProducts(1, []string{"7307.11"})...)
		rules := &fakeRuleStore{rules: []domain.Rule{
			{RuleID: "R001", Content: "Expand DI to Ductile Iron", Active: true},
			{RuleID: "R002", Content: "Expand CI to Cast Iron", Active: true},
		}}
		gen := &scriptedGenerator{}
		svc := newTestService(store, rules, gen, &countingLookup{})

		_, err := svc.ProcessBatch(ctx, BatchOptions{
			Pass:    2,
			ItemIDs: []string{"ITEM-1"},
			RuleIDs: []string{"R002"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(rules.byIDs) != 1 || len(rules.byIDs[0]) != 1 || rules.byIDs[0][0] != "R002" {
			t.Errorf("rule selection = %v, want [[R002]]", rules.byIDs)
		}
		if !strings.Contains(gen.prompts[0], "- [R002] Expand CI to Cast Iron") {
			t.Errorf("prompt = %q, want selected rule", gen.prompts[0])
		}
		if strings.Contains(gen.prompts[0], "R001") {
			t.Errorf("prompt = %q, unselected rule leaked in", gen.prompts[0])
		}
		if store.updates["ITEM-1"].RulesApplied != `["R002"]` {
			t.Errorf("RulesApplied = %q, want [\"R002\"]", store.updates["ITEM-1"].RulesApplied)
		}
		if store.updates["ITEM-1"].Pass != "2" {
			t.Errorf("Pass = %q, want 2", store.updates["ITEM-1"].Pass)
		}
	})

	t.Run("second pass falls back to active rules", func(t *testing.T) {
		store := newFakeProductStore(testProducts(1, []string{"7307.11"})...)
		rules := &fakeRuleStore{rules: []domain.Rule{
			{RuleID: "R001", Content: "Expand DI to Ductile Iron", Active: true},
			{RuleID: "R003", Content: "Retired rule", Active: false},
		}}
		gen := &scriptedGenerator{}
		svc := newTestService(store, rules, gen, &countingLookup{})

		_, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 2, ItemIDs: []string{"ITEM-1"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(gen.prompts[0], "R001") {
			t.Errorf("prompt = %q, want active rule", gen.prompts[0])
		}
		if strings.Contains(gen.prompts[0], "Retired rule") {
			t.Errorf("prompt = %q, inactive rule leaked in", gen.prompts[0])
		}
	})

	t.Run("first pass ignores rules entirely", func(t *testing.T) {
		store := newFakeProductStore(testProducts(1, []string{"7307.11"})...)
		rules := &fakeRuleStore{rules: []domain.Rule{
			{RuleID: "R001", Content: "Expand DI to Ductile Iron", Active: true},
		}}
		gen := &scriptedGenerator{}
		svc := newTestService(store, rules, gen, &countingLookup{})

		_, err := svc.ProcessBatch(ctx, BatchOptions{Pass: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if strings.Contains(gen.prompts[0], "Rules to Apply") {
			t.Errorf("prompt = %q, rules should not reach pass 1", gen.prompts[0])
		}
	})
}

func TestResumePassOne(t *testing.T) {
	ctx := context.Background()

	t.Run("drains the store batch by batch", func(t *testing.T) {
		store := newFakeProductStore(testProducts(7, []string{"7307.11"})...)
		svc := newTestService(store, &fakeRuleStore{}, &scriptedGenerator{}, &countingLookup{})

		summary, err := svc.ResumePassOne(ctx, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if summary.Batches != 3 {
			t.Errorf("Batches = %v, want 3 (3+3+1)", summary.Batches)
		}
		if summary.Successful != 7 || summary.Failed != 0 {
			t.Errorf("successful/failed = %v/%v, want 7/0", summary.Successful, summary.Failed)
		}
		if summary.Remaining != 0 {
			t.Errorf("Remaining = %v, want 0", summary.Remaining)
		}
		if summary.Stalled {
			t.Error("Stalled = true, want false")
		}
	})

	t.Run("empty store resumes to nothing", func(t *testing.T) {
		store := newFakeProductStore()
		gen := &scriptedGenerator{}
		svc := newTestService(store, &fakeRuleStore{}, gen, &countingLookup{})

		summary, err := svc.ResumePassOne(ctx, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Batches != 0 || gen.calls != 0 {
			t.Errorf("summary = %+v with %v calls, want untouched", summary, gen.calls)
		}
	})

	t.Run("stops when a batch makes no progress", func(t *testing.T) {
		store := newFakeProductStore(testProducts(3, []string{"7307.11"})...)
		gen := &scriptedGenerator{respond: func(string) (string, error) {
			return "", fmt.Errorf("%w: 500", domain.ErrProviderServer)
		}}
		svc := newTestService(store, &fakeRuleStore{}, gen, &countingLookup{})

		summary, err := svc.ResumePassOne(ctx, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !summary.Stalled {
			t.Error("Stalled = false, want true when nothing persists")
		}
		if summary.Batches != 1 {
			t.Errorf("Batches = %v, want 1", summary.Batches)
		}
		if summary.Failed != 3 {
			t.Errorf("Failed = %v, want 3", summary.Failed)
		}
		if summary.Remaining != 3 {
			t.Errorf("Remaining = %v, want 3 still pending", summary.Remaining)
		}
	})

	t.Run("count failure aborts", func(t *testing.T) {
		store := newFakeProductStore(testProducts(1, nil)...)
		store.countErr = errors.New("database is locked")
		svc := newTestService(store, &fakeRuleStore{}, &scriptedGenerator{}, &countingLookup{})

		_, err := svc.ResumePassOne(ctx, 3)
		if err == nil || !strings.Contains(err.Error(), "counting unprocessed") {
			t.Errorf("error = %v, want count failure", err)
		}
	})
}
