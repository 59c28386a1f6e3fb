package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tradelens/backend/config"
	"github.com/tradelens/backend/internal/domain"
	"github.com/tradelens/backend/internal/infrastructure/gemini"
	"github.com/tradelens/backend/internal/infrastructure/store"
	"github.com/tradelens/backend/internal/logging"
	"github.com/tradelens/backend/internal/usecase"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "ingest":
		os.Exit(runIngest(ctx, os.Args[2:]))
	case "process":
		os.Exit(runProcess(ctx, os.Args[2:]))
	case "resume":
		os.Exit(runResume(ctx, os.Args[2:]))
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "stats":
		os.Exit(runStats(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runIngest(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var feedPath string
	fs.StringVar(&feedPath, "file", "", "Product feed CSV to import")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if feedPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "ingest requires -file")
		return 2
	}

	cfg, logger, err := loadApp()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	defer logger.Sync()

	db, products, _, err := openStores(cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "store error: %s\n", err)
		return 2
	}
	defer store.Close(db)

	report, err := products.ImportCSV(ctx, feedPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "import failed: %s\n", err)
		return 1
	}

	fmt.Printf("rows read: %d\ninserted:  %d\nskipped:   %d\n",
		report.RowsRead, report.Inserted, report.Skipped)
	for _, line := range report.InvalidSample {
		fmt.Printf("  invalid %s\n", line)
	}
	return 0
}

func runProcess(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var pass, size int
	var items, rules string
	fs.IntVar(&pass, "pass", 1, "Pass number; 2 and later require -items")
	fs.IntVar(&size, "size", 0, "Batch size (default: batch.size from config)")
	fs.StringVar(&items, "items", "", "Comma-separated item ids to process")
	fs.StringVar(&rules, "rules", "", "Comma-separated rule ids to apply")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if pass >= 2 && strings.TrimSpace(items) == "" {
		_, _ = fmt.Fprintln(os.Stderr, "process -pass 2 and later require -items")
		return 2
	}

	cfg, logger, err := loadApp()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	defer logger.Sync()
	if size <= 0 {
		size = cfg.Batch.Size
	}

	db, products, ruleStore, err := openStores(cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "store error: %s\n", err)
		return 2
	}
	defer store.Close(db)

	enhancer, err := buildEnhancer(ctx, cfg, logger, products, ruleStore)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "setup failed: %s\n", err)
		return 2
	}

	report, err := enhancer.ProcessBatch(ctx, usecase.BatchOptions{
		BatchSize: size,
		Pass:      pass,
		ItemIDs:   splitList(items),
		RuleIDs:   splitList(rules),
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "batch failed: %s\n", err)
		return 1
	}

	printReport(report)
	return 0
}

func runResume(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var size int
	fs.IntVar(&size, "size", 0, "Batch size (default: batch.size from config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := loadApp()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	defer logger.Sync()
	if size <= 0 {
		size = cfg.Batch.Size
	}

	db, products, ruleStore, err := openStores(cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "store error: %s\n", err)
		return 2
	}
	defer store.Close(db)

	enhancer, err := buildEnhancer(ctx, cfg, logger, products, ruleStore)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "setup failed: %s\n", err)
		return 2
	}

	summary, err := enhancer.ResumePassOne(ctx, size)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "resume failed: %s\n", err)
		return 1
	}

	fmt.Printf("batches:    %d\nsuccessful: %d\nfailed:     %d\nremaining:  %d\nelapsed:    %.1fs\n",
		summary.Batches, summary.Successful, summary.Failed, summary.Remaining, summary.TotalSeconds)
	if summary.Stalled {
		fmt.Println("stopped early: a full batch made no progress")
		return 1
	}
	return 0
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var refPath, exportPath string
	fs.StringVar(&refPath, "file", "", "Reference JSON to validate (default: hierarchy.reference_path from config)")
	fs.StringVar(&exportPath, "export", "", "Write the linked node map as JSON to this path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := loadApp()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	defer logger.Sync()
	if refPath == "" {
		refPath = cfg.Hierarchy.ReferencePath
	}

	svc, err := usecase.NewHierarchyService(refPath, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "validate failed: %s\n", err)
		return 1
	}

	stats := svc.Statistics()
	fmt.Printf("codes: %d\n", stats.TotalCodes)

	levels := make([]int, 0, len(stats.IndentDistribution))
	for level := range stats.IndentDistribution {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	for _, level := range levels {
		fmt.Printf("  indent %d: %d\n", level, stats.IndentDistribution[level])
	}

	fmt.Printf("parent links: %d prefix, %d fallback, %d failed\n",
		stats.MatchCounts.Prefix, stats.MatchCounts.Fallback, stats.MatchCounts.Failed)
	fmt.Printf("orphaned codes: %d\n", len(stats.OrphanedCodes))
	for i, code := range stats.OrphanedCodes {
		if i == 10 {
			fmt.Printf("  ... and %d more\n", len(stats.OrphanedCodes)-10)
			break
		}
		fmt.Printf("  %s\n", code)
	}

	if exportPath != "" {
		f, err := os.Create(exportPath)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "export failed: %s\n", err)
			return 1
		}
		defer f.Close()
		if err := svc.ExportMap(f); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "export failed: %s\n", err)
			return 1
		}
		fmt.Printf("node map written to %s\n", exportPath)
	}
	return 0
}

func runStats(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := loadApp()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	defer logger.Sync()

	db, products, _, err := openStores(cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "store error: %s\n", err)
		return 2
	}
	defer store.Close(db)

	stats, err := products.Stats(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "stats failed: %s\n", err)
		return 1
	}

	fmt.Printf("products:    %d\nprocessed:   %d\nunprocessed: %d\n",
		stats.TotalProducts, stats.Processed, stats.Unprocessed)
	fmt.Printf("confidence:  High=%d Medium=%d Low=%d\n",
		stats.ConfidenceDistribution[domain.ConfidenceHigh],
		stats.ConfidenceDistribution[domain.ConfidenceMedium],
		stats.ConfidenceDistribution[domain.ConfidenceLow])
	return 0
}

func printReport(report domain.BatchReport) {
	fmt.Printf("pass %d: %d processed, %d successful, %d failed (%.1f%% success)\n",
		report.Pass, report.TotalProcessed, report.Successful, report.Failed,
		report.SuccessRate*100)
	fmt.Printf("confidence: High=%d Medium=%d Low=%d\n",
		report.ConfidenceDistribution[domain.ConfidenceHigh],
		report.ConfidenceDistribution[domain.ConfidenceMedium],
		report.ConfidenceDistribution[domain.ConfidenceLow])
	fmt.Printf("elapsed: %.1fs (%.2fs per product)\n",
		report.ProcessingSeconds, report.AvgSecondsPerProduct)
	for _, outcome := range report.Outcomes {
		if !outcome.Success {
			fmt.Printf("  failed %s: %s\n", outcome.ItemID, outcome.Error)
		}
	}
}

func loadApp() (*config.Config, *zap.Logger, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openStores(cfg *config.Config, logger *zap.Logger) (*gorm.DB, *store.ProductStore, *store.RuleStore, error) {
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	return db, store.NewProductStore(db, logger), store.NewRuleStore(db, logger), nil
}

// buildEnhancer assembles the enrichment pipeline the same way the server
// does: hierarchy from the reference file, Gemini or the offline generator,
// retry policy on top.
func buildEnhancer(ctx context.Context, cfg *config.Config, logger *zap.Logger, products *store.ProductStore, rules *store.RuleStore) (*usecase.EnhancementService, error) {
	hierarchy, err := usecase.NewHierarchyService(cfg.Hierarchy.ReferencePath, logger)
	if err != nil {
		return nil, fmt.Errorf("loading classification reference: %w", err)
	}

	var inner domain.TextGenerator
	if cfg.Gemini.Offline || cfg.Gemini.APIKey == "" {
		logger.Warn("no Gemini API key configured, using the offline generator")
		inner = gemini.NewOfflineGenerator(logger)
	} else {
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:            cfg.Gemini.APIKey,
			Model:             cfg.Gemini.Model,
			Temperature:       cfg.Gemini.Temperature,
			MaxOutputTokens:   cfg.Gemini.MaxOutputTokens,
			RequestTimeout:    cfg.Gemini.RequestTimeout,
			RequestsPerSecond: cfg.Gemini.RequestsPerSecond,
			Burst:             cfg.Gemini.Burst,
		}, logger)
		if err != nil {
			return nil, err
		}
		inner = client
	}

	generator := usecase.NewRetryingGenerator(inner, usecase.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		BaseDelay:       cfg.Retry.BaseDelay,
		ExponentialBase: cfg.Retry.ExponentialBase,
		Log:             logger,
	})

	return usecase.NewEnhancementService(products, rules, generator, hierarchy, logger), nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `tradectl: operations CLI for the TradeLens enrichment backend

Usage:
  tradectl <command> [flags]

Commands:
  ingest    Import a product feed CSV into the store
  process   Run one enrichment batch
  resume    Drain all unprocessed products in batches
  validate  Load the classification reference and report tree health
  stats     Show store progress counters

Examples:
  tradectl ingest -file data/feed.csv
  tradectl process -pass 1 -size 50
  tradectl process -pass 2 -items ITEM-1,ITEM-2 -rules R001
  tradectl resume -size 100
  tradectl validate -export nodes.json

Configuration:
  Settings come from config.yaml and TRADELENS_* environment variables.
  A .env file in the working directory is loaded when present.
`)
}
