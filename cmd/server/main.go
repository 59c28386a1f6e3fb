package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tradelens/backend/config"
	httpDelivery "github.com/tradelens/backend/internal/delivery/http"
	"github.com/tradelens/backend/internal/domain"
	"github.com/tradelens/backend/internal/infrastructure/gemini"
	"github.com/tradelens/backend/internal/infrastructure/store"
	"github.com/tradelens/backend/internal/logging"
	"github.com/tradelens/backend/internal/usecase"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting tradelens backend",
		zap.String("version", "1.0.0"),
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port))

	// Open the product store
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("opening database",
			zap.String("path", cfg.Database.Path),
			zap.Error(err))
	}
	defer store.Close(db)

	products := store.NewProductStore(db, logger)
	rules := store.NewRuleStore(db, logger)

	// Load the classification reference once at startup
	hierarchy, err := usecase.NewHierarchyService(cfg.Hierarchy.ReferencePath, logger)
	if err != nil {
		logger.Fatal("loading classification reference",
			zap.String("path", cfg.Hierarchy.ReferencePath),
			zap.Error(err))
	}

	generator, err := buildGenerator(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("configuring text generator", zap.Error(err))
	}

	enhancer := usecase.NewEnhancementService(products, rules, generator, hierarchy, logger)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(enhancer, hierarchy, products, rules, logger)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler, logger)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.Info("server listening", zap.String("addr", addr))

	if err := router.Run(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// buildGenerator picks the provider. A real Gemini client needs an API key;
// without one, or when offline mode is forced, the deterministic offline
// generator stands in. Either way the retry policy wraps the result.
func buildGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (domain.TextGenerator, error) {
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
		logger.Info("gemini client ready", zap.String("model", cfg.Gemini.Model))
		inner = client
	}

	return usecase.NewRetryingGenerator(inner, usecase.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		BaseDelay:       cfg.Retry.BaseDelay,
		ExponentialBase: cfg.Retry.ExponentialBase,
		Log:             logger,
	}), nil
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}
