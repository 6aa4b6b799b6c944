package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/statement-flow/internal/config"
	"github.com/Veraticus/statement-flow/internal/engine"
	"github.com/Veraticus/statement-flow/internal/enhance"
	"github.com/Veraticus/statement-flow/internal/institution"
	"github.com/Veraticus/statement-flow/internal/learning"
	"github.com/Veraticus/statement-flow/internal/metrics"
	"github.com/Veraticus/statement-flow/internal/source"
	"github.com/Veraticus/statement-flow/internal/storage"
	"github.com/Veraticus/statement-flow/internal/strategy"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// app holds the wired components a command needs.
type app struct {
	cfg        *config.Config
	store      *storage.SQLiteStorage
	recorder   *learning.Recorder
	aggregator *metrics.Aggregator
	engine     *engine.Engine
}

// openApp loads config, opens and migrates the database, seeds the built-in
// patterns and wires the engine.
func openApp(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}

	if err := store.Migrate(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	added, err := store.SeedBuiltinPatterns(ctx, institution.Default().BuiltinPatterns())
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to seed built-in patterns: %w", err)
	}
	if added > 0 {
		slog.Debug("Seeded built-in patterns", "count", added)
	}

	logger := slog.Default()
	enhancer, err := enhance.NewFromConfig(cfg.Enhancer, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	var capability strategy.Enhancer
	if enhancer != nil {
		capability = enhancer
	}

	recorder := learning.NewRecorder(store,
		learning.WithTextCap(cfg.Parsing.LearningTextCap),
		learning.WithLogger(logger))
	aggregator := metrics.NewAggregator(store, logger)

	bounds := strategy.MatchRatioBounds{Under: cfg.Regex.UnderMatchRatio, Over: cfg.Regex.OverMatchRatio}
	eng := engine.New(store, source.NewLoader(source.WithLogger(logger)),
		strategy.Defaults(store, bounds, capability, logger),
		engine.WithConfig(engine.Config{
			MaxAttempts:         cfg.Parsing.MaxAttempts,
			EarlyExitConfidence: cfg.Parsing.EarlyExitConfidence,
			StrategyTimeout:     cfg.Parsing.StrategyTimeout,
			DropDuplicates:      cfg.Parsing.DropDuplicates,
			ExcerptChars:        cfg.Parsing.ExcerptChars,
		}),
		engine.WithRecorder(recorder),
		engine.WithNotifier(aggregator),
		engine.WithLogger(logger),
	)

	return &app{
		cfg:        cfg,
		store:      store,
		recorder:   recorder,
		aggregator: aggregator,
		engine:     eng,
	}, cleanup, nil
}
