package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"ruwave_bot/internal/config"
	"ruwave_bot/internal/core"
	"ruwave_bot/internal/llm"
	"ruwave_bot/internal/logger"
	"ruwave_bot/internal/metrics"
	"ruwave_bot/internal/nodes"
	"ruwave_bot/internal/scheduler"
	"ruwave_bot/internal/server"
	"ruwave_bot/internal/services"
	"ruwave_bot/internal/storage"
	"ruwave_bot/internal/timewindow"

	"github.com/joho/godotenv"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load environment variables from .env file when present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.InitLogger(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Logger error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("❌ RuWave server failed")
	}
	logger.Info().Msg("👋 RuWave server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	domain, err := config.LoadDomain(cfg.DomainFile)
	if err != nil {
		return err
	}
	loc, err := cfg.Playlist.Location()
	if err != nil {
		return err
	}
	scope, err := services.ParseClosestScope(cfg.Playlist.ClosestScope)
	if err != nil {
		return err
	}

	m := metrics.New()

	sourceOpts := []services.PlaylistSourceOption{services.WithMetrics(m)}
	if cfg.Redis.URL != "" {
		store, err := storage.NewRedisStorage(ctx, cfg.Redis.URL, cfg.Redis.SnapshotTTL)
		if err != nil {
			logger.Warn().Err(err).Msg("⚠️ Redis unavailable, playlist snapshots stay in memory")
		} else {
			defer store.Close()
			sourceOpts = append(sourceOpts, services.WithSnapshotStore(store))
		}
	}

	source := services.NewPlaylistSource(cfg.Playlist.URL, cfg.Playlist.Delimiter, sourceOpts...)
	if err := source.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("⚠️ Initial playlist fetch failed, trying stored snapshot")
		if err := source.Restore(ctx); err != nil {
			logger.Warn().Err(err).Msg("⚠️ No stored playlist snapshot, starting empty")
		}
	}

	prices := services.NewPriceService(domain.Prices)

	sched, err := scheduler.New(cfg.Playlist.RefreshInterval)
	if err != nil {
		return err
	}
	if err := sched.Add(ctx, "playlist", source.Refresh); err != nil {
		return err
	}
	if cfg.DomainFile != "" {
		if err := sched.Add(ctx, "prices", priceReloader(cfg.DomainFile, prices)); err != nil {
			return err
		}
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	chat, err := llm.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	var resolver timewindow.Resolver = timewindow.NewRuleResolver(loc)
	switch strings.ToLower(cfg.Playlist.TimeResolver) {
	case "", "rules":
	case "llm":
		resolver = nodes.NewLLMTimeWindowResolver(chat, resolver, loc)
	default:
		return fmt.Errorf("unknown TIME_RESOLVER %q", cfg.Playlist.TimeResolver)
	}

	graph, err := buildGraph(cfg, domain, prices, source, resolver, scope, chat, m)
	if err != nil {
		return err
	}

	srv := server.New(fmt.Sprintf(":%d", cfg.Server.Port), graph, source, m)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info().
		Str("station", domain.Station.Name).
		Str("provider", cfg.LLM.Provider).
		Str("timezone", loc.String()).
		Int("prices", len(prices.Keywords())).
		Int("playlist_records", source.Snapshot().Len()).
		Msg("🚀 RuWave chatbot ready")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("🛑 Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

func buildGraph(
	cfg *config.Config,
	domain *config.DomainConfig,
	prices *services.PriceService,
	source *services.PlaylistSource,
	resolver timewindow.Resolver,
	scope services.ClosestScope,
	chat llm.ChatModel,
	m *metrics.Metrics,
) (core.GraphProcessor, error) {
	return nodes.NewIntentGraph(
		nodes.NewIntentNode(prices, domain.Playlist.IntentPhrases),
		nodes.NewPriceNode(prices),
		nodes.NewPlaylistNode(source, resolver, services.NewPlaylistLookup(scope), cfg.Playlist.MaxResults),
		nodes.NewFallbackNode(chat, domain.Fallback.Persona, domain.Fallback.Placeholder,
			nodes.WithRateLimit(cfg.LLM.RateLimit, cfg.LLM.RateBurst),
			nodes.WithFallbackMetrics(m),
		),
	)
}

// priceReloader re-reads the domain file; a failed read keeps the current table
func priceReloader(path string, prices *services.PriceService) func(context.Context) error {
	return func(ctx context.Context) error {
		domain, err := config.LoadDomain(path)
		if err != nil {
			return fmt.Errorf("price reload from %s: %w", path, err)
		}
		prices.Replace(domain.Prices)
		logger.Debug().Int("prices", len(domain.Prices)).Msg("💰 Price table reloaded")
		return nil
	}
}
