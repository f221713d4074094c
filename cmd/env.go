package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edulead/leadgen-cli/internal/enrich"
	"github.com/edulead/leadgen-cli/internal/store"
	"github.com/edulead/leadgen-cli/internal/validate"
	"github.com/edulead/leadgen-cli/pkg/anthropic"
	"github.com/edulead/leadgen-cli/pkg/extractor"
	"github.com/edulead/leadgen-cli/pkg/scraper"
	"github.com/edulead/leadgen-cli/pkg/serper"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadgen.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// pipelineEnv bundles the store and pipeline built from config.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *enrich.Pipeline
}

func (e *pipelineEnv) Close() {
	_ = e.Store.Close()
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	if purged, err := st.DeleteExpiredVerifications(ctx); err != nil {
		zap.L().Warn("verification cache cleanup failed", zap.Error(err))
	} else if purged > 0 {
		zap.L().Debug("purged expired verifications", zap.Int("rows", purged))
	}

	searchClient := serper.NewClient(cfg.Serper.Key,
		serper.WithBaseURL(cfg.Serper.BaseURL),
		serper.WithLocale(cfg.Serper.Country, cfg.Serper.Language),
	)
	pageClient := scraper.New(
		scraper.WithUserAgent(cfg.Scraper.UserAgent),
		scraper.WithTimeout(time.Duration(cfg.Scraper.TimeoutSecs)*time.Second),
		scraper.WithMaxBodySize(cfg.Scraper.MaxBodyBytes),
	)
	collector := enrich.NewCollector(searchClient, pageClient, cfg.Serper.MaxResults, cfg.Scraper.MaxPages)

	anthropicClient := anthropic.NewClient(cfg.Anthropic.Key)
	extract := extractor.New(anthropicClient,
		extractor.WithModel(cfg.Anthropic.Model),
		extractor.WithMaxTokens(int64(cfg.Anthropic.MaxTokens)),
		extractor.WithChunkSize(cfg.Pipeline.ExtractChunkSize),
	)

	emails := validate.NewEmailVerifier(
		validate.WithStageTimeout(cfg.Validation.StageTimeout()),
		validate.WithSkipSMTP(cfg.Validation.SkipSMTP),
	)

	return &pipelineEnv{
		Store:    st,
		Pipeline: enrich.New(cfg, st, collector, extract, emails),
	}, nil
}
