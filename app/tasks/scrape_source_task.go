package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/forum-comb/app/fetch"
	"github.com/lysyi3m/forum-comb/app/scrapers"
	"github.com/lysyi3m/forum-comb/app/sources"
	"github.com/lysyi3m/forum-comb/app/store"
)

type ScrapeSourceTask struct {
	Task
	SourceConfig *sources.Config
	client       *fetch.Client
	filterer     *sources.Filterer
	st           *store.Store
}

func NewScrapeSourceTask(sourceConfig *sources.Config, client *fetch.Client, filterer *sources.Filterer, st *store.Store) *ScrapeSourceTask {
	return &ScrapeSourceTask{
		Task:         NewTask(TaskTypeScrapeSource, sourceConfig.ID),
		SourceConfig: sourceConfig,
		client:       client,
		filterer:     filterer,
		st:           st,
	}
}

func (t *ScrapeSourceTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.SourceConfig.Settings.Enabled {
		slog.Debug("Source disabled, skipping", "source", t.SourceID)
		return nil
	}

	adapter := t.SourceConfig.Adapter
	if adapter == "" {
		adapter = t.SourceConfig.ID
	}

	scraper, err := scrapers.New(adapter, t.client, t.SourceConfig)
	if err != nil {
		return fmt.Errorf("failed to build scraper: %w", err)
	}

	envelopes, err := scraper.Scrape(ctx)
	if err != nil {
		return fmt.Errorf("failed to scrape source: %w", err)
	}

	filtered := t.filterer.Run(envelopes, t.SourceConfig)

	displayName := t.SourceConfig.Name
	if displayName == "" {
		displayName = scraper.Name()
	}

	bucketPath, err := t.st.Save(t.SourceID, displayName, filtered, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save envelopes: %w", err)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"source", t.SourceID,
		"duration", t.GetDuration(),
		"scraped", len(envelopes),
		"stored", len(filtered),
		"filtered", len(envelopes)-len(filtered),
		"bucket", bucketPath)

	return nil
}
