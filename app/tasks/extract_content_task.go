package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/forum-comb/app/fetch"
	"github.com/lysyi3m/forum-comb/app/forum"
	"github.com/lysyi3m/forum-comb/app/sources"
	"github.com/lysyi3m/forum-comb/app/store"
)

// ExtractContentTask backfills posts stored with an empty body. Sources
// whose entries only carry a link (feed items, mostly) opt in with
// extract_content; the linked page is fetched and reduced to readable
// article content.
type ExtractContentTask struct {
	Task
	SourceConfig     *sources.Config
	client           *fetch.Client
	contentExtractor *forum.ContentExtractor
	st               *store.Store
}

func NewExtractContentTask(sourceConfig *sources.Config, client *fetch.Client, contentExtractor *forum.ContentExtractor, st *store.Store) *ExtractContentTask {
	return &ExtractContentTask{
		Task:             NewTask(TaskTypeExtractContent, sourceConfig.ID),
		SourceConfig:     sourceConfig,
		client:           client,
		contentExtractor: contentExtractor,
		st:               st,
	}
}

func (t *ExtractContentTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.SourceConfig.Settings.ExtractContent {
		slog.Debug("Content extraction disabled for source", "source", t.SourceID)
		return nil
	}

	now := time.Now()
	envelopes, err := t.st.Load(t.SourceID, now)
	if err != nil {
		return fmt.Errorf("failed to load current bucket: %w", err)
	}
	if len(envelopes) == 0 {
		slog.Debug("No stored envelopes to extract content for", "source", t.SourceID)
		return nil
	}

	successCount := 0
	errorCount := 0
	texts := make(map[string]string)

	for _, env := range envelopes {
		if env.Post.Content.Text != "" || env.Source.URL == "" {
			continue
		}
		if len(texts) >= t.SourceConfig.Settings.MaxItems {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		extractCtx, cancel := context.WithTimeout(ctx, time.Duration(t.SourceConfig.Settings.Timeout)*time.Second)
		content, err := t.extractFromPage(extractCtx, env.Source.URL)
		cancel()

		if err != nil {
			slog.Error("Failed to extract content", "source", t.SourceID, "post_id", env.Post.ID, "url", env.Source.URL, "error", err)
			errorCount++
			continue
		}

		texts[env.Post.ID] = content
		successCount++
	}

	if len(texts) > 0 {
		if _, err := t.st.UpdateContent(t.SourceID, now, texts); err != nil {
			return fmt.Errorf("failed to store extracted content: %w", err)
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"source", t.SourceID,
		"duration", t.GetDuration(),
		"success", successCount,
		"errors", errorCount)

	return nil
}

func (t *ExtractContentTask) extractFromPage(ctx context.Context, url string) (string, error) {
	result := t.client.Get(ctx, url)
	if !result.Success {
		return "", fmt.Errorf("failed to fetch page: %w", result.Err)
	}

	content, err := t.contentExtractor.Run(result.Body)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	return content, nil
}
