package scrapers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/forum-comb/app/fetch"
	"github.com/lysyi3m/forum-comb/app/forum"
	"github.com/lysyi3m/forum-comb/app/identity"
	"github.com/lysyi3m/forum-comb/app/sources"
)

func init() {
	Register("rss", func(client *fetch.Client, config *sources.Config) Scraper {
		return NewFeedSource(client, config)
	})
}

// FeedSource is the generic adapter for RSS/Atom feeds. Feed entries
// become posts with no replies; it lets any syndicated site join the
// unified store through configuration alone.
type FeedSource struct {
	client *fetch.Client
	config *sources.Config
	parser *gofeed.Parser
}

func NewFeedSource(client *fetch.Client, config *sources.Config) *FeedSource {
	return &FeedSource{
		client: client,
		config: config,
		parser: gofeed.NewParser(),
	}
}

func (f *FeedSource) ID() string {
	return f.config.ID
}

func (f *FeedSource) Name() string {
	if f.config.Name != "" {
		return f.config.Name
	}
	return f.config.ID
}

func (f *FeedSource) Scrape(ctx context.Context) ([]forum.Envelope, error) {
	result := f.client.Get(ctx, f.config.URL)
	if !result.Success {
		return nil, fmt.Errorf("failed to fetch feed: %w", result.Err)
	}

	parsed, err := f.parser.ParseString(result.Text())
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	language := f.config.Settings.Language
	if language == "" {
		language = parsed.Language
	}

	limit := f.config.Settings.MaxItems
	if limit <= 0 || limit > len(parsed.Items) {
		limit = len(parsed.Items)
	}

	crawledAt := time.Now()
	envelopes := make([]forum.Envelope, 0, limit)
	for _, item := range parsed.Items[:limit] {
		envelopes = append(envelopes, f.buildEnvelope(item, parsed.Title, language, crawledAt))
	}

	if len(envelopes) == 0 {
		return nil, fmt.Errorf("feed %s contains no items", f.config.ID)
	}

	slog.Info("Feed scrape completed", "source", f.config.ID, "posts", len(envelopes))
	return envelopes, nil
}

func (f *FeedSource) buildEnvelope(item *gofeed.Item, feedTitle, language string, crawledAt time.Time) forum.Envelope {
	namespace := f.config.ID + "_item"

	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}

	text := item.Content
	if text == "" {
		text = item.Description
	}

	createdAt := crawledAt
	if item.PublishedParsed != nil {
		createdAt = *item.PublishedParsed
	}
	updatedAt := createdAt
	if item.UpdatedParsed != nil {
		updatedAt = *item.UpdatedParsed
	}

	author := ""
	if item.Author != nil {
		author = strings.TrimSpace(item.Author.Name)
	}
	if author == "" {
		author = feedTitle
	}

	category := feedTitle
	if len(item.Categories) > 0 {
		category = item.Categories[0]
	}

	var media []forum.Media
	if item.Image != nil && item.Image.URL != "" {
		media = append(media, forum.Media{
			Type:        "image",
			URL:         item.Image.URL,
			Description: item.Image.Title,
			Thumbnail:   item.Image.URL,
		})
	}

	return forum.Envelope{
		Post: forum.Post{
			ID:       identity.Derive(namespace, guid),
			SourceID: guid,
			Title:    item.Title,
			Content: forum.Content{
				Text:   text,
				Format: "html",
				Media:  media,
			},
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
			Category: forum.Category{
				ID:   identity.Derive(f.config.ID+"_category", category),
				Name: category,
			},
			Tags: item.Categories,
			Author: forum.Author{
				ID:       identity.Derive(f.config.ID+"_user", author),
				SourceID: author,
				Username: author,
				Role:     "user",
			},
		},
		Source: forum.SourceRef{
			Forum:   f.config.ID,
			URL:     item.Link,
			Section: category,
		},
		Replies: nil,
		Metadata: forum.Metadata{
			CrawledAt: crawledAt,
			Language:  language,
			Keywords:  f.config.Settings.Keywords,
		},
	}
}
