package scrapers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/forum-comb/app/fetch"
	"github.com/lysyi3m/forum-comb/app/forum"
	"github.com/lysyi3m/forum-comb/app/identity"
	"github.com/lysyi3m/forum-comb/app/sources"
)

const (
	askStoryLimit   = 15
	hnCommentLimit  = 100
	askTitlePrefix  = "Ask HN:"
	hnSectionAskHN  = "Ask HN"
	hnAnonymousUser = "匿名用户"
)

func init() {
	Register("hackernews", func(client *fetch.Client, config *sources.Config) Scraper {
		return NewHackerNews(client, config)
	})
}

// HackerNews scrapes the Ask HN front page. Each story becomes a post;
// the story's comment page supplies the replies, capped at
// hnCommentLimit per story.
type HackerNews struct {
	client  *fetch.Client
	config  *sources.Config
	baseURL string
}

func NewHackerNews(client *fetch.Client, config *sources.Config) *HackerNews {
	return &HackerNews{
		client:  client,
		config:  config,
		baseURL: "https://news.ycombinator.com",
	}
}

func (h *HackerNews) ID() string { return "hackernews" }

func (h *HackerNews) Name() string { return "Hacker News" }

func (h *HackerNews) Scrape(ctx context.Context) ([]forum.Envelope, error) {
	result := h.client.Get(ctx, h.baseURL+"/ask")
	if !result.Success {
		return nil, fmt.Errorf("failed to fetch Ask HN page: %w", result.Err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.Text()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Ask HN page: %w", err)
	}

	stories := h.parseStoryRows(doc)
	if len(stories) == 0 {
		return nil, fmt.Errorf("no Ask HN stories parsed")
	}

	crawledAt := time.Now()
	envelopes := make([]forum.Envelope, 0, len(stories))
	for _, story := range stories {
		// Detail failures keep the story with whatever was gathered
		text, replies := h.fetchStoryDetails(ctx, story, crawledAt)
		story.post.Content.Text = text

		envelopes = append(envelopes, forum.Envelope{
			Post: story.post,
			Source: forum.SourceRef{
				Forum:   "hackernews",
				URL:     story.url,
				Section: hnSectionAskHN,
			},
			Replies: replies,
			Metadata: forum.Metadata{
				CrawledAt: crawledAt,
				Language:  "en-US",
				Keywords:  []string{"tech", "startup", "programming", "ask", "question"},
			},
		})
	}

	slog.Info("Hacker News scrape completed", "posts", len(envelopes))
	return envelopes, nil
}

type hnStory struct {
	post forum.Post
	url  string
}

// parseStoryRows walks the listing table and keeps stories whose title
// carries the Ask HN prefix, up to the configured limit.
func (h *HackerNews) parseStoryRows(doc *goquery.Document) []hnStory {
	limit := askStoryLimit
	if h.config != nil && h.config.Settings.MaxItems > 0 && h.config.Settings.MaxItems < limit {
		limit = h.config.Settings.MaxItems
	}

	now := time.Now()
	var stories []hnStory

	doc.Find("tr.athing.submission").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if len(stories) >= limit {
			return false
		}

		nativeID := row.AttrOr("id", "")
		if nativeID == "" {
			return true
		}

		titleLink := row.Find("td.title span.titleline a").First()
		title := strings.TrimSpace(titleLink.Text())
		if !strings.HasPrefix(title, askTitlePrefix) {
			return true
		}

		itemURL := titleLink.AttrOr("href", "")
		if strings.HasPrefix(itemURL, "item?id=") {
			itemURL = h.baseURL + "/" + itemURL
		}

		subtext := row.Next().Find("td.subtext span.subline").First()
		if subtext.Length() == 0 {
			return true
		}

		score := parseCount(subtext.Find("span.score").First().Text())
		author := strings.TrimSpace(subtext.Find("a.hnuser").First().Text())
		if author == "" {
			author = hnAnonymousUser
		}
		createdAt := parseTimestamp(subtext.Find("span.age").First().AttrOr("title", ""), now)

		commentCount := 0
		lastLink := subtext.Find("a").Last()
		if strings.Contains(lastLink.Text(), "comment") {
			commentCount = parseCount(lastLink.Text())
		}

		stories = append(stories, hnStory{
			url: itemURL,
			post: forum.Post{
				ID:       identity.Derive("hackernews_story", nativeID),
				SourceID: nativeID,
				Title:    title,
				Content: forum.Content{
					Format: "html",
					Media:  []forum.Media{},
				},
				CreatedAt: createdAt,
				UpdatedAt: createdAt,
				Category: forum.Category{
					ID:   identity.Derive("hackernews_category", "ask"),
					Name: hnSectionAskHN,
				},
				Tags: []string{hnSectionAskHN, "hacker news", "tech"},
				Author: forum.Author{
					ID:       identity.Derive("hackernews_user", author),
					SourceID: author,
					Username: author,
					Role:     "user",
				},
				Stats: forum.Stats{
					Likes:   score,
					Replies: commentCount,
				},
			},
		})
		return true
	})

	return stories
}

// fetchStoryDetails loads a story's item page for its body text and
// comments. Errors are non-fatal: the story keeps empty text and
// replies.
func (h *HackerNews) fetchStoryDetails(ctx context.Context, story hnStory, crawledAt time.Time) (string, []forum.Reply) {
	result := h.client.Get(ctx, fmt.Sprintf("%s/item?id=%s", h.baseURL, story.post.SourceID))
	if !result.Success {
		slog.Warn("Failed to fetch story details", "story", story.post.SourceID, "error", result.Err)
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.Text()))
	if err != nil {
		slog.Warn("Failed to parse story details", "story", story.post.SourceID, "error", err)
		return "", nil
	}

	text := ""
	if toptext := doc.Find("div.toptext").First(); toptext.Length() > 0 {
		text, _ = goquery.OuterHtml(toptext)
	}

	return text, h.parseComments(doc, story.post.ID, crawledAt)
}

// parseComments extracts the flat comment rows of an item page. HN
// renders the tree as an ordered flat table; all replies attach to the
// post, nesting is not reconstructed.
func (h *HackerNews) parseComments(doc *goquery.Document, postID string, crawledAt time.Time) []forum.Reply {
	var replies []forum.Reply

	doc.Find("tr.athing.comtr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if len(replies) >= hnCommentLimit {
			return false
		}

		nativeID := row.AttrOr("id", "")
		if nativeID == "" {
			return true
		}

		commentDiv := row.Find("div.comment").First()
		if commentDiv.Length() == 0 {
			return true
		}
		text, _ := commentDiv.Html()

		author := strings.TrimSpace(row.Find("a.hnuser").First().Text())
		if author == "" {
			author = hnAnonymousUser
		}

		createdAt := parseTimestamp(row.Find("span.age").First().AttrOr("title", ""), crawledAt)

		replies = append(replies, forum.Reply{
			ID:       identity.Derive("hackernews_comment", nativeID),
			SourceID: nativeID,
			Content: forum.Content{
				Text:   strings.TrimSpace(text),
				Format: "html",
				Media:  []forum.Media{},
			},
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
			Author: forum.Author{
				ID:       identity.Derive("hackernews_user", author),
				SourceID: author,
				Username: author,
				Role:     "user",
			},
			ParentID:    postID,
			QuotedUsers: []string{},
		})

		return true
	})

	return replies
}
