package scrapers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/forum-comb/app/fetch"
	"github.com/lysyi3m/forum-comb/app/forum"
	"github.com/lysyi3m/forum-comb/app/identity"
	"github.com/lysyi3m/forum-comb/app/sources"
)

const defaultSubreddit = "confessions"

func init() {
	Register("reddit", func(client *fetch.Client, config *sources.Config) Scraper {
		return NewReddit(client, config)
	})
}

// Reddit scrapes a subreddit's weekly top listing through the public
// JSON API. The API reports several fields with shape depending on
// upstream quirks (notably "replies": object or empty string); those
// are normalized through tagged variants at the decode boundary before
// entering unification.
type Reddit struct {
	client    *fetch.Client
	config    *sources.Config
	baseURL   string
	subreddit string
}

func NewReddit(client *fetch.Client, config *sources.Config) *Reddit {
	subreddit := defaultSubreddit
	if config != nil && config.Section != "" {
		subreddit = config.Section
	}
	return &Reddit{
		client:    client,
		config:    config,
		baseURL:   "https://www.reddit.com",
		subreddit: subreddit,
	}
}

func (r *Reddit) ID() string { return "reddit" }

func (r *Reddit) Name() string { return "Reddit" }

// redditListing is the {kind, data: {children}} wrapper the API uses
// at every level. The "replies" field of a comment is either such a
// listing or the empty string; UnmarshalJSON folds both variants into
// one shape.
type redditListing struct {
	Data struct {
		Children []redditThing `json:"children"`
	} `json:"data"`
}

func (l *redditListing) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] == '"' || bytes.Equal(trimmed, []byte("null")) {
		// "" stands for "no replies"
		return nil
	}

	type plain redditListing
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = redditListing(p)
	return nil
}

type redditThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Preview     struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

type redditComment struct {
	ID         string        `json:"id"`
	Body       string        `json:"body"`
	CreatedUTC float64       `json:"created_utc"`
	Author     string        `json:"author"`
	Score      int           `json:"score"`
	Replies    redditListing `json:"replies"`
}

func (r *Reddit) Scrape(ctx context.Context) ([]forum.Envelope, error) {
	listingURL := fmt.Sprintf("%s/r/%s/top/.json?t=week&limit=10", r.baseURL, r.subreddit)

	result := r.client.Get(ctx, listingURL)
	if !result.Success {
		return nil, fmt.Errorf("failed to fetch top listing: %w", result.Err)
	}

	var listing redditListing
	if err := result.DecodeJSON(&listing); err != nil {
		return nil, fmt.Errorf("unexpected listing response: %w", err)
	}

	crawledAt := time.Now()
	var envelopes []forum.Envelope

	for _, thing := range listing.Data.Children {
		if thing.Kind != "t3" {
			continue
		}

		var post redditPost
		if err := json.Unmarshal(thing.Data, &post); err != nil {
			slog.Warn("Skipping malformed post entry", "error", err)
			continue
		}
		if post.ID == "" {
			continue
		}

		envelopes = append(envelopes, r.buildEnvelope(ctx, post, crawledAt))
	}

	if len(envelopes) == 0 {
		return nil, fmt.Errorf("no posts parsed from r/%s", r.subreddit)
	}

	slog.Info("Reddit scrape completed", "subreddit", r.subreddit, "posts", len(envelopes))
	return envelopes, nil
}

func (r *Reddit) buildEnvelope(ctx context.Context, post redditPost, crawledAt time.Time) forum.Envelope {
	postURL := r.baseURL + post.Permalink
	postID := identity.Derive("reddit_post", post.ID)

	var media []forum.Media
	for _, img := range post.Preview.Images {
		url := strings.ReplaceAll(img.Source.URL, "&amp;", "&")
		if url == "" {
			continue
		}
		media = append(media, forum.Media{
			Type:        "image",
			URL:         url,
			Description: post.Title,
			Thumbnail:   url,
		})
	}

	author := post.Author
	if author == "" {
		author = "匿名用户"
	}

	createdAt := time.Unix(int64(post.CreatedUTC), 0)

	return forum.Envelope{
		Post: forum.Post{
			ID:       postID,
			SourceID: post.ID,
			Title:    post.Title,
			Content: forum.Content{
				Text:   post.Selftext,
				Format: "plaintext",
				Media:  media,
			},
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
			Category: forum.Category{
				ID:   identity.Derive("reddit_category", r.subreddit),
				Name: r.subreddit,
			},
			Tags: []string{"confession", "reddit"},
			Author: forum.Author{
				ID:       identity.Derive("reddit_user", author),
				SourceID: author,
				Username: author,
				Role:     "user",
			},
			Stats: forum.Stats{
				Likes:   post.Score,
				Replies: post.NumComments,
			},
		},
		Source: forum.SourceRef{
			Forum:   "reddit",
			URL:     postURL,
			Section: "r/" + r.subreddit,
		},
		Replies: r.fetchComments(ctx, postURL, postID, crawledAt),
		Metadata: forum.Metadata{
			CrawledAt: crawledAt,
			Language:  "en-US",
			Keywords:  []string{"confession", "reddit", "personal"},
		},
	}
}

// fetchComments loads <permalink>.json. The response is a two-element
// array: the post listing and the comment listing. Failures return an
// empty reply list, never an error.
func (r *Reddit) fetchComments(ctx context.Context, postURL, postID string, crawledAt time.Time) []forum.Reply {
	result := r.client.Get(ctx, postURL+".json")
	if !result.Success {
		slog.Warn("Failed to fetch comments", "url", postURL, "error", result.Err)
		return nil
	}

	var listings []redditListing
	if err := result.DecodeJSON(&listings); err != nil {
		slog.Warn("Unexpected comments response", "url", postURL, "error", err)
		return nil
	}
	if len(listings) < 2 {
		slog.Warn("Comments response missing comment listing", "url", postURL)
		return nil
	}

	var replies []forum.Reply
	r.collectComments(listings[1].Data.Children, postID, crawledAt, &replies)
	return replies
}

// collectComments flattens the comment tree into replies attached to
// the post; nested listings arrive through the replies variant decode.
func (r *Reddit) collectComments(children []redditThing, postID string, crawledAt time.Time, out *[]forum.Reply) {
	for _, thing := range children {
		if thing.Kind != "t1" {
			continue
		}

		var comment redditComment
		if err := json.Unmarshal(thing.Data, &comment); err != nil {
			slog.Warn("Skipping malformed comment entry", "error", err)
			continue
		}
		if comment.ID == "" {
			continue
		}

		author := comment.Author
		if author == "" {
			author = "匿名用户"
		}
		createdAt := time.Unix(int64(comment.CreatedUTC), 0)

		*out = append(*out, forum.Reply{
			ID:       identity.Derive("reddit_comment", comment.ID),
			SourceID: comment.ID,
			Content: forum.Content{
				Text:   comment.Body,
				Format: "plaintext",
				Media:  []forum.Media{},
			},
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
			Author: forum.Author{
				ID:       identity.Derive("reddit_user", author),
				SourceID: author,
				Username: author,
				Role:     "user",
			},
			ParentID: postID,
			Stats: forum.ReplyStats{
				Likes: comment.Score,
			},
			QuotedUsers: []string{},
		})

		r.collectComments(comment.Replies.Data.Children, postID, crawledAt, out)
	}
}
