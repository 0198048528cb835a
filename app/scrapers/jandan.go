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

func init() {
	Register("jandan", func(client *fetch.Client, config *sources.Config) Scraper {
		return NewJandan(client, config)
	})
}

// Jandan scrapes the jandan.net hot-comment board. Each hot comment
// becomes a post; its tucao thread becomes the replies, with inline
// quote links resolved through a per-run reference index.
type Jandan struct {
	client  *fetch.Client
	config  *sources.Config
	baseURL string
}

func NewJandan(client *fetch.Client, config *sources.Config) *Jandan {
	return &Jandan{
		client:  client,
		config:  config,
		baseURL: "https://jandan.net",
	}
}

func (j *Jandan) ID() string { return "jandan" }

func (j *Jandan) Name() string { return "煎蛋网" }

func (j *Jandan) Scrape(ctx context.Context) ([]forum.Envelope, error) {
	result := j.client.Get(ctx, j.baseURL+"/top-comments")
	if !result.Success {
		return nil, fmt.Errorf("failed to fetch top comments page: %w", result.Err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.Text()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse top comments page: %w", err)
	}

	refs := forum.NewRefIndex()
	crawledAt := time.Now()

	var envelopes []forum.Envelope
	doc.Find("ol.commentlist > li").Each(func(i int, sel *goquery.Selection) {
		env, ok := j.parseComment(ctx, sel, refs, crawledAt)
		if !ok {
			return
		}
		envelopes = append(envelopes, env)
	})

	if len(envelopes) == 0 {
		return nil, fmt.Errorf("no hot comments parsed")
	}

	slog.Info("Jandan scrape completed", "posts", len(envelopes), "indexed_refs", refs.Len())
	return envelopes, nil
}

// parseComment turns one hot-comment list item into an envelope.
// Failures isolate to the item: a comment that cannot be parsed is
// skipped, a tucao fetch failure yields a post with empty replies.
func (j *Jandan) parseComment(ctx context.Context, sel *goquery.Selection, refs *forum.RefIndex, crawledAt time.Time) (forum.Envelope, bool) {
	nativeID := strings.TrimPrefix(sel.AttrOr("id", ""), "comment-")
	if nativeID == "" {
		return forum.Envelope{}, false
	}

	author := strings.TrimSpace(sel.Find(".author strong").First().Text())
	if author == "" {
		author = "匿名用户"
	}

	timeText := strings.TrimSpace(sel.Find(".author small").First().Text())
	createdAt := parseRelativeTime(timeText, crawledAt)

	contentHTML, _ := goquery.OuterHtml(sel.Find(".text p").First())
	plainText, _, media := j.parseBody(contentHTML)

	category := strings.TrimSpace(strings.ReplaceAll(sel.Find(".text small b").First().Text(), "@", ""))

	likes := parseCount(sel.Find(".jandan-vote .comment-like + span").First().Text())
	dislikes := parseCount(sel.Find(".jandan-vote .comment-unlike + span").First().Text())
	tucaoCount := parseCount(sel.Find(".tucao-btn").First().Text())

	postID := identity.Derive("jandan_comment", nativeID)
	refs.Add(nativeID, postID)

	post := forum.Post{
		ID:       postID,
		SourceID: nativeID,
		Title:    category + "热评",
		Content: forum.Content{
			Text:   plainText,
			Format: "plaintext",
			Media:  media,
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Category: forum.Category{
			ID:   identity.Derive("jandan_category", category),
			Name: category,
		},
		Tags: []string{category},
		Author: forum.Author{
			ID:       identity.Derive("jandan_user", author),
			Username: author,
			Role:     "user",
		},
		Stats: forum.Stats{
			Likes:    likes,
			Dislikes: dislikes,
			Replies:  tucaoCount,
		},
	}

	var replies []forum.Reply
	if tucaoCount > 0 {
		replies = j.fetchTucao(ctx, nativeID, postID, refs, crawledAt)
	}

	return forum.Envelope{
		Post: post,
		Source: forum.SourceRef{
			Forum:   "jandan",
			URL:     fmt.Sprintf("%s/t/%s", j.baseURL, nativeID),
			Section: category,
		},
		Replies: replies,
		Metadata: forum.Metadata{
			CrawledAt: crawledAt,
			Language:  "zh-CN",
			Keywords:  []string{category, "热评", "煎蛋"},
		},
	}, true
}

type tucaoItem struct {
	CommentID      flexID  `json:"comment_ID"`
	CommentAuthor  string  `json:"comment_author"`
	CommentContent string  `json:"comment_content"`
	CommentDate    string  `json:"comment_date"`
	CommentDateInt int64   `json:"comment_date_int"`
	VotePositive   flexInt `json:"vote_positive"`
	VoteNegative   flexInt `json:"vote_negative"`
}

type tucaoResponse struct {
	Tucao    []tucaoItem `json:"tucao"`
	HotTucao []tucaoItem `json:"hot_tucao"`
}

// fetchTucao loads the tucao thread for one hot comment and converts
// it to replies. Hot and normal tucao are merged keep-first by native
// id. Any failure returns an empty reply list, never an error.
func (j *Jandan) fetchTucao(ctx context.Context, nativeID, postID string, refs *forum.RefIndex, crawledAt time.Time) []forum.Reply {
	url := fmt.Sprintf("%s/api/tucao/list/%s", j.baseURL, nativeID)

	result := j.client.Get(ctx, url)
	if !result.Success {
		slog.Warn("Failed to fetch tucao thread", "comment", nativeID, "error", result.Err)
		return nil
	}

	var response tucaoResponse
	if err := result.DecodeJSON(&response); err != nil {
		slog.Warn("Tucao response is not valid JSON", "comment", nativeID, "error", err)
		return nil
	}

	seen := make(map[string]bool)
	var replies []forum.Reply
	for _, item := range append(response.HotTucao, response.Tucao...) {
		tucaoID := item.CommentID.String()
		if tucaoID == "" || seen[tucaoID] {
			continue
		}
		seen[tucaoID] = true
		replies = append(replies, j.convertTucao(item, tucaoID, postID, refs, crawledAt))
	}

	return replies
}

func (j *Jandan) convertTucao(item tucaoItem, tucaoID, postID string, refs *forum.RefIndex, crawledAt time.Time) forum.Reply {
	plainText, markers, _ := j.parseBody(item.CommentContent)

	createdAt := crawledAt
	if item.CommentDateInt > 0 {
		createdAt = time.Unix(item.CommentDateInt, 0)
	} else if item.CommentDate != "" {
		createdAt = parseTimestamp(item.CommentDate, crawledAt)
	}

	replyID := identity.Derive("jandan_tucao", tucaoID)
	refs.Add(tucaoID, replyID)

	author := item.CommentAuthor
	if author == "" {
		author = "匿名用户"
	}

	return forum.Reply{
		ID:       replyID,
		SourceID: tucaoID,
		Content: forum.Content{
			Text:   plainText,
			Format: "plaintext",
			Media:  []forum.Media{},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Author: forum.Author{
			ID:       identity.Derive("jandan_user", author),
			Username: author,
			Role:     "user",
		},
		ParentID: postID,
		QuoteID:  refs.Resolve(markers),
		Stats: forum.ReplyStats{
			Likes:    item.VotePositive.Int(),
			Dislikes: item.VoteNegative.Int(),
		},
		QuotedUsers: forum.QuotedUsers(markers),
	}
}

// parseBody extracts the plain text, quote markers and inline images
// from a comment body fragment. Quote links look like
// <a class="tucao-link" data-id="123">@someone</a>.
func (j *Jandan) parseBody(contentHTML string) (string, []forum.QuoteMarker, []forum.Media) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(contentHTML))
	if err != nil {
		return strings.TrimSpace(contentHTML), nil, nil
	}

	var markers []forum.QuoteMarker
	doc.Find("a.tucao-link").Each(func(i int, link *goquery.Selection) {
		markers = append(markers, forum.QuoteMarker{
			NativeID:   link.AttrOr("data-id", ""),
			QuotedUser: strings.ReplaceAll(strings.TrimSpace(link.Text()), "@", ""),
		})
	})

	var media []forum.Media
	doc.Find("img").Each(func(i int, img *goquery.Selection) {
		url := img.AttrOr("src", "")
		if url == "" {
			return
		}
		thumbnail := img.AttrOr("org_src", "")
		if thumbnail == "" {
			thumbnail = url
		}
		media = append(media, forum.Media{
			Type:        "image",
			URL:         url,
			Description: img.AttrOr("alt", ""),
			Thumbnail:   thumbnail,
		})
	})

	return strings.TrimSpace(doc.Text()), markers, media
}

// parseRelativeTime handles jandan's relative timestamps ("3小时前",
// "15分钟前", "2天前"). Anything else reads as the crawl time.
func parseRelativeTime(text string, now time.Time) time.Time {
	for _, unit := range []struct {
		marker string
		d      time.Duration
	}{
		{"小时", time.Hour},
		{"分钟", time.Minute},
		{"天", 24 * time.Hour},
	} {
		if idx := strings.Index(text, unit.marker); idx > 0 {
			n := parseCount(text[:idx])
			if n > 0 {
				return now.Add(-time.Duration(n) * unit.d)
			}
		}
	}
	return now
}
