// Package forum defines the unified record schema every source adapter
// emits, plus the per-run quote resolution index and the article
// content extractor.
package forum

import (
	"time"
)

// Author identifies a forum user. ID is minted from the username within
// the source's user namespace, so the same username on the same source
// always maps to the same author id.
type Author struct {
	ID        string `json:"id"`
	SourceID  string `json:"source_id"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
	Role      string `json:"role"`
	Signature string `json:"signature,omitempty"`
}

// Media is an attachment referenced by a post or reply body.
type Media struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
}

// Content is a normalized body: plain or marked-up text plus extracted
// attachments.
type Content struct {
	Text   string  `json:"text"`
	Format string  `json:"format"`
	Media  []Media `json:"media"`
}

// Category is the source-side section a post was found in.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Stats carries site-reported counters. They are snapshots taken at
// crawl time, never accumulated by this system.
type Stats struct {
	Views    int `json:"views"`
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
	Replies  int `json:"replies"`
	Shares   int `json:"shares"`
}

// Post is the unified representation of a top-level forum item.
type Post struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Title     string    `json:"title"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Category  Category  `json:"category"`
	Tags      []string  `json:"tags"`
	Author    Author    `json:"author"`
	Stats     Stats     `json:"stats"`
}

// ReplyStats mirrors Stats for replies; most sources only report votes
// at reply level.
type ReplyStats struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
}

// Reply is a comment nested under a post. QuoteID points at another
// reply of the same post when an inline quote was resolved during the
// run, and is empty otherwise. QuotedUsers lists the display names the
// reply referenced regardless of whether resolution succeeded.
type Reply struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	Content     Content    `json:"content"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Author      Author     `json:"author"`
	ParentID    string     `json:"parent_id"`
	QuoteID     string     `json:"quote_id"`
	Stats       ReplyStats `json:"stats"`
	QuotedUsers []string   `json:"quoted_users"`
}

// SourceRef records where an envelope was scraped from.
type SourceRef struct {
	Forum   string `json:"forum"`
	URL     string `json:"url"`
	Section string `json:"section"`
}

// Metadata is crawl-time bookkeeping attached to each envelope.
type Metadata struct {
	CrawledAt time.Time `json:"crawled_at"`
	Language  string    `json:"language"`
	Keywords  []string  `json:"keywords"`
	IsNSFW    bool      `json:"is_nsfw"`
}

// Envelope is the unit of storage: one post with its replies and crawl
// metadata. Weekly buckets are flat sequences of envelopes, unique by
// post id.
type Envelope struct {
	Post     Post      `json:"post"`
	Source   SourceRef `json:"source"`
	Replies  []Reply   `json:"replies"`
	Metadata Metadata  `json:"metadata"`
}
