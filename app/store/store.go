// Package store persists unified envelopes as weekly-bucketed JSON
// files with merge-on-write, keep-first deduplication and a rebuildable
// cross-source index.
//
// Layout under the data directory:
//
//	<source>/week_<YYYY-MM-DD>.json   flat JSON array of envelopes
//	<source>/archive/                 buckets beyond the retention window
//	sources.json                      source id -> index entry
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/lysyi3m/forum-comb/app/forum"
)

const (
	weekFilePrefix = "week_"
	weekFileSuffix = ".json"
	indexFileName  = "sources.json"
	archiveDirName = "archive"
	dateLayout     = "2006-01-02"
)

type Store struct {
	fs      afero.Fs
	dataDir string

	// One writer per source at a time; guards the read-merge-write
	// sequence of Save against lost updates.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(fs afero.Fs, dataDir string) *Store {
	return &Store{
		fs:      fs,
		dataDir: dataDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// WeekStart returns the Monday of t's week. A Monday maps to itself.
func WeekStart(t time.Time) time.Time {
	daysBack := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -daysBack)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}

// Save merges a new batch of envelopes into the weekly bucket for
// (sourceID, date) and rewrites the bucket atomically. The existing
// bucket may be in the legacy {meta, data} object form or contain
// nested arrays; both are flattened on read, only the flat array form
// is written. Duplicates by post id are removed keep-first on every
// write. A successful write triggers an index rebuild for the source.
func (s *Store) Save(sourceID, displayName string, envelopes []forum.Envelope, date time.Time) (string, error) {
	lock := s.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	weekStart := WeekStart(date).Format(dateLayout)
	bucketPath := s.bucketPath(sourceID, weekStart)

	if err := s.fs.MkdirAll(path.Dir(bucketPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create source directory: %w", err)
	}

	existing := s.loadEntriesLenient(bucketPath)

	for i := range envelopes {
		raw, err := json.Marshal(&envelopes[i])
		if err != nil {
			return "", fmt.Errorf("failed to encode envelope: %w", err)
		}
		existing = append(existing, raw)
	}

	merged, report := dedupEntries(existing)
	if report.Duplicates > 0 {
		slog.Debug("Removed duplicate envelopes during merge", "source", sourceID, "week", weekStart, "duplicates", report.Duplicates)
	}

	if err := s.writeJSONAtomic(bucketPath, entriesValue(merged)); err != nil {
		return "", fmt.Errorf("failed to write bucket: %w", err)
	}

	if err := s.RebuildIndex(sourceID, displayName); err != nil {
		return "", fmt.Errorf("failed to rebuild source index: %w", err)
	}

	slog.Info("Bucket saved", "source", sourceID, "week", weekStart, "new", len(envelopes), "total", len(merged), "duplicates_removed", report.Duplicates)
	return bucketPath, nil
}

// Load returns the envelopes stored for the week containing date, or
// nil when no bucket exists. A corrupt bucket also reads as absent.
func (s *Store) Load(sourceID string, date time.Time) ([]forum.Envelope, error) {
	weekStart := WeekStart(date).Format(dateLayout)
	bucketPath := s.bucketPath(sourceID, weekStart)

	ok, err := afero.Exists(s.fs, bucketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat bucket: %w", err)
	}
	if !ok {
		slog.Warn("Bucket file not found", "source", sourceID, "week", weekStart)
		return nil, nil
	}

	data, err := afero.ReadFile(s.fs, bucketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bucket: %w", err)
	}

	entries, _, err := parseBucket(data)
	if err != nil {
		slog.Error("Failed to parse bucket", "path", bucketPath, "error", err)
		return nil, nil
	}

	envelopes := make([]forum.Envelope, 0, len(entries))
	for _, raw := range entries {
		var env forum.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			slog.Warn("Skipping undecodable bucket entry", "path", bucketPath, "error", err)
			continue
		}
		envelopes = append(envelopes, env)
	}

	return envelopes, nil
}

// UpdateContent fills post content text for the given post ids in the
// week bucket containing date. Entries not named in texts are carried
// through byte-for-byte. Returns the number of entries updated; a
// missing bucket updates nothing.
func (s *Store) UpdateContent(sourceID string, date time.Time, texts map[string]string) (int, error) {
	if len(texts) == 0 {
		return 0, nil
	}

	lock := s.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	weekStart := WeekStart(date).Format(dateLayout)
	bucketPath := s.bucketPath(sourceID, weekStart)

	ok, err := afero.Exists(s.fs, bucketPath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat bucket: %w", err)
	}
	if !ok {
		return 0, nil
	}

	entries := s.loadEntriesLenient(bucketPath)
	updated := 0

	for i, entry := range entries {
		text, ok := texts[postID(entry)]
		if !ok {
			continue
		}

		var env forum.Envelope
		if err := json.Unmarshal(entry, &env); err != nil {
			slog.Warn("Skipping undecodable entry during content update", "path", bucketPath, "error", err)
			continue
		}

		env.Post.Content.Text = text
		raw, err := json.Marshal(&env)
		if err != nil {
			return updated, fmt.Errorf("failed to encode updated envelope: %w", err)
		}
		entries[i] = raw
		updated++
	}

	if updated == 0 {
		return 0, nil
	}

	if err := s.writeJSONAtomic(bucketPath, entriesValue(entries)); err != nil {
		return updated, fmt.Errorf("failed to write bucket: %w", err)
	}

	slog.Debug("Bucket content updated", "source", sourceID, "week", weekStart, "updated", updated)
	return updated, nil
}

// ListWeeks returns the week start dates available for a source, most
// recent first. Files that do not match week_<YYYY-MM-DD>.json are
// ignored.
func (s *Store) ListWeeks(sourceID string) ([]string, error) {
	sourceDir := path.Join(s.dataDir, sourceID)

	ok, err := afero.DirExists(s.fs, sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source directory: %w", err)
	}
	if !ok {
		return nil, nil
	}

	infos, err := afero.ReadDir(s.fs, sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list source directory: %w", err)
	}

	var weeks []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if date, ok := weekFileDate(info.Name()); ok {
			weeks = append(weeks, date)
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(weeks)))
	return weeks, nil
}

func (s *Store) bucketPath(sourceID, weekStart string) string {
	return path.Join(s.dataDir, sourceID, weekFilePrefix+weekStart+weekFileSuffix)
}

func (s *Store) sourceLock(sourceID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[sourceID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sourceID] = lock
	}
	return lock
}

// loadEntriesLenient reads the bucket's current entries, treating a
// missing or unparseable file as empty. Discarding an unreadable
// bucket instead of failing the run is a deliberate
// availability-over-consistency tradeoff.
func (s *Store) loadEntriesLenient(bucketPath string) []json.RawMessage {
	ok, err := afero.Exists(s.fs, bucketPath)
	if err != nil || !ok {
		return nil
	}

	data, err := afero.ReadFile(s.fs, bucketPath)
	if err != nil {
		slog.Warn("Failed to read existing bucket, replacing it", "path", bucketPath, "error", err)
		return nil
	}

	entries, _, err := parseBucket(data)
	if err != nil {
		slog.Warn("Existing bucket is unparseable, replacing it", "path", bucketPath, "error", err)
		return nil
	}

	return entries
}

// parseBucket decodes a bucket file. Supported on read: the flat array
// form (current), arrays with nested sub-arrays (flattened
// recursively), and the legacy {meta, data} object form, whose
// meta.source_name is returned when present.
func parseBucket(data []byte) ([]json.RawMessage, string, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, "", nil
	}

	if trimmed[0] == '{' {
		var legacy struct {
			Meta struct {
				SourceName string `json:"source_name"`
			} `json:"meta"`
			Data []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, "", fmt.Errorf("failed to parse legacy bucket object: %w", err)
		}
		return flattenEntries(legacy.Data), legacy.Meta.SourceName, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, "", fmt.Errorf("failed to parse bucket array: %w", err)
	}

	return flattenEntries(raw), "", nil
}

// flattenEntries expands any nested arrays into a single flat
// sequence, preserving order.
func flattenEntries(raw []json.RawMessage) []json.RawMessage {
	flat := make([]json.RawMessage, 0, len(raw))
	for _, entry := range raw {
		trimmed := bytes.TrimLeft(entry, " \t\r\n")
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var nested []json.RawMessage
			if err := json.Unmarshal(entry, &nested); err == nil {
				flat = append(flat, flattenEntries(nested)...)
				continue
			}
		}
		flat = append(flat, entry)
	}
	return flat
}

// postID extracts post.id from a raw entry; "" when the entry has no
// comparable identity.
func postID(entry json.RawMessage) string {
	var probe struct {
		Post struct {
			ID string `json:"id"`
		} `json:"post"`
	}
	if err := json.Unmarshal(entry, &probe); err != nil {
		return ""
	}
	return probe.Post.ID
}

// entriesValue keeps an empty bucket encoded as [] rather than null.
func entriesValue(entries []json.RawMessage) []json.RawMessage {
	if entries == nil {
		return []json.RawMessage{}
	}
	return entries
}

// writeJSONAtomic writes v as indented UTF-8 JSON (non-ASCII left
// unescaped) to a temp file and renames it into place, so readers see
// either the old or the fully-new content.
func (s *Store) writeJSONAtomic(filePath string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := afero.WriteFile(s.fs, tmpPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := s.fs.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filePath, err)
	}

	return nil
}

func weekFileDate(fileName string) (string, bool) {
	if !strings.HasPrefix(fileName, weekFilePrefix) || !strings.HasSuffix(fileName, weekFileSuffix) {
		return "", false
	}
	date := strings.TrimSuffix(strings.TrimPrefix(fileName, weekFilePrefix), weekFileSuffix)
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", false
	}
	return date, true
}
