package store

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/spf13/afero"
)

// IndexEntry is the derived catalog record for one source. It is
// rebuilt wholesale from the on-disk buckets and is never the source
// of truth for post content.
type IndexEntry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Files       []string `json:"files"`
	LastUpdated string   `json:"last_updated"`
	FileCount   int      `json:"file_count"`
}

// RebuildIndex replaces the source's entry in sources.json from the
// current set of weekly bucket files. displayName may be empty; the
// name then falls back to a legacy bucket's embedded source_name, the
// prior index entry, and finally the source id.
func (s *Store) RebuildIndex(sourceID, displayName string) error {
	index, err := s.readIndex()
	if err != nil {
		return err
	}

	weeks, err := s.ListWeeks(sourceID)
	if err != nil {
		return err
	}

	files := make([]string, 0, len(weeks))
	for _, week := range weeks {
		files = append(files, weekFilePrefix+week+weekFileSuffix)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	name := displayName
	if name == "" {
		name = s.recoverDisplayName(sourceID, weeks)
	}
	if name == "" {
		if prior, ok := index[sourceID]; ok {
			name = prior.Name
		}
	}
	if name == "" {
		name = sourceID
	}

	index[sourceID] = IndexEntry{
		ID:          sourceID,
		Name:        name,
		Files:       files,
		LastUpdated: time.Now().Format(time.RFC3339),
		FileCount:   len(files),
	}

	if err := s.fs.MkdirAll(s.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return s.writeJSONAtomic(path.Join(s.dataDir, indexFileName), index)
}

// ListSources returns the ids present in the index, sorted.
func (s *Store) ListSources() ([]string, error) {
	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SourceInfo returns the index entry for a source, or nil when the
// source is not indexed.
func (s *Store) SourceInfo(sourceID string) (*IndexEntry, error) {
	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	entry, ok := index[sourceID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *Store) readIndex() (map[string]IndexEntry, error) {
	indexPath := path.Join(s.dataDir, indexFileName)

	ok, err := afero.Exists(s.fs, indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat index: %w", err)
	}
	if !ok {
		return map[string]IndexEntry{}, nil
	}

	data, err := afero.ReadFile(s.fs, indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	index := map[string]IndexEntry{}
	if err := json.Unmarshal(data, &index); err != nil {
		// A corrupt index is rebuildable; start over rather than fail.
		return map[string]IndexEntry{}, nil
	}

	return index, nil
}

// recoverDisplayName reads the most recent parseable bucket looking
// for a legacy embedded source name.
func (s *Store) recoverDisplayName(sourceID string, weeks []string) string {
	for _, week := range weeks {
		data, err := afero.ReadFile(s.fs, s.bucketPath(sourceID, week))
		if err != nil {
			continue
		}
		_, name, err := parseBucket(data)
		if err != nil {
			continue
		}
		if name != "" {
			return name
		}
	}
	return ""
}
