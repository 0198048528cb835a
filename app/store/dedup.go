package store

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
)

// DedupReport summarizes a deduplication pass over a bucket.
type DedupReport struct {
	Original   int
	Unique     int
	Duplicates int
	// Occurrences dropped per post id
	ByID map[string]int
}

// Deduplicate rewrites the bucket at path keeping only the first
// occurrence of each post id. Entries without a post id are never
// considered duplicates of anything and are always kept. This is the
// same pass Save applies on every write; the standalone form exists
// for buckets written by older versions.
func (s *Store) Deduplicate(path string) (*DedupReport, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bucket: %w", err)
	}

	entries, _, err := parseBucket(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket: %w", err)
	}

	unique, report := dedupEntries(entries)

	if err := s.writeJSONAtomic(path, entriesValue(unique)); err != nil {
		return nil, fmt.Errorf("failed to rewrite bucket: %w", err)
	}

	slog.Info("Bucket deduplicated", "path", path, "original", report.Original, "unique", report.Unique, "duplicates", report.Duplicates)
	return report, nil
}

// dedupEntries keeps the first occurrence of each distinct post id,
// preserving order.
func dedupEntries(entries []json.RawMessage) ([]json.RawMessage, *DedupReport) {
	report := &DedupReport{
		Original: len(entries),
		ByID:     make(map[string]int),
	}

	seen := make(map[string]bool, len(entries))
	unique := make([]json.RawMessage, 0, len(entries))

	for _, entry := range entries {
		id := postID(entry)
		if id == "" {
			unique = append(unique, entry)
			continue
		}
		if seen[id] {
			report.Duplicates++
			report.ByID[id]++
			continue
		}
		seen[id] = true
		unique = append(unique, entry)
	}

	report.Unique = len(unique)
	return unique, report
}
