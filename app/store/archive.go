package store

import (
	"fmt"
	"log/slog"
	"path"
)

// Archive moves weekly buckets beyond the retention window into the
// source's archive/ subdirectory. The weeksToKeep newest buckets stay
// in place, the remainder are moved (not copied). Returns true when at
// least one bucket was archived; re-running over already-archived data
// is a no-op returning false.
func (s *Store) Archive(sourceID string, weeksToKeep int) (bool, error) {
	lock := s.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	weeks, err := s.ListWeeks(sourceID)
	if err != nil {
		return false, err
	}
	if len(weeks) <= weeksToKeep {
		return false, nil
	}

	archiveDir := path.Join(s.dataDir, sourceID, archiveDirName)
	if err := s.fs.MkdirAll(archiveDir, 0755); err != nil {
		return false, fmt.Errorf("failed to create archive directory: %w", err)
	}

	archived := false
	for _, week := range weeks[weeksToKeep:] {
		fileName := weekFilePrefix + week + weekFileSuffix
		src := s.bucketPath(sourceID, week)
		dst := path.Join(archiveDir, fileName)

		if err := s.fs.Rename(src, dst); err != nil {
			return archived, fmt.Errorf("failed to archive %s: %w", fileName, err)
		}
		slog.Info("Bucket archived", "source", sourceID, "file", fileName)
		archived = true
	}

	if archived {
		if err := s.RebuildIndex(sourceID, ""); err != nil {
			return archived, fmt.Errorf("failed to rebuild source index after archiving: %w", err)
		}
	}

	return archived, nil
}
