package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/forum-comb/app/store"
)

type ArchiveSourceTask struct {
	Task
	st          *store.Store
	weeksToKeep int
}

func NewArchiveSourceTask(sourceID string, st *store.Store, weeksToKeep int) *ArchiveSourceTask {
	return &ArchiveSourceTask{
		Task:        NewTask(TaskTypeArchiveSource, sourceID),
		st:          st,
		weeksToKeep: weeksToKeep,
	}
}

func (t *ArchiveSourceTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	archived, err := t.st.Archive(t.SourceID, t.weeksToKeep)
	if err != nil {
		return fmt.Errorf("failed to archive source: %w", err)
	}

	if archived {
		slog.Info("Task completed",
			"type", t.GetType(),
			"source", t.SourceID,
			"duration", t.GetDuration(),
			"weeks_kept", t.weeksToKeep)
	} else {
		slog.Debug("No week files beyond the retention window", "source", t.SourceID)
	}

	return nil
}
