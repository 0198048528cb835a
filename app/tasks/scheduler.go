package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lysyi3m/forum-comb/app/cfg"
	"github.com/lysyi3m/forum-comb/app/fetch"
	"github.com/lysyi3m/forum-comb/app/forum"
	"github.com/lysyi3m/forum-comb/app/sources"
	"github.com/lysyi3m/forum-comb/app/store"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	configCache      *sources.ConfigCache
	st               *store.Store
	client           *fetch.Client
	filterer         *sources.Filterer
	contentExtractor *forum.ContentExtractor
	archiveWeeks     int
	interval         time.Duration
	workerCount      int
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	taskQueue        chan TaskInterface

	// Per-source refresh bookkeeping; sources run again once their
	// refresh_interval has elapsed since the last enqueue.
	dueMu   sync.Mutex
	nextRun map[string]time.Time
}

func NewScheduler(configCache *sources.ConfigCache, st *store.Store, client *fetch.Client,
	filterer *sources.Filterer, contentExtractor *forum.ContentExtractor) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		configCache:      configCache,
		st:               st,
		client:           client,
		filterer:         filterer,
		contentExtractor: contentExtractor,
		archiveWeeks:     cfg.ArchiveWeeks,
		interval:         time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount:      cfg.WorkerCount,
		ctx:              ctx,
		cancel:           cancel,
		taskQueue:        make(chan TaskInterface, 300),
		nextRun:          make(map[string]time.Time),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueDueTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueDueTasks()
			}
		}
	}()

}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueDueTasks() {
	sourceConfigs := s.configCache.GetEnabledConfigs()
	if len(sourceConfigs) == 0 {
		slog.Debug("No enabled source configurations found")
		return
	}

	now := time.Now()

	for _, sourceConfig := range sourceConfigs {
		if !s.markDue(sourceConfig, now) {
			slog.Debug("Source not due for refresh yet", "source", sourceConfig.ID)
			continue
		}

		scrapeTask := NewScrapeSourceTask(sourceConfig, s.client, s.filterer, s.st)
		if err := s.EnqueueTask(scrapeTask); err != nil {
			slog.Warn("Failed to enqueue ScrapeSourceTask", "source", sourceConfig.ID, "error", err)
			continue
		}

		if sourceConfig.Settings.ExtractContent {
			extractTask := NewExtractContentTask(sourceConfig, s.client, s.contentExtractor, s.st)
			if err := s.EnqueueTask(extractTask); err != nil {
				slog.Warn("Failed to enqueue ExtractContentTask", "source", sourceConfig.ID, "error", err)
			}
		}

		archiveTask := NewArchiveSourceTask(sourceConfig.ID, s.st, s.archiveWeeks)
		if err := s.EnqueueTask(archiveTask); err != nil {
			slog.Warn("Failed to enqueue ArchiveSourceTask", "source", sourceConfig.ID, "error", err)
		}
	}
}

// markDue reports whether the source should run now and, if so, books
// its next slot.
func (s *Scheduler) markDue(sourceConfig *sources.Config, now time.Time) bool {
	s.dueMu.Lock()
	defer s.dueMu.Unlock()

	next, seen := s.nextRun[sourceConfig.ID]
	if seen && now.Before(next) {
		return false
	}

	s.nextRun[sourceConfig.ID] = now.Add(time.Duration(sourceConfig.Settings.RefreshInterval) * time.Second)
	return true
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "source", task.GetSourceID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}

// RunOnce scrapes every enabled source sequentially and applies
// retention, then returns. Used by the --run-once batch mode.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	sourceConfigs := s.configCache.GetEnabledConfigs()
	if len(sourceConfigs) == 0 {
		slog.Info("No enabled sources configured")
		return nil
	}

	ids := make([]string, 0, len(sourceConfigs))
	for id := range sourceConfigs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	succeeded := 0
	for _, id := range ids {
		sourceConfig := sourceConfigs[id]

		scrapeTask := NewScrapeSourceTask(sourceConfig, s.client, s.filterer, s.st)
		scrapeTask.Start()
		if err := scrapeTask.Execute(ctx); err != nil {
			slog.Error("Source scrape failed", "source", id, "error", err)
			continue
		}
		succeeded++

		if sourceConfig.Settings.ExtractContent {
			extractTask := NewExtractContentTask(sourceConfig, s.client, s.contentExtractor, s.st)
			extractTask.Start()
			if err := extractTask.Execute(ctx); err != nil {
				slog.Error("Content extraction failed", "source", id, "error", err)
			}
		}

		archiveTask := NewArchiveSourceTask(id, s.st, s.archiveWeeks)
		archiveTask.Start()
		if err := archiveTask.Execute(ctx); err != nil {
			slog.Error("Archive pass failed", "source", id, "error", err)
		}
	}

	slog.Info(fmt.Sprintf("%d/%d scrapers succeeded", succeeded, len(ids)))

	if succeeded == 0 {
		return fmt.Errorf("all %d scrapers failed", len(ids))
	}
	return nil
}
