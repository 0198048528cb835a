package api

import (
	"github.com/lysyi3m/forum-comb/app/fetch"
	"github.com/lysyi3m/forum-comb/app/sources"
	"github.com/lysyi3m/forum-comb/app/store"
	"github.com/lysyi3m/forum-comb/app/tasks"
)

type Handler struct {
	st          *store.Store
	configCache *sources.ConfigCache
	client      *fetch.Client
	filterer    *sources.Filterer
	scheduler   tasks.TaskSchedulerInterface
}
