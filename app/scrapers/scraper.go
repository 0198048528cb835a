// Package scrapers holds the source adapter contract and the concrete
// site adapters. Each adapter turns one site's native structures into
// unified envelopes; fetching goes through the fetch collaborator and
// identities through the identity package.
package scrapers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lysyi3m/forum-comb/app/fetch"
	"github.com/lysyi3m/forum-comb/app/forum"
	"github.com/lysyi3m/forum-comb/app/sources"
)

// Scraper is the capability set every source adapter implements. A run
// either returns a usable batch or an error; there is no partial
// success contract at this level. Failures resolving one item's
// details or comments must not abort the batch — the item is emitted
// with whatever was gathered and the run continues.
type Scraper interface {
	// ID returns the stable source identifier used as the storage
	// namespace ("jandan", "hackernews", ...).
	ID() string
	// Name returns the display name used in the source index.
	Name() string
	Scrape(ctx context.Context) ([]forum.Envelope, error)
}

// Factory builds an adapter bound to a fetch client and its source
// configuration.
type Factory func(client *fetch.Client, config *sources.Config) Scraper

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an adapter available under its source id. Called from
// adapter init functions.
func Register(id string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = factory
}

// New constructs the adapter registered for id.
func New(id string, client *fetch.Client, config *sources.Config) (Scraper, error) {
	registryMu.RLock()
	factory, ok := registry[id]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown scraper source: %s", id)
	}
	return factory(client, config), nil
}

// Available returns the registered source ids, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
