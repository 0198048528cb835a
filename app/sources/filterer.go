package sources

import (
	"log/slog"
	"strings"

	"github.com/lysyi3m/forum-comb/app/forum"
)

// Filterer applies a source's include/exclude rules to scraped
// envelopes before they reach the store. Excluded envelopes are
// dropped; NSFW patterns only mark metadata, they never drop.
type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

func (f *Filterer) Run(envelopes []forum.Envelope, config *Config) []forum.Envelope {
	if len(config.Filters) == 0 && len(config.NSFW) == 0 {
		return envelopes
	}

	kept := make([]forum.Envelope, 0, len(envelopes))
	for _, env := range envelopes {
		if excluded, reason := f.applyFilters(env, config.Filters); excluded {
			slog.Debug("Envelope excluded by filter", "source", config.ID, "post_id", env.Post.ID, "reason", reason)
			continue
		}

		if f.matchesAny(env.Post.Title+" "+env.Post.Content.Text, config.NSFW) {
			env.Metadata.IsNSFW = true
		}

		kept = append(kept, env)
	}

	return kept
}

func (f *Filterer) applyFilters(env forum.Envelope, filters []ConfigFilter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(env, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, "excluded by " + filter.Field + " filter: contains '" + exclude + "'"
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, "excluded by " + filter.Field + " filter: no include matched"
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesAny(value string, patterns []string) bool {
	for _, p := range patterns {
		if f.matchesFilter(value, p) {
			return true
		}
	}
	return false
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(env forum.Envelope, field string) string {
	switch field {
	case "title":
		return env.Post.Title
	case "content":
		return env.Post.Content.Text
	case "author":
		return env.Post.Author.Username
	case "tags":
		return strings.Join(env.Post.Tags, " ")
	case "section":
		return env.Source.Section
	default:
		return ""
	}
}
