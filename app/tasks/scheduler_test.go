package tasks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/lysyi3m/forum-comb/app/cfg"
	"github.com/lysyi3m/forum-comb/app/fetch"
	"github.com/lysyi3m/forum-comb/app/forum"
	"github.com/lysyi3m/forum-comb/app/sources"
	"github.com/lysyi3m/forum-comb/app/store"
)

const testFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://feed.example.com</link>
    <item>
      <title>First entry</title>
      <link>https://feed.example.com/first</link>
      <guid>https://feed.example.com/first</guid>
      <description>Body of the first entry.</description>
      <pubDate>Mon, 10 Jun 2024 08:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Second entry</title>
      <link>https://feed.example.com/second</link>
      <guid>https://feed.example.com/second</guid>
      <description>Body of the second entry.</description>
      <pubDate>Tue, 11 Jun 2024 08:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func testClient() *fetch.Client {
	return fetch.NewClient("test-agent", fetch.WithMaxAttempts(1), fetch.WithTimeout(5*time.Second))
}

func writeSourceConfig(t *testing.T, dir, id, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".yml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func loadedConfigCache(t *testing.T, dir string) *sources.ConfigCache {
	t.Helper()
	cache := sources.NewConfigCache(dir)
	if err := cache.Run(); err != nil {
		t.Fatal(err)
	}
	return cache
}

func TestScrapeSourceTaskExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeedXML))
	}))
	defer server.Close()

	dir := t.TempDir()
	writeSourceConfig(t, dir, "testfeed", "url: "+server.URL+"\nadapter: rss\nname: Test Feed\nsettings:\n  enabled: true\n")
	cache := loadedConfigCache(t, dir)

	config, err := cache.GetConfig("testfeed")
	if err != nil {
		t.Fatal(err)
	}

	st := store.New(afero.NewMemMapFs(), "data")
	task := NewScrapeSourceTask(config, testClient(), sources.NewFilterer(), st)
	task.Start()

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	envelopes, err := st.Load("testfeed", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(envelopes) != 2 {
		t.Fatalf("expected 2 stored envelopes, got %d", len(envelopes))
	}

	info, err := st.SourceInfo("testfeed")
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || info.Name != "Test Feed" {
		t.Errorf("expected index entry with display name, got %+v", info)
	}
}

func TestScrapeSourceTaskAppliesFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeedXML))
	}))
	defer server.Close()

	dir := t.TempDir()
	writeSourceConfig(t, dir, "testfeed", "url: "+server.URL+"\nadapter: rss\nsettings:\n  enabled: true\nfilters:\n  - field: title\n    excludes:\n      - Second\n")
	cache := loadedConfigCache(t, dir)

	config, err := cache.GetConfig("testfeed")
	if err != nil {
		t.Fatal(err)
	}

	st := store.New(afero.NewMemMapFs(), "data")
	task := NewScrapeSourceTask(config, testClient(), sources.NewFilterer(), st)
	task.Start()

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	envelopes, err := st.Load("testfeed", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("expected 1 envelope after filtering, got %d", len(envelopes))
	}
	if envelopes[0].Post.Title != "First entry" {
		t.Errorf("wrong envelope kept: %q", envelopes[0].Post.Title)
	}
}

func TestScrapeSourceTaskDisabledSource(t *testing.T) {
	dir := t.TempDir()
	writeSourceConfig(t, dir, "idle", "adapter: rss\nurl: http://unused.invalid\nsettings:\n  enabled: false\n")
	cache := loadedConfigCache(t, dir)

	config, err := cache.GetConfig("idle")
	if err != nil {
		t.Fatal(err)
	}

	st := store.New(afero.NewMemMapFs(), "data")
	task := NewScrapeSourceTask(config, testClient(), sources.NewFilterer(), st)

	if err := task.Execute(context.Background()); err != nil {
		t.Errorf("disabled source should be a no-op, got %v", err)
	}
}

func TestExtractContentTaskFillsEmptyBodies(t *testing.T) {
	article := `<html><head><title>Article</title></head><body><article>
	<h1>A Proper Article</h1>
	<p>This is the main content of the linked article. It carries enough substantial text for the readability extraction to accept it as the primary content of the page.</p>
	<p>A second paragraph keeps the extraction well above any minimum content threshold and gives the algorithm a clear main block to choose.</p>
	<p>The third paragraph exists for the same reason, padding the article with meaningful prose rather than boilerplate.</p>
	</article></body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(article))
	}))
	defer server.Close()

	dir := t.TempDir()
	writeSourceConfig(t, dir, "linked", "adapter: rss\nurl: http://unused.invalid\nsettings:\n  enabled: true\n  extract_content: true\n")
	cache := loadedConfigCache(t, dir)

	config, err := cache.GetConfig("linked")
	if err != nil {
		t.Fatal(err)
	}

	st := store.New(afero.NewMemMapFs(), "data")
	now := time.Now()
	stored := []forum.Envelope{
		{
			Post:   forum.Post{ID: "p1", Title: "Link post", Tags: []string{}},
			Source: forum.SourceRef{Forum: "linked", URL: server.URL},
		},
		{
			Post:   forum.Post{ID: "p2", Title: "Full post", Content: forum.Content{Text: "already has a body"}, Tags: []string{}},
			Source: forum.SourceRef{Forum: "linked", URL: server.URL},
		},
	}
	if _, err := st.Save("linked", "Linked", stored, now); err != nil {
		t.Fatal(err)
	}

	task := NewExtractContentTask(config, testClient(), forum.NewContentExtractor(), st)
	task.Start()

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	envelopes, err := st.Load("linked", now)
	if err != nil {
		t.Fatal(err)
	}
	for _, env := range envelopes {
		switch env.Post.ID {
		case "p1":
			if env.Post.Content.Text == "" {
				t.Error("expected extracted content for empty-body link post")
			}
		case "p2":
			if env.Post.Content.Text != "already has a body" {
				t.Errorf("existing body overwritten: %q", env.Post.Content.Text)
			}
		}
	}
}

func TestSchedulerRunOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeedXML))
	}))
	defer server.Close()

	dir := t.TempDir()
	writeSourceConfig(t, dir, "testfeed", "url: "+server.URL+"\nadapter: rss\nname: Test Feed\nsettings:\n  enabled: true\n")
	cache := loadedConfigCache(t, dir)

	cfg.SetForTest(&cfg.Cfg{WorkerCount: 2, SchedulerInterval: 60, ArchiveWeeks: 12})

	st := store.New(afero.NewMemMapFs(), "data")
	scheduler := NewScheduler(cache, st, testClient(), sources.NewFilterer(), forum.NewContentExtractor())

	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("run-once failed: %v", err)
	}

	ids, err := st.ListSources()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "testfeed" {
		t.Errorf("expected testfeed in the index, got %v", ids)
	}
}

func TestSchedulerRunOnceAllFail(t *testing.T) {
	dir := t.TempDir()
	writeSourceConfig(t, dir, "broken", "url: http://127.0.0.1:1\nadapter: rss\nsettings:\n  enabled: true\n")
	cache := loadedConfigCache(t, dir)

	cfg.SetForTest(&cfg.Cfg{WorkerCount: 2, SchedulerInterval: 60, ArchiveWeeks: 12})

	st := store.New(afero.NewMemMapFs(), "data")
	scheduler := NewScheduler(cache, st, testClient(), sources.NewFilterer(), forum.NewContentExtractor())

	if err := scheduler.RunOnce(context.Background()); err == nil {
		t.Error("expected error when every scraper fails")
	}
}

func TestSchedulerMarkDue(t *testing.T) {
	cfg.SetForTest(&cfg.Cfg{WorkerCount: 1, SchedulerInterval: 60, ArchiveWeeks: 12})

	cache := sources.NewConfigCache(t.TempDir())
	st := store.New(afero.NewMemMapFs(), "data")
	scheduler := NewScheduler(cache, st, testClient(), sources.NewFilterer(), forum.NewContentExtractor())

	config := &sources.Config{ID: "jandan", Settings: sources.ConfigSettings{RefreshInterval: 3600}}
	now := time.Now()

	if !scheduler.markDue(config, now) {
		t.Fatal("first check should be due")
	}
	if scheduler.markDue(config, now.Add(time.Minute)) {
		t.Error("source should not be due again within the refresh interval")
	}
	if !scheduler.markDue(config, now.Add(2*time.Hour)) {
		t.Error("source should be due after the refresh interval elapsed")
	}
}

func TestSchedulerEnqueueQueueFull(t *testing.T) {
	cfg.SetForTest(&cfg.Cfg{WorkerCount: 1, SchedulerInterval: 60, ArchiveWeeks: 12})

	cache := sources.NewConfigCache(t.TempDir())
	st := store.New(afero.NewMemMapFs(), "data")
	scheduler := NewScheduler(cache, st, testClient(), sources.NewFilterer(), forum.NewContentExtractor())

	// Workers are not started, so the queue only drains on overflow
	var err error
	for i := 0; i < 500; i++ {
		if err = scheduler.EnqueueTask(NewArchiveSourceTask("jandan", st, 12)); err != nil {
			break
		}
	}
	if err == nil {
		t.Error("expected queue-full error")
	}
}
