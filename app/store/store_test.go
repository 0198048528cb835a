package store

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/lysyi3m/forum-comb/app/forum"
)

func testStore() *Store {
	return New(afero.NewMemMapFs(), "data")
}

func envelope(postID, title string) forum.Envelope {
	return forum.Envelope{
		Post: forum.Post{
			ID:       postID,
			SourceID: "src-" + postID,
			Title:    title,
			Tags:     []string{},
		},
		Source:  forum.SourceRef{Forum: "testforum"},
		Replies: []forum.Reply{},
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	date, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatal(err)
	}
	return date
}

func TestWeekStartThursday(t *testing.T) {
	// 2024-06-13 is a Thursday; its week starts Monday 2024-06-10
	got := WeekStart(mustDate(t, "2024-06-13")).Format("2006-01-02")
	if got != "2024-06-10" {
		t.Errorf("Expected week start 2024-06-10, got %s", got)
	}
}

func TestWeekStartMonday(t *testing.T) {
	got := WeekStart(mustDate(t, "2024-06-10")).Format("2006-01-02")
	if got != "2024-06-10" {
		t.Errorf("Expected Monday to map to itself, got %s", got)
	}
}

func TestWeekStartSunday(t *testing.T) {
	// Sunday belongs to the week starting the previous Monday
	got := WeekStart(mustDate(t, "2024-06-16")).Format("2006-01-02")
	if got != "2024-06-10" {
		t.Errorf("Expected week start 2024-06-10 for a Sunday, got %s", got)
	}
}

func TestSaveCreatesBucketAndIndex(t *testing.T) {
	s := testStore()
	date := mustDate(t, "2024-06-13")

	path, err := s.Save("testforum", "Test Forum", []forum.Envelope{envelope("a", "first")}, date)
	if err != nil {
		t.Fatal(err)
	}
	if path != "data/testforum/week_2024-06-10.json" {
		t.Errorf("Unexpected bucket path: %s", path)
	}

	loaded, err := s.Load("testforum", date)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].Post.ID != "a" {
		t.Errorf("Expected one envelope with post id 'a', got %+v", loaded)
	}

	info, err := s.SourceInfo("testforum")
	if err != nil {
		t.Fatal(err)
	}
	if info == nil {
		t.Fatal("Expected index entry after save")
	}
	if info.Name != "Test Forum" {
		t.Errorf("Expected display name 'Test Forum', got '%s'", info.Name)
	}
	if info.FileCount != 1 || len(info.Files) != 1 || info.Files[0] != "week_2024-06-10.json" {
		t.Errorf("Unexpected index files: %+v", info)
	}
}

func TestSaveMergesIncrementally(t *testing.T) {
	s := testStore()
	date := mustDate(t, "2024-06-13")

	if _, err := s.Save("testforum", "", []forum.Envelope{envelope("a", "first")}, date); err != nil {
		t.Fatal(err)
	}
	// Later run in the same week adds a new post and re-scrapes "a"
	if _, err := s.Save("testforum", "", []forum.Envelope{envelope("a", "rescraped"), envelope("b", "second")}, date); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load("testforum", date)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 envelopes after merge, got %d", len(loaded))
	}
	// Keep-first: the originally stored envelope wins over the re-scrape
	if loaded[0].Post.ID != "a" || loaded[0].Post.Title != "first" {
		t.Errorf("Expected first occurrence of 'a' to be kept, got %+v", loaded[0].Post)
	}
	if loaded[1].Post.ID != "b" {
		t.Errorf("Expected 'b' appended, got %+v", loaded[1].Post)
	}
}

func TestSaveFlattensNestedArrays(t *testing.T) {
	s := testStore()
	date := mustDate(t, "2024-06-13")

	// Bucket written by an older version with nested sub-sequences
	nested := `[[{"post":{"id":"a"}}],[{"post":{"id":"b"}},{"post":{"id":"c"}}]]`
	s.fs.MkdirAll("data/testforum", 0755)
	afero.WriteFile(s.fs, "data/testforum/week_2024-06-10.json", []byte(nested), 0644)

	if _, err := s.Save("testforum", "", []forum.Envelope{envelope("d", "new")}, date); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load("testforum", date)
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, env := range loaded {
		ids = append(ids, env.Post.ID)
	}
	want := []string{"a", "b", "c", "d"}
	if len(ids) != len(want) {
		t.Fatalf("Expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], ids[i])
		}
	}
}

func TestSaveReadsLegacyMetaDataFormat(t *testing.T) {
	s := testStore()
	date := mustDate(t, "2024-06-13")

	legacy := `{"meta":{"source_name":"煎蛋网"},"data":[{"post":{"id":"a","title":"legacy"}}]}`
	s.fs.MkdirAll("data/jandan", 0755)
	afero.WriteFile(s.fs, "data/jandan/week_2024-06-10.json", []byte(legacy), 0644)

	if _, err := s.Save("jandan", "", []forum.Envelope{envelope("b", "new")}, date); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load("jandan", date)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded[0].Post.ID != "a" || loaded[1].Post.ID != "b" {
		t.Errorf("Expected legacy data merged with new batch, got %+v", loaded)
	}

	// Rewritten bucket must be in the flat array form
	data, err := afero.ReadFile(s.fs, "data/jandan/week_2024-06-10.json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		t.Errorf("Expected flat array on rewrite, got: %.40s", data)
	}
}

func TestSaveReplacesCorruptBucket(t *testing.T) {
	s := testStore()
	date := mustDate(t, "2024-06-13")

	s.fs.MkdirAll("data/testforum", 0755)
	afero.WriteFile(s.fs, "data/testforum/week_2024-06-10.json", []byte("{not json"), 0644)

	if _, err := s.Save("testforum", "", []forum.Envelope{envelope("a", "fresh")}, date); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load("testforum", date)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].Post.ID != "a" {
		t.Errorf("Expected new batch to replace corrupt bucket, got %+v", loaded)
	}
}

func TestSaveWritesUnescapedUTF8(t *testing.T) {
	s := testStore()
	date := mustDate(t, "2024-06-13")

	env := envelope("a", "树洞热评")
	if _, err := s.Save("jandan", "煎蛋网", []forum.Envelope{env}, date); err != nil {
		t.Fatal(err)
	}

	data, err := afero.ReadFile(s.fs, "data/jandan/week_2024-06-10.json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "树洞热评") {
		t.Errorf("Expected non-ASCII characters stored unescaped")
	}
}

func TestLoadMissingBucket(t *testing.T) {
	s := testStore()

	loaded, err := s.Load("nosuch", mustDate(t, "2024-01-01"))
	if err != nil {
		t.Fatalf("Expected absent result without error, got: %v", err)
	}
	if loaded != nil {
		t.Errorf("Expected nil for missing bucket, got %+v", loaded)
	}
}

func TestListWeeksSortedDescending(t *testing.T) {
	s := testStore()

	for _, d := range []string{"2024-06-10", "2024-05-27", "2024-06-03"} {
		if _, err := s.Save("testforum", "", []forum.Envelope{envelope("p"+d, "t")}, mustDate(t, d)); err != nil {
			t.Fatal(err)
		}
	}
	// Noise that must be ignored
	afero.WriteFile(s.fs, "data/testforum/week_invalid.json", []byte("[]"), 0644)
	afero.WriteFile(s.fs, "data/testforum/notes.txt", []byte("x"), 0644)

	weeks, err := s.ListWeeks("testforum")
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"2024-06-10", "2024-06-03", "2024-05-27"}
	if len(weeks) != len(want) {
		t.Fatalf("Expected %v, got %v", want, weeks)
	}
	for i := range want {
		if weeks[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], weeks[i])
		}
	}
}

func TestListWeeksMissingSource(t *testing.T) {
	s := testStore()

	weeks, err := s.ListWeeks("nosuch")
	if err != nil {
		t.Fatal(err)
	}
	if len(weeks) != 0 {
		t.Errorf("Expected no weeks for unknown source, got %v", weeks)
	}
}

func TestBucketStaysFlatJSON(t *testing.T) {
	s := testStore()
	date := mustDate(t, "2024-06-13")

	if _, err := s.Save("testforum", "", []forum.Envelope{envelope("a", "t")}, date); err != nil {
		t.Fatal(err)
	}

	data, err := afero.ReadFile(s.fs, "data/testforum/week_2024-06-10.json")
	if err != nil {
		t.Fatal(err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("Bucket is not a JSON array: %v", err)
	}
	for _, entry := range entries {
		trimmed := strings.TrimSpace(string(entry))
		if strings.HasPrefix(trimmed, "[") {
			t.Errorf("Found nested array in written bucket")
		}
	}
}

func TestUpdateContentFillsText(t *testing.T) {
	s := testStore()
	date := mustDate(t, "2024-06-13")

	if _, err := s.Save("testforum", "Test Forum", []forum.Envelope{envelope("a", "first"), envelope("b", "second")}, date); err != nil {
		t.Fatal(err)
	}

	updated, err := s.UpdateContent("testforum", date, map[string]string{"b": "<p>extracted body</p>"})
	if err != nil {
		t.Fatal(err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 updated entry, got %d", updated)
	}

	envelopes, err := s.Load("testforum", date)
	if err != nil {
		t.Fatal(err)
	}
	if len(envelopes) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(envelopes))
	}
	for _, env := range envelopes {
		switch env.Post.ID {
		case "a":
			if env.Post.Content.Text != "" {
				t.Errorf("untouched entry changed: %q", env.Post.Content.Text)
			}
		case "b":
			if env.Post.Content.Text != "<p>extracted body</p>" {
				t.Errorf("expected extracted text, got %q", env.Post.Content.Text)
			}
		}
	}
}

func TestUpdateContentMissingBucket(t *testing.T) {
	s := testStore()

	updated, err := s.UpdateContent("nosuch", mustDate(t, "2024-06-13"), map[string]string{"a": "text"})
	if err != nil {
		t.Fatal(err)
	}
	if updated != 0 {
		t.Errorf("expected no updates for missing bucket, got %d", updated)
	}
}

func TestUpdateContentUnknownID(t *testing.T) {
	s := testStore()
	date := mustDate(t, "2024-06-13")

	if _, err := s.Save("testforum", "Test Forum", []forum.Envelope{envelope("a", "first")}, date); err != nil {
		t.Fatal(err)
	}

	updated, err := s.UpdateContent("testforum", date, map[string]string{"zzz": "text"})
	if err != nil {
		t.Fatal(err)
	}
	if updated != 0 {
		t.Errorf("expected no updates for unknown post id, got %d", updated)
	}
}
