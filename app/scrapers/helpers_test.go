package scrapers

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseCount(t *testing.T) {
	cases := map[string]int{
		"142 points": 142,
		"[23]":       23,
		"吐槽 [7]":     7,
		"no digits":  0,
		"":           0,
		"3小时前":       3,
	}

	for input, expected := range cases {
		if got := parseCount(input); got != expected {
			t.Errorf("parseCount(%q) = %d, expected %d", input, got, expected)
		}
	}
}

func TestParseTimestampEpochSeconds(t *testing.T) {
	fallback := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	got := parseTimestamp("1718000000", fallback)
	if got.Unix() != 1718000000 {
		t.Errorf("expected epoch 1718000000, got %d", got.Unix())
	}
}

func TestParseTimestampTextual(t *testing.T) {
	fallback := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	got := parseTimestamp("2024-06-10 15:04:05", fallback)
	if got.Year() != 2024 || got.Month() != time.June || got.Day() != 10 {
		t.Errorf("unexpected parsed time: %v", got)
	}
}

func TestParseTimestampFallback(t *testing.T) {
	fallback := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	if got := parseTimestamp("not a date at all!!!", fallback); !got.Equal(fallback) {
		t.Errorf("expected fallback time, got %v", got)
	}
	if got := parseTimestamp("", fallback); !got.Equal(fallback) {
		t.Errorf("expected fallback time for empty input, got %v", got)
	}
}

func TestFlexIDVariants(t *testing.T) {
	var payload struct {
		A flexID `json:"a"`
		B flexID `json:"b"`
		C flexID `json:"c"`
	}

	data := []byte(`{"a": "12345", "b": 67890, "c": null}`)
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if payload.A.String() != "12345" {
		t.Errorf("string id: expected 12345, got %q", payload.A.String())
	}
	if payload.B.String() != "67890" {
		t.Errorf("numeric id: expected 67890, got %q", payload.B.String())
	}
	if payload.C.String() != "" {
		t.Errorf("null id: expected empty, got %q", payload.C.String())
	}
}

func TestFlexIntVariants(t *testing.T) {
	var payload struct {
		A flexInt `json:"a"`
		B flexInt `json:"b"`
		C flexInt `json:"c"`
		D flexInt `json:"d"`
	}

	data := []byte(`{"a": 42, "b": "17", "c": "garbage", "d": null}`)
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if payload.A.Int() != 42 {
		t.Errorf("numeric counter: expected 42, got %d", payload.A.Int())
	}
	if payload.B.Int() != 17 {
		t.Errorf("string counter: expected 17, got %d", payload.B.Int())
	}
	if payload.C.Int() != 0 {
		t.Errorf("garbage counter: expected 0, got %d", payload.C.Int())
	}
	if payload.D.Int() != 0 {
		t.Errorf("null counter: expected 0, got %d", payload.D.Int())
	}
}

func TestRegistryContainsBuiltinAdapters(t *testing.T) {
	available := Available()

	expected := []string{"hackernews", "jandan", "reddit", "rss"}
	if len(available) != len(expected) {
		t.Fatalf("expected %d registered adapters, got %d: %v", len(expected), len(available), available)
	}
	for i, id := range expected {
		if available[i] != id {
			t.Errorf("adapter %d: expected %q, got %q", i, id, available[i])
		}
	}
}

func TestNewUnknownAdapter(t *testing.T) {
	if _, err := New("myspace", nil, nil); err == nil {
		t.Error("expected error for unknown adapter id")
	}
}
