package history_test

import (
	"context"
	"testing"

	"marklift/internal/history"
	"marklift/internal/testsupport"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(testsupport.NewConfig(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAddAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first := &history.Record{
		SessionID: "sess-1",
		JobID:     "job-1",
		ItemName:  "report.pdf",
		Kind:      "document",
		Status:    "completed",
		Bytes:     2048,
	}
	if err := store.Add(ctx, first); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("Add must assign an id")
	}
	if first.CreatedAt.IsZero() {
		t.Fatal("Add must stamp the record")
	}

	second := &history.Record{
		SessionID: "sess-1",
		ItemName:  "https://example.com/page",
		Kind:      "url",
		Status:    "error",
		Message:   "fetch failed",
	}
	if err := store.Add(ctx, second); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	records, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ItemName != "https://example.com/page" {
		t.Fatalf("newest record should come first, got %q", records[0].ItemName)
	}
	if records[0].JobID != "" {
		t.Fatalf("empty job id should round-trip empty, got %q", records[0].JobID)
	}
	if records[1].Bytes != 2048 {
		t.Fatalf("bytes lost in round trip: %d", records[1].Bytes)
	}
}

func TestAddRequiresSession(t *testing.T) {
	store := openStore(t)
	err := store.Add(context.Background(), &history.Record{ItemName: "a.pdf", Kind: "document", Status: "completed"})
	if err == nil {
		t.Fatal("expected error for missing session id")
	}
}

func TestStatsGroupsByStatus(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, status := range []string{"completed", "completed", "error"} {
		rec := &history.Record{SessionID: "s", ItemName: "x", Kind: "document", Status: status}
		if err := store.Add(ctx, rec); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["completed"] != 2 || stats["error"] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := &history.Record{SessionID: "s", ItemName: "x", Kind: "document", Status: "completed"}
		if err := store.Add(ctx, rec); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 3 {
		t.Fatalf("Clear removed %d, want 3", removed)
	}
	records, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty history, got %d records", len(records))
	}
}
