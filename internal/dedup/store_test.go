package dedup

import (
	"fmt"
	"testing"

	"xtap/internal/record"
)

func TestAdmitAcceptsNewAndRejectsRepeat(t *testing.T) {
	store := NewStore(10)

	rec := record.Record{ID: "100"}
	if !store.Admit(&rec) {
		t.Fatal("first admit should accept")
	}
	if store.Admit(&rec) {
		t.Fatal("second admit should reject")
	}

	if store.SessionAccepted() != 1 {
		t.Errorf("session accepted: got %d, want 1", store.SessionAccepted())
	}
	if store.SessionDuplicates() != 1 {
		t.Errorf("session duplicates: got %d, want 1", store.SessionDuplicates())
	}
	if store.AllTime() != 1 {
		t.Errorf("all time: got %d, want 1", store.AllTime())
	}
}

func TestAdmitRejectsEmptyID(t *testing.T) {
	store := NewStore(10)
	if store.Admit(&record.Record{}) {
		t.Fatal("empty id must be rejected")
	}
	if store.SessionAccepted() != 0 || store.SessionDuplicates() != 0 {
		t.Fatalf("empty id must not touch counters: accepted=%d dupes=%d",
			store.SessionAccepted(), store.SessionDuplicates())
	}
}

func TestAdmitArticleRecordAlwaysAccepted(t *testing.T) {
	store := NewStore(10)

	stub := record.Record{ID: "200", Text: "stub"}
	if !store.Admit(&stub) {
		t.Fatal("stub admit should accept")
	}

	enriched := record.Record{ID: "200", Article: &record.Article{Title: "T", Body: "B"}}
	if !store.Admit(&enriched) {
		t.Fatal("article-carrying record must be accepted despite the seen id")
	}
	if store.Len() != 1 {
		t.Fatalf("id must not be tracked twice: len=%d", store.Len())
	}
	if store.SessionAccepted() != 2 {
		t.Errorf("session accepted: got %d, want 2", store.SessionAccepted())
	}
	if store.SessionDuplicates() != 0 {
		t.Errorf("session duplicates: got %d, want 0", store.SessionDuplicates())
	}
}

func TestFIFOEvictionAtCapacity(t *testing.T) {
	store := NewStore(3)
	for i := 1; i <= 4; i++ {
		rec := record.Record{ID: fmt.Sprintf("%d", i)}
		if !store.Admit(&rec) {
			t.Fatalf("admit %d failed", i)
		}
	}

	if store.Len() != 3 {
		t.Fatalf("len: got %d, want 3", store.Len())
	}
	if store.Seen("1") {
		t.Fatal("oldest id should be evicted")
	}
	if !store.Seen("2") || !store.Seen("4") {
		t.Fatal("newer ids must survive eviction")
	}

	// The evicted id is admitted again as if new.
	rec := record.Record{ID: "1"}
	if !store.Admit(&rec) {
		t.Fatal("evicted id should be accepted again")
	}
}

func TestRestoreSeedsSetAndCounter(t *testing.T) {
	store := NewStore(10)
	store.Restore([]string{"a", "", "b", "a", "c"}, 42)

	if store.Len() != 3 {
		t.Fatalf("len: got %d, want 3", store.Len())
	}
	if store.AllTime() != 42 {
		t.Fatalf("all time: got %d, want 42", store.AllTime())
	}
	if !store.Seen("a") || !store.Seen("b") || !store.Seen("c") {
		t.Fatal("restored ids missing")
	}

	got := store.Snapshot()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("snapshot: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot order: got %v, want %v", got, want)
		}
	}

	rec := record.Record{ID: "a"}
	if store.Admit(&rec) {
		t.Fatal("restored id should be a duplicate")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewStore(10)
	store.Admit(&record.Record{ID: "x"})

	snap := store.Snapshot()
	snap[0] = "mutated"

	if !store.Seen("x") || store.Snapshot()[0] != "x" {
		t.Fatal("snapshot must not alias internal state")
	}
}
