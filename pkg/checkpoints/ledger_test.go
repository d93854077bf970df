package checkpoints

import (
	"fmt"
	"testing"

	"github.com/B2Gdevs/novel-spark-engine-sub000/internal/store"
)

func appendMessages(st *store.ProjectStore, n int) {
	for i := 0; i < n; i++ {
		st.AppendMessage(&store.ChatMessage{
			ID:      fmt.Sprintf("m%d", st.LogLength()+1),
			Role:    store.RoleUser,
			Content: "msg",
		})
	}
}

func TestCreateAnchorsAtLastMessage(t *testing.T) {
	st := store.NewProjectStore()
	appendMessages(st, 5)

	l := NewLedger(st)
	cp := l.Create("before rewrite")
	if cp.Anchor != 4 {
		t.Errorf("expected anchor 4 for a log of 5, got %d", cp.Anchor)
	}
	if cp.Label != "before rewrite" || cp.ID == "" {
		t.Error("checkpoint should carry label and id")
	}
}

func TestRestoreTruncatesLog(t *testing.T) {
	st := store.NewProjectStore()
	appendMessages(st, 5)

	l := NewLedger(st)
	cp := l.Create("branch point")
	appendMessages(st, 3)
	if st.LogLength() != 8 {
		t.Fatalf("setup: expected 8 messages, got %d", st.LogLength())
	}

	if !l.Restore(cp.ID) {
		t.Fatal("restore of a known checkpoint should succeed")
	}
	if st.LogLength() != 5 {
		t.Errorf("expected log truncated back to 5, got %d", st.LogLength())
	}
	// the anchored message itself survives
	if msgs := st.Messages(); msgs[len(msgs)-1].ID != "m5" {
		t.Error("the anchored message should be the last one after restore")
	}
}

func TestRestoreStaleAnchorIsNoOp(t *testing.T) {
	st := store.NewProjectStore()
	appendMessages(st, 5)

	l := NewLedger(st)
	cp := l.Create("late anchor")
	st.TruncateLog(2)

	if !l.Restore(cp.ID) {
		t.Error("a stale-but-known checkpoint must still restore successfully")
	}
	if st.LogLength() != 2 {
		t.Error("restoring never appends messages")
	}
}

func TestRestoreUnknownCheckpoint(t *testing.T) {
	st := store.NewProjectStore()
	l := NewLedger(st)
	if l.Restore("nope") {
		t.Error("unknown checkpoint id should return false")
	}
}

func TestRestoreOnEmptyLogCheckpoint(t *testing.T) {
	st := store.NewProjectStore()
	l := NewLedger(st)
	cp := l.Create("empty")
	if cp.Anchor != -1 {
		t.Fatalf("expected anchor -1 for an empty log, got %d", cp.Anchor)
	}
	appendMessages(st, 2)
	if !l.Restore(cp.ID) {
		t.Fatal("restore should succeed")
	}
	if st.LogLength() != 0 {
		t.Error("restoring an empty-log checkpoint should empty the log")
	}
}

func TestRemove(t *testing.T) {
	st := store.NewProjectStore()
	l := NewLedger(st)
	cp := l.Create("x")
	if !l.Remove(cp.ID) {
		t.Fatal("remove of a known checkpoint should succeed")
	}
	if l.Get(cp.ID) != nil || len(l.List()) != 0 {
		t.Error("removed checkpoint should be gone")
	}
	if l.Remove(cp.ID) {
		t.Error("second remove should report false")
	}
}
