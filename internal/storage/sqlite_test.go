package storage

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tracker/internal/chat"
	"tracker/internal/tracker"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tracker.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionCRUD(t *testing.T) {
	store := newTestStore(t)

	meta := SessionMeta{ID: NewSessionID(), Title: "night at the docks", Model: "qwen-plus"}
	if err := store.CreateSession(meta); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadSession(meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Title != meta.Title || loaded.Model != meta.Model {
		t.Fatalf("loaded meta mismatch: %+v", loaded)
	}
	if loaded.CreatedAt == "" || loaded.UpdatedAt == "" {
		t.Fatal("timestamps not set on create")
	}

	loaded.Title = "renamed"
	if err := store.SaveSession(loaded); err != nil {
		t.Fatal(err)
	}
	renamed, err := store.LoadSession(meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if renamed.Title != "renamed" {
		t.Fatalf("title=%q", renamed.Title)
	}

	sessions, err := store.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("session count=%d", len(sessions))
	}

	if err := store.DeleteSession(meta.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.LoadSession(meta.ID); err == nil {
		t.Fatal("expected error loading deleted session")
	}
}

func TestMessagesRoundTripWithTrackerSnapshot(t *testing.T) {
	store := newTestStore(t)
	meta := SessionMeta{ID: NewSessionID()}
	if err := store.CreateSession(meta); err != nil {
		t.Fatal(err)
	}

	snap := tracker.DefaultTemplate()
	messages := []chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: "hi there", Tracker: snap},
	}
	if err := store.SaveMessages(meta.ID, messages); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadMessages(meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Fatalf("message count=%d", len(loaded))
	}
	if loaded[0].Tracker != nil {
		t.Fatal("user message should carry no tracker snapshot")
	}
	if diff := cmp.Diff(snap, loaded[1].Tracker); diff != "" {
		t.Fatalf("tracker snapshot mismatch (-want +got):\n%s", diff)
	}

	// Append keeps prior messages and ordering.
	if err := store.AppendMessages(meta.ID, 2, []chat.Message{{Role: chat.RoleUser, Content: "again"}}); err != nil {
		t.Fatal(err)
	}
	appended, err := store.LoadMessages(meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(appended) != 3 || appended[2].Content != "again" {
		t.Fatalf("append result unexpected: %+v", appended)
	}
}

func TestSettingsBlob(t *testing.T) {
	store := newTestStore(t)

	if value, err := store.LoadSetting("tracker"); err != nil || value != nil {
		t.Fatalf("missing key: value=%v err=%v", value, err)
	}

	blob := json.RawMessage(`{"systemPrompt":"be dramatic"}`)
	if err := store.SaveSetting("tracker", blob); err != nil {
		t.Fatal(err)
	}
	loaded, err := store.LoadSetting("tracker")
	if err != nil {
		t.Fatal(err)
	}
	if string(loaded) != string(blob) {
		t.Fatalf("setting=%s", loaded)
	}

	// Overwrite wins.
	if err := store.SaveSetting("tracker", json.RawMessage(`{"v":2}`)); err != nil {
		t.Fatal(err)
	}
	loaded, err = store.LoadSetting("tracker")
	if err != nil {
		t.Fatal(err)
	}
	if string(loaded) != `{"v":2}` {
		t.Fatalf("setting=%s", loaded)
	}
}

func TestTrackerStateSlot(t *testing.T) {
	store := newTestStore(t)
	meta := SessionMeta{ID: NewSessionID()}
	if err := store.CreateSession(meta); err != nil {
		t.Fatal(err)
	}

	if _, found, err := store.LoadTrackerState(meta.ID); err != nil || found {
		t.Fatalf("fresh session: found=%v err=%v", found, err)
	}

	live := tracker.DefaultTemplate()
	committed := live.Clone()
	state := TrackerState{Live: live, Committed: committed}
	if err := store.SaveTrackerState(meta.ID, state); err != nil {
		t.Fatal(err)
	}

	loaded, found, err := store.LoadTrackerState(meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("state not found after save")
	}
	if diff := cmp.Diff(live, loaded.Live); diff != "" {
		t.Fatalf("live mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(committed, loaded.Committed); diff != "" {
		t.Fatalf("committed mismatch (-want +got):\n%s", diff)
	}
	if loaded.LastGenerated != nil {
		t.Fatal("last generated should stay nil")
	}

	// Cascade: deleting the session drops its state.
	if err := store.DeleteSession(meta.ID); err != nil {
		t.Fatal(err)
	}
	if _, found, err := store.LoadTrackerState(meta.ID); err != nil || found {
		t.Fatalf("state should cascade-delete: found=%v err=%v", found, err)
	}
}
