package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "termtab.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)

	sess := &SavedSession{ID: "sess-1", Title: "build", Endpoint: "ws://127.0.0.1:7681/ws/pty", Cols: 80, Rows: 24}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Title != "build" || got.Status != "active" {
		t.Errorf("session = %+v, want title build, status active", got)
	}

	if err := s.UpdateGeometry("sess-1", 120, 40); err != nil {
		t.Fatalf("UpdateGeometry: %v", err)
	}
	if err := s.AddTraffic("sess-1", 100, 2000); err != nil {
		t.Fatalf("AddTraffic: %v", err)
	}
	if err := s.AddTraffic("sess-1", 50, 500); err != nil {
		t.Fatalf("AddTraffic: %v", err)
	}
	if err := s.BumpReconnects("sess-1"); err != nil {
		t.Fatalf("BumpReconnects: %v", err)
	}

	got, err = s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Cols != 120 || got.Rows != 40 {
		t.Errorf("geometry = %dx%d, want 120x40", got.Cols, got.Rows)
	}
	if got.BytesIn != 150 || got.BytesOut != 2500 {
		t.Errorf("traffic = %d/%d, want 150/2500", got.BytesIn, got.BytesOut)
	}
	if got.Reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", got.Reconnects)
	}

	if err := s.CloseSession("sess-1", "connection reset"); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	got, _ = s.GetSession("sess-1")
	if got.Status != "closed" || got.LastError != "connection reset" || got.ClosedAt == nil {
		t.Errorf("closed session = %+v", got)
	}
}

func TestGetSessionMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetSession("nope"); err == nil {
		t.Fatal("GetSession on missing id succeeded")
	}
}

func TestListSessions(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.CreateSession(&SavedSession{ID: id, Endpoint: "ws://x"}); err != nil {
			t.Fatalf("CreateSession %s: %v", id, err)
		}
	}
	sessions, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("sessions = %d, want 3", len(sessions))
	}
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)
	if got := s.GetSetting("theme", "dark"); got != "dark" {
		t.Errorf("missing setting = %q, want fallback dark", got)
	}
	if err := s.SetSetting("theme", "light"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if got := s.GetSetting("theme", "dark"); got != "light" {
		t.Errorf("setting = %q, want light", got)
	}
	if err := s.SetSetting("theme", "solarized"); err != nil {
		t.Fatalf("SetSetting update: %v", err)
	}
	if got := s.GetSetting("theme", "dark"); got != "solarized" {
		t.Errorf("updated setting = %q, want solarized", got)
	}
}

func TestKVImplementations(t *testing.T) {
	impls := []struct {
		name string
		kv   KV
	}{
		{"store", openTestStore(t)},
		{"memory", NewMemoryKV()},
	}
	for _, tt := range impls {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.kv.Get("absent"); err == nil {
				t.Error("Get on absent key succeeded")
			}
			if err := tt.kv.Set("font", "monospace"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := tt.kv.Get("font")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != "monospace" {
				t.Errorf("Get = %q, want monospace", got)
			}
		})
	}
}
