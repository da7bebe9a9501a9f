package idem

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeClock is a controllable nanosecond clock shared by store tests.
type fakeClock struct {
	ns int64
}

func (c *fakeClock) now() int64              { return c.ns }
func (c *fakeClock) advance(d time.Duration) { c.ns += d.Nanoseconds() }

func ttl(d time.Duration) *time.Duration { return &d }

// openBackends builds one store per backend against the same fake clock so
// every semantic test runs on both.
func openBackends(t *testing.T, clock *fakeClock) map[string]Store {
	t.Helper()
	mem := NewMemoryStore(Options{NowNs: clock.now})
	sq, err := OpenSQLite(Options{Path: filepath.Join(t.TempDir(), "idem.db"), NowNs: clock.now})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{"memory": mem, "sqlite": sq}
}

func TestStorePutGetSeen(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{ns: 1}
	for name, s := range openBackends(t, clock) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put("k1", "v1", ttl(10*time.Minute)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			v, ok, err := s.Get("k1")
			if err != nil || !ok || v != "v1" {
				t.Fatalf("Get = (%q, %v, %v), want (v1, true, nil)", v, ok, err)
			}
			seen, err := s.Seen("k1")
			if err != nil || !seen {
				t.Fatalf("Seen = (%v, %v), want (true, nil)", seen, err)
			}
			if seen, _ := s.Seen("missing"); seen {
				t.Error("Seen(missing) = true")
			}
		})
	}
}

func TestStoreNilTTLPreservesExpiry(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{ns: 1}
	for name, s := range openBackends(t, clock) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put("k", "v1", ttl(10*time.Minute)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			// Rewrite with nil ttl: value updates, expiry stays.
			if err := s.Put("k", "v2", nil); err != nil {
				t.Fatalf("Put nil ttl: %v", err)
			}
			clock.advance(5 * time.Minute)
			if v, ok, _ := s.Get("k"); !ok || v != "v2" {
				t.Fatalf("Get = (%q, %v), want (v2, true)", v, ok)
			}
			clock.advance(6 * time.Minute) // past the original 10m expiry
			if _, ok, _ := s.Get("k"); ok {
				t.Error("expiry was not preserved by nil-ttl put")
			}
		})
	}
}

func TestStoreMarkPreservesValue(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{ns: 1}
	for name, s := range openBackends(t, clock) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put("k", "payload", ttl(time.Minute)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := s.Mark("k", time.Hour); err != nil {
				t.Fatalf("Mark: %v", err)
			}
			clock.advance(30 * time.Minute) // beyond old expiry, within new
			v, ok, _ := s.Get("k")
			if !ok || v != "payload" {
				t.Errorf("Get after mark = (%q, %v), want (payload, true)", v, ok)
			}
		})
	}
}

func TestStoreRetentionScenario(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{ns: 1}
	mem := NewMemoryStore(Options{NowNs: clock.now, Retention: 30 * 24 * time.Hour})
	sq, err := OpenSQLite(Options{Path: filepath.Join(t.TempDir(), "idem.db"),
		NowNs: clock.now, Retention: 30 * 24 * time.Hour})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer sq.Close()

	for name, s := range map[string]Store{"memory": mem, "sqlite": sq} {
		t.Run(name, func(t *testing.T) {
			if err := s.Mark("k1", 10*time.Minute); err != nil {
				t.Fatalf("Mark: %v", err)
			}

			clock.advance(5 * time.Minute)
			if n, _ := s.CleanupExpired(); n != 0 {
				t.Errorf("cleanup removed %d rows before expiry", n)
			}
			if seen, _ := s.Seen("k1"); !seen {
				t.Error("k1 should still be seen at 5min")
			}

			clock.advance(6 * time.Minute) // now expired
			if seen, _ := s.Seen("k1"); seen {
				t.Error("k1 should be expired at 11min")
			}
			if n, _ := s.Size(); n != 1 {
				t.Errorf("size = %d, want 1 (reads never delete)", n)
			}
			if n, _ := s.CleanupExpired(); n != 0 {
				t.Errorf("cleanup removed %d rows inside retention window", n)
			}

			clock.advance(31 * 24 * time.Hour)
			if n, _ := s.CleanupExpired(); n != 1 {
				t.Errorf("cleanup removed %d rows after retention, want 1", n)
			}
			if n, _ := s.Size(); n != 0 {
				t.Errorf("size = %d after retention sweep, want 0", n)
			}

			clock.ns = 1 // reset for the second backend
		})
	}
}

func TestStoreClearAndSize(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{ns: 1}
	for name, s := range openBackends(t, clock) {
		t.Run(name, func(t *testing.T) {
			_ = s.Put("a", "1", ttl(time.Minute))
			_ = s.Put("b", "2", ttl(time.Minute))
			if n, _ := s.Size(); n != 2 {
				t.Errorf("size = %d, want 2", n)
			}
			if err := s.Clear(); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if n, _ := s.Size(); n != 0 {
				t.Errorf("size after clear = %d, want 0", n)
			}
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "idem.db")
	clock := &fakeClock{ns: 1}

	s, err := OpenSQLite(Options{Path: path, NowNs: clock.now})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.Put("persist", "value", ttl(time.Hour)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := OpenSQLite(Options{Path: path, NowNs: clock.now})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	v, ok, err := s2.Get("persist")
	if err != nil || !ok || v != "value" {
		t.Errorf("Get after reopen = (%q, %v, %v)", v, ok, err)
	}
}

func TestOpenBackendSelection(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	tests := []struct {
		backend string
		want    string
	}{
		{"memory", "*idem.MemoryStore"},
		{"", "*idem.MemoryStore"},
		{"sqlite", "*idem.SQLiteStore"},
		{"redis", "*idem.MemoryStore"}, // unknown → memory fallback, no error
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := Open(Options{Backend: tt.backend, Path: filepath.Join(t.TempDir(), "x.db")}, logger)
			if err != nil {
				t.Fatalf("Open(%q): %v", tt.backend, err)
			}
			defer s.Close()
			if got := typeName(s); got != tt.want {
				t.Errorf("Open(%q) = %s, want %s", tt.backend, got, tt.want)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *MemoryStore:
		return "*idem.MemoryStore"
	case *SQLiteStore:
		return "*idem.SQLiteStore"
	default:
		return "unknown"
	}
}
