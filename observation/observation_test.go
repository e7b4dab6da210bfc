package observation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pinwatch/availability"
	"github.com/hazyhaar/pinwatch/dbopen"
)

// backends returns a fresh, loaded store of every kind.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	fs := NewFileStore(filepath.Join(t.TempDir(), "state.json"), nil)
	if err := fs.Load(ctx); err != nil {
		t.Fatalf("file load: %v", err)
	}

	ss, err := NewSQLStore(dbopen.OpenMemory(t), nil)
	if err != nil {
		t.Fatalf("sql store: %v", err)
	}
	if err := ss.Load(ctx); err != nil {
		t.Fatalf("sql load: %v", err)
	}
	return map[string]Store{"file": fs, "sqlite": ss}
}

func rec(st availability.Status) Record {
	return Record{Status: st, Title: "Milk", URL: "https://shop.example/pd/1001/milk/", Slug: "milk", Location: "110001"}
}

func TestDiffAndSave_Sequence(t *testing.T) {
	// WHAT: out_of_stock -> in_stock -> in_stock for one key.
	// WHY: Only the real change may alert; the first sighting and repeats must not.
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := Key{ItemID: "1001", Location: "110001"}

			if tr := s.DiffAndSave(key, rec(availability.OutOfStock)); tr != nil {
				t.Fatalf("first observation produced %+v", tr)
			}

			tr := s.DiffAndSave(key, rec(availability.InStock))
			if tr == nil {
				t.Fatal("expected transition on change")
			}
			want := Transition{Title: "Milk", Location: "110001", From: availability.OutOfStock, To: availability.InStock, URL: "https://shop.example/pd/1001/milk/"}
			if diff := cmp.Diff(want, *tr); diff != "" {
				t.Errorf("transition mismatch (-want +got):\n%s", diff)
			}

			if tr := s.DiffAndSave(key, rec(availability.InStock)); tr != nil {
				t.Errorf("unchanged status produced %+v", tr)
			}

			if got := s.Transitions(); len(got) != 1 {
				t.Errorf("Transitions: got %d, want 1", len(got))
			}
			if got := s.Transitions(); len(got) != 0 {
				t.Errorf("Transitions should drain, got %d", len(got))
			}
		})
	}
}

func TestDiffAndSave_FirstSightingNeverTransitions(t *testing.T) {
	statuses := []availability.Status{availability.InStock, availability.OutOfStock, availability.Unknown, availability.Error}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i, st := range statuses {
				key := Key{ItemID: "item", Location: string(rune('a' + i))}
				if tr := s.DiffAndSave(key, rec(st)); tr != nil {
					t.Errorf("status %s: first sighting produced %+v", st, tr)
				}
				got, ok := s.Get(key)
				if !ok || got.Status != st {
					t.Errorf("status %s: record not written, got %+v", st, got)
				}
			}
		})
	}
}

func TestDiffAndSave_TransitionIffChanged(t *testing.T) {
	statuses := []availability.Status{availability.InStock, availability.OutOfStock, availability.Unknown, availability.Error}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, prev := range statuses {
				for _, next := range statuses {
					key := Key{ItemID: string(prev), Location: string(next)}
					s.DiffAndSave(key, rec(prev))
					tr := s.DiffAndSave(key, rec(next))
					if (tr != nil) != (prev != next) {
						t.Errorf("%s -> %s: transition=%v", prev, next, tr)
					}
				}
			}
		})
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "state.json")

	s := NewFileStore(path, nil)
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}
	key := Key{ItemID: "1001", Location: "110001"}
	s.DiffAndSave(key, rec(availability.OutOfStock))
	if err := s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := NewFileStore(path, nil)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	got, ok := reloaded.Get(key)
	if !ok {
		t.Fatal("record missing after reload")
	}
	if diff := cmp.Diff(rec(availability.OutOfStock), got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	if tr := reloaded.DiffAndSave(key, rec(availability.InStock)); tr == nil {
		t.Error("persisted baseline should make the change a transition")
	}
}

func TestFileStore_CorruptIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(path, nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("corrupt file must not error: %v", err)
	}
	key := Key{ItemID: "1", Location: "2"}
	if tr := s.DiffAndSave(key, rec(availability.InStock)); tr != nil {
		t.Errorf("corrupt state must behave as empty, got %+v", tr)
	}
}

func TestFileStore_UnknownStatusIsNoBaseline(t *testing.T) {
	// WHAT: a parseable state file whose record carries a status we never write.
	// WHY: treating it as a baseline would turn the first real sighting into
	// a false back-in-stock transition.
	path := filepath.Join(t.TempDir(), "state.json")
	data := `{
  "1001|110001": {"status": "garbage", "title": "Milk", "location_code": "110001"},
  "1002|110001": {"status": "out_of_stock", "title": "Bread", "location_code": "110001"}
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(path, nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	bad := Key{ItemID: "1001", Location: "110001"}
	if _, ok := s.Get(bad); ok {
		t.Error("record with unknown status was loaded")
	}
	if tr := s.DiffAndSave(bad, rec(availability.InStock)); tr != nil {
		t.Errorf("first real sighting produced %+v", tr)
	}
	if _, ok := s.Get(Key{ItemID: "1002", Location: "110001"}); !ok {
		t.Error("valid record next to the bad one was dropped")
	}
}

func TestSQLStore_UnknownStatusIsNoBaseline(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t)
	s, err := NewSQLStore(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO observations (item_id, location_code, status, updated_at)
		VALUES ('1001', '110001', 'garbage', 0)`); err != nil {
		t.Fatal(err)
	}
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}
	key := Key{ItemID: "1001", Location: "110001"}
	if tr := s.DiffAndSave(key, rec(availability.InStock)); tr != nil {
		t.Errorf("first real sighting produced %+v", tr)
	}
}

func TestFileStore_OnDiskFormat(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path, nil)
	s.Load(ctx)
	s.DiffAndSave(Key{ItemID: "1001", Location: "110001"}, rec(availability.InStock))
	if err := s.Save(ctx); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"1001|110001"`, `"status": "in_stock"`, `"location_code": "110001"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("state file missing %s:\n%s", want, data)
		}
	}
}

func TestSQLStore_PersistsAndRecordsHistory(t *testing.T) {
	ctx := context.Background()
	db := dbopen.OpenMemory(t)

	s, err := NewSQLStore(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Load(ctx)
	key := Key{ItemID: "1001", Location: "110001"}
	s.DiffAndSave(key, rec(availability.OutOfStock))
	s.DiffAndSave(key, rec(availability.InStock))
	if err := s.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := NewSQLStore(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	reloaded.Load(ctx)
	got, ok := reloaded.Get(key)
	if !ok || got.Status != availability.InStock || got.Location != "110001" {
		t.Errorf("reloaded record = %+v, %v", got, ok)
	}

	hist, err := reloaded.History(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].From != availability.OutOfStock || hist[0].To != availability.InStock {
		t.Errorf("history = %+v", hist)
	}
}

func TestParseKey(t *testing.T) {
	k, ok := ParseKey("1001|110001")
	if !ok || k != (Key{ItemID: "1001", Location: "110001"}) {
		t.Errorf("ParseKey = %+v, %v", k, ok)
	}
	if _, ok := ParseKey("nopipe"); ok {
		t.Error("expected failure without separator")
	}
}
