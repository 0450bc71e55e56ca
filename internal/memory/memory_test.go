package memory

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_DimensionMismatch(t *testing.T) {
	s := NewStore("")
	now := time.Now()

	if _, err := s.Store("first", []float32{1, 0, 0}, now, nil); err != nil {
		t.Fatal(err)
	}
	_, err := s.Store("second", []float32{1, 0}, now, nil)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
	if _, err := s.Store("", nil, now, nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("empty embedding err = %v, want ErrDimensionMismatch", err)
	}
}

func TestRecall_DecayPrefersFresh(t *testing.T) {
	// Two records of equal cosine 0.8 against the query; one stored now,
	// one 14 days ago with half_life 7d: 0.8 vs 0.8·0.25.
	s := NewStore("")
	now := time.Now()

	// cos(query, vec) = 0.8 for both records.
	vec := []float32{0.8, 0.6}
	query := []float32{1, 0}

	if _, err := s.Store("old", vec, now.Add(-14*24*time.Hour), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Store("fresh", vec, now, nil); err != nil {
		t.Fatal(err)
	}

	hits, err := s.Recall(query, 2, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Record.Text != "fresh" {
		t.Errorf("top hit = %q, want fresh record", hits[0].Record.Text)
	}
	if math.Abs(hits[0].Score-0.8) > 1e-6 {
		t.Errorf("fresh score = %f, want ≈0.8", hits[0].Score)
	}
	if math.Abs(hits[1].Score-0.2) > 1e-6 {
		t.Errorf("aged score = %f, want ≈0.2", hits[1].Score)
	}
}

func TestRecall_SkipsZeroNormRecords(t *testing.T) {
	// The heuristic embedder emits an all-zero vector for token-free
	// text; such a record must not score (NaN would corrupt the order).
	s := NewStore("")
	now := time.Now()

	if _, err := s.Store("blank", make([]float32, 4), now, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Store("signal", []float32{1, 0, 0, 0}, now, nil); err != nil {
		t.Fatal(err)
	}

	hits, err := s.Recall([]float32{1, 0, 0, 0}, 5, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Record.Text != "signal" {
		t.Fatalf("hits = %+v, want only the signal record", hits)
	}
	if math.IsNaN(hits[0].Score) {
		t.Error("score is NaN")
	}
}

func TestRecall_OrderingNonIncreasing(t *testing.T) {
	s := NewStore("")
	now := time.Now()
	vecs := [][]float32{{1, 0}, {0.9, 0.1}, {0.5, 0.5}, {0, 1}, {0.2, 0.8}}
	for i, v := range vecs {
		if _, err := s.Store(string(rune('a'+i)), v, now.Add(-time.Duration(i)*time.Hour), nil); err != nil {
			t.Fatal(err)
		}
	}
	hits, err := s.Recall([]float32{1, 0}, 10, now)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("scores not non-increasing at %d: %f > %f", i, hits[i].Score, hits[i-1].Score)
		}
	}
}

func TestRecall_EdgeCases(t *testing.T) {
	s := NewStore("")
	now := time.Now()

	if hits, err := s.Recall([]float32{1, 0}, 3, now); err != nil || len(hits) != 0 {
		t.Errorf("empty store: hits=%v err=%v, want empty/nil", hits, err)
	}

	if _, err := s.Store("x", []float32{1, 0}, now, nil); err != nil {
		t.Fatal(err)
	}
	if hits, err := s.Recall([]float32{0, 0}, 3, now); err != nil || len(hits) != 0 {
		t.Errorf("zero-norm query: hits=%v err=%v, want empty/nil", hits, err)
	}
	if _, err := s.Recall([]float32{1, 0, 0}, 3, now); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mismatched query should error, got %v", err)
	}
}

func TestEviction_StalestFirst(t *testing.T) {
	s := NewStore("", WithMaxRecords(3))
	now := time.Now()

	for i := 0; i < 5; i++ {
		ts := now.Add(time.Duration(i) * time.Minute)
		if _, err := s.Store(string(rune('a'+i)), []float32{1, 0}, ts, nil); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	hits, err := s.Recall([]float32{1, 0}, 10, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, h := range hits {
		got[h.Record.Text] = true
	}
	for _, want := range []string{"c", "d", "e"} {
		if !got[want] {
			t.Errorf("record %q missing after eviction; kept %v", want, got)
		}
	}
}

func TestPrune(t *testing.T) {
	s := NewStore("")
	now := time.Now()
	s.Store("old", []float32{1, 0}, now.Add(-30*24*time.Hour), nil)
	s.Store("new", []float32{1, 0}, now, nil)

	if n := s.PruneOlderThan(7*24*time.Hour, now); n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.bin")
	now := time.Unix(1_700_000_000, 0)

	s := NewStore(path)
	id, err := s.Store("remember me", []float32{0.1, 0.2, 0.3}, now, map[string]string{"type": "user"})
	if err != nil {
		t.Fatal(err)
	}
	s.Store("and me", []float32{0.4, 0.5, 0.6}, now.Add(time.Minute), nil)
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	loaded := NewStore(path)
	n, err := loaded.Load(3)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("loaded %d records, want 2", n)
	}
	hits, err := loaded.Recall([]float32{0.1, 0.2, 0.3}, 1, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Record.ID != id {
		t.Errorf("recall after load = %v, want record %s", hits, id)
	}
	if hits[0].Record.Tags["type"] != "user" {
		t.Errorf("tags lost in round trip: %v", hits[0].Record.Tags)
	}
}

func TestLoad_RejectsWrongDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.bin")
	s := NewStore(path)
	s.Store("x", []float32{1, 2, 3, 4}, time.Now(), nil)
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	other := NewStore(path)
	if _, err := other.Load(256); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("load with wrong embedder dim: err = %v, want ErrDimensionMismatch", err)
	}
	if other.Len() != 0 {
		t.Errorf("store mutated by failed load: len = %d", other.Len())
	}
}

func TestLoad_MissingFileIsFresh(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope.bin"))
	n, err := s.Load(0)
	if err != nil || n != 0 {
		t.Errorf("missing file: n=%d err=%v, want 0/nil", n, err)
	}
}
