// Package memory implements the agent's vector memory: an embedding store
// ranked by cosine similarity with exponential time decay, persisted as a
// typed binary matrix plus a JSON sidecar.
package memory

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrDimensionMismatch is returned when an embedding's dimension differs
// from the store's established dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// DefaultHalfLife governs forgetfulness: a record's score halves every week.
const DefaultHalfLife = 7 * 24 * time.Hour

// DefaultMaxRecords caps the store before stalest-first eviction kicks in.
const DefaultMaxRecords = 10_000

// Record is one immutable memory entry.
type Record struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	CreatedAt float64           `json:"created_at"` // unix seconds
	Tags      map[string]string `json:"tags,omitempty"`

	embedding []float32
}

// Hit pairs a recalled record with its combined cosine×decay score.
type Hit struct {
	Record Record
	Score  float64
}

// Store is the vector memory. One writer at a time; reads may overlap with
// each other but not with store/prune (RWMutex).
type Store struct {
	mu         sync.RWMutex
	records    []Record
	dim        int // 0 until the first store or load
	lambda     float64
	maxRecords int
	path       string
}

// Option configures a Store.
type Option func(*Store)

// WithHalfLife overrides the decay half-life.
func WithHalfLife(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lambda = math.Ln2 / d.Seconds()
		}
	}
}

// WithMaxRecords overrides the eviction cap.
func WithMaxRecords(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRecords = n
		}
	}
}

// NewStore creates a vector memory persisted at path (empty = in-memory).
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		lambda:     math.Ln2 / DefaultHalfLife.Seconds(),
		maxRecords: DefaultMaxRecords,
		path:       path,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Dimension returns the store's embedding dimension D (0 if empty).
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Store appends a record and returns its id. The first embedding fixes the
// store's dimension D; later embeddings must match or ErrDimensionMismatch
// is returned.
func (s *Store) Store(text string, embedding []float32, ts time.Time, tags map[string]string) (string, error) {
	if len(embedding) == 0 {
		return "", fmt.Errorf("%w: empty embedding", ErrDimensionMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		s.dim = len(embedding)
	} else if len(embedding) != s.dim {
		return "", fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.dim, len(embedding))
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	rec := Record{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: float64(ts.UnixNano()) / 1e9,
		Tags:      cloneTags(tags),
		embedding: vec,
	}
	s.records = append(s.records, rec)
	s.evictLocked(ts)
	return rec.ID, nil
}

// Recall returns up to k records ordered by descending cosine×decay score.
// An empty store or zero-norm query yields an empty result.
func (s *Store) Recall(query []float32, k int, now time.Time) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(query), s.dim)
	}
	qNorm := norm(query)
	if qNorm == 0 {
		return nil, nil
	}

	nowSec := float64(now.UnixNano()) / 1e9
	hits := make([]Hit, 0, len(s.records))
	for i := range s.records {
		rec := &s.records[i]
		rNorm := norm(rec.embedding)
		if rNorm == 0 {
			// A zero-norm embedding has no direction; scoring it would
			// divide by zero and poison the sort with NaN.
			continue
		}
		cos := dot(query, rec.embedding) / (qNorm * rNorm)
		hits = append(hits, Hit{Record: *rec, Score: cos * s.decay(nowSec-rec.CreatedAt)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.CreatedAt > hits[j].Record.CreatedAt
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// PruneOlderThan removes records older than the given age and compacts the
// store. Returns the number removed.
func (s *Store) PruneOlderThan(age time.Duration, now time.Time) int {
	cutoff := float64(now.Add(-age).UnixNano()) / 1e9
	return s.prune(func(r *Record) bool { return r.CreatedAt < cutoff })
}

// PruneBelowScore removes records whose decay weight at `now` falls below
// minScore. Returns the number removed.
func (s *Store) PruneBelowScore(minScore float64, now time.Time) int {
	nowSec := float64(now.UnixNano()) / 1e9
	return s.prune(func(r *Record) bool { return s.decay(nowSec-r.CreatedAt) < minScore })
}

func (s *Store) prune(drop func(*Record) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	removed := 0
	for i := range s.records {
		if drop(&s.records[i]) {
			removed++
			continue
		}
		kept = append(kept, s.records[i])
	}
	s.records = kept
	if len(s.records) == 0 {
		s.dim = 0
	}
	return removed
}

// Clear drops all records.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.dim = 0
}

// evictLocked removes the stalest records (lowest decay weight, i.e. oldest)
// until the store is back at its cap. Stable across calls: ties keep the
// later-stored record.
func (s *Store) evictLocked(now time.Time) {
	if len(s.records) <= s.maxRecords {
		return
	}
	over := len(s.records) - s.maxRecords

	type aged struct {
		idx       int
		createdAt float64
	}
	byAge := make([]aged, len(s.records))
	for i := range s.records {
		byAge[i] = aged{idx: i, createdAt: s.records[i].CreatedAt}
	}
	sort.SliceStable(byAge, func(i, j int) bool { return byAge[i].createdAt < byAge[j].createdAt })

	drop := make(map[int]bool, over)
	for _, a := range byAge[:over] {
		drop[a.idx] = true
	}
	kept := s.records[:0]
	for i := range s.records {
		if !drop[i] {
			kept = append(kept, s.records[i])
		}
	}
	s.records = kept
}

func (s *Store) decay(ageSeconds float64) float64 {
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	return math.Exp(-s.lambda * ageSeconds)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return 0
	}
	return math.Sqrt(sum)
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
