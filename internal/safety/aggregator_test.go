package safety

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safespacefinder/safespace/internal/domain"
	apperrors "github.com/safespacefinder/safespace/pkg/errors"
)

// memoryStore implements ReviewStore and BusinessStore over maps and
// records the order of calls.
type memoryStore struct {
	mu         sync.Mutex
	reviews    map[string][]domain.Review
	aggregates map[string]domain.Aggregate
	calls      []string
	readErr    error
	writeErr   error
	writes     int
}

func newMemoryStore(businessIDs ...string) *memoryStore {
	s := &memoryStore{
		reviews:    make(map[string][]domain.Review),
		aggregates: make(map[string]domain.Aggregate),
	}
	for _, id := range businessIDs {
		s.aggregates[id] = domain.Aggregate{}
	}
	return s
}

func (s *memoryStore) add(businessID string, rating int, verified bool, status domain.ReviewStatus) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("%s-r%d", businessID, len(s.reviews[businessID])+1)
	s.reviews[businessID] = append(s.reviews[businessID], domain.Review{
		ID: id, BusinessID: businessID, Rating: rating, Verified: verified, Status: status,
	})
	return id
}

func (s *memoryStore) remove(businessID, reviewID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.reviews[businessID][:0]
	for _, r := range s.reviews[businessID] {
		if r.ID != reviewID {
			kept = append(kept, r)
		}
	}
	s.reviews[businessID] = kept
}

func (s *memoryStore) FindAllByBusinessID(_ context.Context, businessID string) ([]domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "read:"+businessID)
	if s.readErr != nil {
		return nil, s.readErr
	}
	return append([]domain.Review(nil), s.reviews[businessID]...), nil
}

func (s *memoryStore) UpdateAggregate(_ context.Context, businessID string, agg domain.Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "write:"+businessID)
	if s.writeErr != nil {
		return s.writeErr
	}
	if _, ok := s.aggregates[businessID]; !ok {
		return fmt.Errorf("business %s: %w", businessID, apperrors.ErrNotFound)
	}
	s.aggregates[businessID] = agg
	s.writes++
	return nil
}

func (s *memoryStore) aggregate(businessID string) domain.Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggregates[businessID]
}

type recordingSink struct {
	mu        sync.Mutex
	cached    map[string]domain.Aggregate
	published []string
	evicted   []string
	err       error
}

func (r *recordingSink) Set(_ context.Context, businessID string, agg domain.Aggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.cached == nil {
		r.cached = make(map[string]domain.Aggregate)
	}
	r.cached[businessID] = agg
	return nil
}

func (r *recordingSink) Delete(_ context.Context, businessID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cached, businessID)
	r.evicted = append(r.evicted, businessID)
	return nil
}

func (r *recordingSink) PublishScoreUpdated(_ context.Context, businessID string, _ domain.Aggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.published = append(r.published, businessID)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecompute_EmptyBusiness(t *testing.T) {
	store := newMemoryStore("b1")
	store.aggregates["b1"] = domain.Aggregate{SafetyScore: 50, AverageRating: 3, TotalReviews: 4}
	agg := NewAggregator(store, store, quietLogger())

	require.NoError(t, agg.Recompute(context.Background(), "b1"))
	assert.Equal(t, domain.Aggregate{}, store.aggregate("b1"))
}

func TestRecompute_ReadsThenWritesOnce(t *testing.T) {
	store := newMemoryStore("b1")
	store.add("b1", 5, true, domain.ReviewStatusApproved)
	agg := NewAggregator(store, store, quietLogger())

	require.NoError(t, agg.Recompute(context.Background(), "b1"))
	assert.Equal(t, []string{"read:b1", "write:b1"}, store.calls)
}

func TestRecompute_Idempotent(t *testing.T) {
	store := newMemoryStore("b1")
	store.add("b1", 5, true, domain.ReviewStatusApproved)
	store.add("b1", 2, false, domain.ReviewStatusApproved)
	agg := NewAggregator(store, store, quietLogger())

	require.NoError(t, agg.Recompute(context.Background(), "b1"))
	first := store.aggregate("b1")
	require.NoError(t, agg.Recompute(context.Background(), "b1"))

	assert.Equal(t, first, store.aggregate("b1"))
	assert.Equal(t, 2, store.writes)
}

func TestRecompute_AfterDeletion(t *testing.T) {
	store := newMemoryStore("b1")
	five := store.add("b1", 5, true, domain.ReviewStatusApproved)
	store.add("b1", 4, true, domain.ReviewStatusApproved)
	store.add("b1", 1, false, domain.ReviewStatusApproved)
	agg := NewAggregator(store, store, quietLogger())

	require.NoError(t, agg.Recompute(context.Background(), "b1"))
	assert.Equal(t, domain.Aggregate{SafetyScore: 63, AverageRating: 3.3, TotalReviews: 3}, store.aggregate("b1"))

	store.remove("b1", five)
	require.NoError(t, agg.Recompute(context.Background(), "b1"))
	assert.Equal(t, domain.Aggregate{SafetyScore: 40, AverageRating: 2.5, TotalReviews: 2}, store.aggregate("b1"))
}

func TestRecompute_StatusPolicy(t *testing.T) {
	seed := func() *memoryStore {
		s := newMemoryStore("b1")
		s.add("b1", 5, true, domain.ReviewStatusApproved)
		s.add("b1", 1, false, domain.ReviewStatusPending)
		s.add("b1", 1, false, domain.ReviewStatusRejected)
		s.add("b1", 1, false, domain.ReviewStatusFlagged)
		return s
	}

	tests := []struct {
		name string
		opts []Option
		want int
	}{
		{"default counts approved only", nil, 1},
		{"approved and pending", []Option{WithCountedStatuses(domain.ReviewStatusApproved, domain.ReviewStatusPending)}, 2},
		{"empty policy counts everything", []Option{WithCountedStatuses()}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seed()
			agg := NewAggregator(store, store, quietLogger(), tt.opts...)
			require.NoError(t, agg.Recompute(context.Background(), "b1"))
			assert.Equal(t, tt.want, store.aggregate("b1").TotalReviews)
		})
	}
}

func TestAggregator_Counts(t *testing.T) {
	agg := NewAggregator(nil, nil, quietLogger())
	assert.True(t, agg.Counts(domain.ReviewStatusApproved))
	assert.False(t, agg.Counts(domain.ReviewStatusPending))
	assert.Equal(t, []domain.ReviewStatus{domain.ReviewStatusApproved}, agg.CountedStatuses())

	all := NewAggregator(nil, nil, quietLogger(), WithCountedStatuses())
	assert.True(t, all.Counts(domain.ReviewStatusFlagged))
}

func TestRecompute_BusinessNotFoundIsNoop(t *testing.T) {
	store := newMemoryStore()
	store.add("gone", 5, true, domain.ReviewStatusApproved)
	sink := &recordingSink{}
	agg := NewAggregator(store, store, quietLogger(), WithCache(sink), WithPublisher(sink))

	assert.NoError(t, agg.Recompute(context.Background(), "gone"))
	assert.Empty(t, sink.cached)
	assert.Empty(t, sink.published)
}

func TestRecompute_ReadErrorPropagates(t *testing.T) {
	storageErr := errors.New("connection reset")
	store := newMemoryStore("b1")
	store.readErr = storageErr
	agg := NewAggregator(store, store, quietLogger())

	err := agg.Recompute(context.Background(), "b1")
	require.Error(t, err)
	assert.ErrorIs(t, err, storageErr)
	assert.Equal(t, []string{"read:b1"}, store.calls, "nothing may be written after a failed read")
}

func TestRecompute_WriteErrorPropagates(t *testing.T) {
	storageErr := apperrors.Unavailable("postgres", errors.New("timeout"))
	store := newMemoryStore("b1")
	store.writeErr = storageErr
	sink := &recordingSink{}
	agg := NewAggregator(store, store, quietLogger(), WithCache(sink), WithPublisher(sink))

	err := agg.Recompute(context.Background(), "b1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.Empty(t, sink.published)
}

func TestRecompute_SideEffects(t *testing.T) {
	store := newMemoryStore("b1")
	store.add("b1", 4, true, domain.ReviewStatusApproved)
	sink := &recordingSink{}
	agg := NewAggregator(store, store, quietLogger(), WithCache(sink), WithPublisher(sink))

	require.NoError(t, agg.Recompute(context.Background(), "b1"))
	assert.Equal(t, store.aggregate("b1"), sink.cached["b1"])
	assert.Equal(t, []string{"b1"}, sink.published)
}

func TestRecompute_SideEffectFailuresAreIgnored(t *testing.T) {
	store := newMemoryStore("b1")
	store.add("b1", 4, true, domain.ReviewStatusApproved)
	sink := &recordingSink{err: errors.New("redis down")}
	agg := NewAggregator(store, store, quietLogger(), WithCache(sink), WithPublisher(sink))

	assert.NoError(t, agg.Recompute(context.Background(), "b1"))
	assert.Equal(t, 1, store.aggregate("b1").TotalReviews)
}

func TestRecompute_FailedCacheWriteEvictsStaleEntry(t *testing.T) {
	store := newMemoryStore("b1")
	store.add("b1", 5, true, domain.ReviewStatusApproved)
	sink := &recordingSink{
		cached: map[string]domain.Aggregate{"b1": {}},
		err:    errors.New("redis timeout"),
	}
	agg := NewAggregator(store, store, quietLogger(), WithCache(sink))

	require.NoError(t, agg.Recompute(context.Background(), "b1"))

	assert.Equal(t, []string{"b1"}, sink.evicted)
	assert.NotContains(t, sink.cached, "b1")
	assert.Equal(t, 100, store.aggregate("b1").SafetyScore)
}

func TestRecompute_SuccessfulCacheWriteDoesNotEvict(t *testing.T) {
	store := newMemoryStore("b1")
	store.add("b1", 3, false, domain.ReviewStatusApproved)
	sink := &recordingSink{}
	agg := NewAggregator(store, store, quietLogger(), WithCache(sink))

	require.NoError(t, agg.Recompute(context.Background(), "b1"))
	assert.Empty(t, sink.evicted)
}

// blockingStore counts concurrent readers per business.
type blockingStore struct {
	*memoryStore
	active    sync.Map
	maxActive atomic.Int32
	entered   chan string
	release   chan struct{}
}

func (s *blockingStore) FindAllByBusinessID(ctx context.Context, businessID string) ([]domain.Review, error) {
	v, _ := s.active.LoadOrStore(businessID, new(atomic.Int32))
	n := v.(*atomic.Int32).Add(1)
	defer v.(*atomic.Int32).Add(-1)
	for {
		cur := s.maxActive.Load()
		if n <= cur || s.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}

	if s.entered != nil {
		s.entered <- businessID
	}
	if s.release != nil {
		<-s.release
	} else {
		time.Sleep(time.Millisecond)
	}
	return s.memoryStore.FindAllByBusinessID(ctx, businessID)
}

func TestRecompute_SerializesPerBusiness(t *testing.T) {
	store := &blockingStore{memoryStore: newMemoryStore("b1")}
	store.add("b1", 5, true, domain.ReviewStatusApproved)
	agg := NewAggregator(store, store, quietLogger())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, agg.Recompute(context.Background(), "b1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), store.maxActive.Load())
	assert.Equal(t, 20, store.writes)
	assert.Zero(t, agg.locks.size())
}

func TestRecompute_DifferentBusinessesRunInParallel(t *testing.T) {
	store := &blockingStore{
		memoryStore: newMemoryStore("b1", "b2"),
		entered:     make(chan string, 2),
		release:     make(chan struct{}),
	}
	agg := NewAggregator(store, store, quietLogger())

	errs := make(chan error, 2)
	for _, id := range []string{"b1", "b2"} {
		go func() { errs <- agg.Recompute(context.Background(), id) }()
	}

	seen := map[string]bool{}
	for range 2 {
		select {
		case id := <-store.entered:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("second business blocked behind the first")
		}
	}
	close(store.release)

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Equal(t, map[string]bool{"b1": true, "b2": true}, seen)
}

func TestRecompute_ContextCanceledWhileWaiting(t *testing.T) {
	store := &blockingStore{
		memoryStore: newMemoryStore("b1"),
		entered:     make(chan string, 1),
		release:     make(chan struct{}),
	}
	agg := NewAggregator(store, store, quietLogger())

	done := make(chan error, 1)
	go func() { done <- agg.Recompute(context.Background(), "b1") }()
	<-store.entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := agg.Recompute(ctx, "b1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(store.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, store.writes)
	assert.Zero(t, agg.locks.size())
}

func TestRecompute_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	store := newMemoryStore("b1")
	store.add("b1", 5, false, domain.ReviewStatusApproved)
	agg := NewAggregator(store, store, quietLogger(), WithMetrics(m))

	require.NoError(t, agg.Recompute(context.Background(), "b1"))
	require.NoError(t, agg.Recompute(context.Background(), "missing"))
	store.readErr = errors.New("down")
	require.Error(t, agg.Recompute(context.Background(), "b1"))

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "safespace_safety_recomputes_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			counts[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"ok": 1, "not_found": 1, "error": 1}, counts)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
