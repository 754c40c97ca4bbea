// Package tier implements the layered vector store: a small hot
// generation and a larger warm generation held in process memory in
// front of the durable pgvector-backed cold tier. Search fans out
// across all three concurrently and merges by similarity; a hit in
// warm or cold promotes the chunk into hot, aging the coldest hot
// entry down into warm.
package tier

import (
	"container/list"
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
)

// ColdStore is the durable tier: the pgvector-backed chunk table.
type ColdStore interface {
	SelectChunksBySimilarity(embedding []float32, limit int, threshold float64, documentRIDs []uuid.UUID) ([]*model.Chunk, error)
	SelectChunk(id uuid.UUID) (*model.Chunk, error)
}

// Metrics are the prometheus counters the tiered store publishes.
type Metrics struct {
	Promotions prometheus.Counter
	Demotions  prometheus.Counter
	HotHits    prometheus.Counter
	WarmHits   prometheus.Counter
	ColdHits   prometheus.Counter
}

// NewMetrics registers a fresh Metrics set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tier_promotions_total",
			Help: "Chunks promoted into the hot generation after a warm or cold hit.",
		}),
		Demotions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tier_demotions_total",
			Help: "Chunks aged out of the hot generation into warm.",
		}),
		HotHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tier_hot_hits_total",
			Help: "Search candidates served from the hot generation.",
		}),
		WarmHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tier_warm_hits_total",
			Help: "Search candidates served from the warm generation.",
		}),
		ColdHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tier_cold_hits_total",
			Help: "Search candidates served from the durable cold tier.",
		}),
	}
	reg.MustRegister(m.Promotions, m.Demotions, m.HotHits, m.WarmHits, m.ColdHits)
	return m
}

// generation is a capacity-bounded LRU cache of chunks, keyed by id.
// put returns the least-recently-touched entry it evicts; the caller
// decides where it goes (promote demotes hot's evictee into warm and
// drops warm's).
type generation struct {
	capacity int
	order    *list.List
	index    map[uuid.UUID]*list.Element
}

type genEntry struct {
	chunk *model.Chunk
}

func newGeneration(capacity int) *generation {
	return &generation{capacity: capacity, order: list.New(), index: map[uuid.UUID]*list.Element{}}
}

func (g *generation) get(id uuid.UUID) (*model.Chunk, bool) {
	el, ok := g.index[id]
	if !ok {
		return nil, false
	}
	g.order.MoveToFront(el)
	return el.Value.(*genEntry).chunk, true
}

// put inserts or refreshes id, returning the evicted chunk (nil if
// none) when the generation was already at capacity.
func (g *generation) put(c *model.Chunk) *model.Chunk {
	if el, ok := g.index[c.ID]; ok {
		el.Value.(*genEntry).chunk = c
		g.order.MoveToFront(el)
		return nil
	}

	el := g.order.PushFront(&genEntry{chunk: c})
	g.index[c.ID] = el

	if g.capacity <= 0 || g.order.Len() <= g.capacity {
		return nil
	}

	back := g.order.Back()
	g.order.Remove(back)
	evicted := back.Value.(*genEntry).chunk
	delete(g.index, evicted.ID)
	return evicted
}

func (g *generation) remove(id uuid.UUID) {
	if el, ok := g.index[id]; ok {
		g.order.Remove(el)
		delete(g.index, id)
	}
}

func (g *generation) all() []*model.Chunk {
	out := make([]*model.Chunk, 0, g.order.Len())
	for el := g.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*genEntry).chunk)
	}
	return out
}

// Store is the tiered vector store: hot and warm in-memory generations
// over a durable cold store.
type Store struct {
	mu      sync.Mutex
	hot     *generation
	warm    *generation
	cold    ColdStore
	metrics *Metrics
}

// NewStore builds a tiered store. cfg sizes the hot and warm
// generations; cold is the durable pgvector-backed handler.
func NewStore(cold ColdStore, cfg helper.VectorTierConfig, metrics *Metrics) *Store {
	return &Store{
		hot:     newGeneration(cfg.HotCapacity),
		warm:    newGeneration(cfg.WarmCapacity),
		cold:    cold,
		metrics: metrics,
	}
}

// Put registers a freshly written chunk in the hot generation, ready
// for immediate recall without a round trip to cold storage.
func (s *Store) Put(c *model.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promote(c)
}

// Evict drops id from both in-memory generations, e.g. after a delete
// so a stale hot/warm copy never outlives the row it mirrors.
func (s *Store) Evict(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hot.remove(id)
	s.warm.remove(id)
}

// promote moves c to the front of hot, demoting whatever hot evicts
// into warm. Must be called with mu held.
func (s *Store) promote(c *model.Chunk) {
	s.warm.remove(c.ID)
	if evicted := s.hot.put(c); evicted != nil {
		s.warm.put(evicted)
		if s.metrics != nil {
			s.metrics.Demotions.Inc()
		}
	}
	if s.metrics != nil {
		s.metrics.Promotions.Inc()
	}
}

// Search fans hot, warm, and cold lookups out concurrently and merges
// the union by descending similarity, ties broken by id ascending. A
// warm or cold hit promotes the matched chunk into hot. filters, when
// non-empty, are applied as an in-process post-filter over each
// chunk's Metadata after scoring — cold's SQL layer only selects on
// documentRIDs, so generic property filters can't be pushed down
// without a schema change to SelectChunksBySimilarity.
func (s *Store) Search(ctx context.Context, embedding []float32, limit int, threshold float64, documentRIDs []uuid.UUID, filters map[string]interface{}) ([]*model.Chunk, error) {
	var hotResults, warmResults, coldResults []*model.Chunk

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		hotResults = s.scanGeneration(s.snapshotHot(), embedding, documentRIDs)
		return nil
	})
	g.Go(func() error {
		warmResults = s.scanGeneration(s.snapshotWarm(), embedding, documentRIDs)
		return nil
	})
	g.Go(func() error {
		chunks, err := s.cold.SelectChunksBySimilarity(embedding, limit, threshold, documentRIDs)
		if err != nil {
			return helper.NewError("cold tier search", err)
		}
		coldResults = chunks
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := s.merge(hotResults, warmResults, coldResults)
	merged = applyFilters(merged, filters)

	if threshold > 0 {
		merged = filterByThreshold(merged, threshold)
	}

	sortBySimilarity(merged)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	return merged, nil
}

func (s *Store) snapshotHot() []*model.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hot.all()
}

func (s *Store) snapshotWarm() []*model.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warm.all()
}

// scanGeneration computes cosine similarity in-process against every
// chunk of an in-memory generation, restricted to documentRIDs when
// given.
func (s *Store) scanGeneration(chunks []*model.Chunk, embedding []float32, documentRIDs []uuid.UUID) []*model.Chunk {
	allow := func(uuid.UUID) bool { return true }
	if len(documentRIDs) > 0 {
		set := make(map[uuid.UUID]bool, len(documentRIDs))
		for _, id := range documentRIDs {
			set[id] = true
		}
		allow = func(id uuid.UUID) bool { return set[id] }
	}

	out := make([]*model.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !allow(c.DocumentRID) {
			continue
		}
		sim := cosineSimilarity(c.Embedding, embedding)
		copied := *c
		copied.Similarity = &sim
		out = append(out, &copied)
	}
	return out
}

// merge deduplicates by chunk id across tiers (cold is authoritative
// when a chunk appears in more than one tier since it is never stale),
// promoting any warm or cold hit into hot.
func (s *Store) merge(hot, warm, cold []*model.Chunk) []*model.Chunk {
	byID := make(map[uuid.UUID]*model.Chunk, len(hot)+len(warm)+len(cold))
	order := make([]uuid.UUID, 0, len(hot)+len(warm)+len(cold))

	add := func(c *model.Chunk, tierHit func()) {
		if _, ok := byID[c.ID]; ok {
			return
		}
		byID[c.ID] = c
		order = append(order, c.ID)
		if tierHit != nil {
			tierHit()
		}
	}

	var hotHit, warmHit, coldHit func()
	if s.metrics != nil {
		hotHit = s.metrics.HotHits.Inc
		warmHit = s.metrics.WarmHits.Inc
		coldHit = s.metrics.ColdHits.Inc
	}

	for _, c := range hot {
		add(c, hotHit)
	}
	for _, c := range warm {
		add(c, warmHit)
	}

	s.mu.Lock()
	for _, c := range cold {
		if _, ok := byID[c.ID]; !ok {
			byID[c.ID] = c
			order = append(order, c.ID)
			if coldHit != nil {
				coldHit()
			}
			s.promote(c)
		} else {
			byID[c.ID] = c
		}
	}
	for _, c := range warm {
		s.promote(c)
	}
	s.mu.Unlock()

	out := make([]*model.Chunk, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func filterByThreshold(chunks []*model.Chunk, threshold float64) []*model.Chunk {
	out := make([]*model.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Similarity != nil && *c.Similarity < threshold {
			continue
		}
		out = append(out, c)
	}
	return out
}

// applyFilters drops chunks whose Metadata doesn't match every
// key/value pair in filters (equality only).
func applyFilters(chunks []*model.Chunk, filters map[string]interface{}) []*model.Chunk {
	if len(filters) == 0 {
		return chunks
	}
	out := make([]*model.Chunk, 0, len(chunks))
	for _, c := range chunks {
		match := true
		for k, v := range filters {
			if c.Metadata == nil {
				match = false
				break
			}
			if got, ok := c.Metadata[k]; !ok || got != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, c)
		}
	}
	return out
}

func sortBySimilarity(chunks []*model.Chunk) {
	sort.Slice(chunks, func(i, j int) bool {
		si, sj := 0.0, 0.0
		if chunks[i].Similarity != nil {
			si = *chunks[i].Similarity
		}
		if chunks[j].Similarity != nil {
			sj = *chunks[j].Similarity
		}
		if si != sj {
			return si > sj
		}
		return chunks[i].ID.String() < chunks[j].ID.String()
	})
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range a {
		normA += float64(x) * float64(x)
	}
	for _, x := range b {
		normB += float64(x) * float64(x)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
