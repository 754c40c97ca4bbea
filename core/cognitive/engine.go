// Package cognitive implements the bounded online-learning layer: a
// trajectory lifecycle (Open->Closed->Consumed), a learning tick that
// folds closed trajectories into a capped pattern store, and a
// softmax-weighted rerank over learned patterns. Learning never
// mutates the vector or graph stores.
package cognitive

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/siherrmann/knowledge/helper"
	"github.com/siherrmann/knowledge/model"
)

// TrajectoryDB is the persistence surface the engine needs for the
// trajectory lifecycle.
type TrajectoryDB interface {
	BeginTrajectory(queryEmbedding []float32, routeTag string, contextIDs []uuid.UUID) (*model.Trajectory, error)
	AppendTrajectoryStep(id uuid.UUID, step model.TrajectoryStep) (*model.Trajectory, error)
	CloseTrajectory(id uuid.UUID, quality float64) (*model.Trajectory, error)
	SelectTrajectory(id uuid.UUID) (*model.Trajectory, error)
	SelectClosedTrajectories(limit int) ([]*model.Trajectory, error)
	MarkTrajectoriesConsumed(ids []uuid.UUID) error
	GCConsumedTrajectories() (int, error)
}

// PatternDB is the persistence surface the engine needs for the
// pattern store.
type PatternDB interface {
	InsertPattern(pattern *model.LearnedPattern) error
	SelectPatternsBySimilarity(embedding []float32, limit int) ([]*model.LearnedPattern, error)
	UpdatePattern(pattern *model.LearnedPattern) error
	CountPatterns() (int64, error)
	SelectPatternToEvict() (*model.LearnedPattern, error)
	DeletePattern(id uuid.UUID) error
}

// Capabilities reports what the cognitive engine can currently do, so
// callers can probe before requesting rerank rather than being silently
// downgraded (spec's "no silent fall-through").
type Capabilities struct {
	Enabled        bool
	RerankCapable  bool
	PatternCount   int64
}

// Metrics are the prometheus counters/histograms the learning tick and
// rerank path publish.
type Metrics struct {
	TickDuration   prometheus.Histogram
	DrainedBatch   prometheus.Histogram
	PatternStoreSize prometheus.Gauge
	TickFailures   prometheus.Counter
}

// NewMetrics registers a fresh Metrics set against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// registry across parallel test binaries.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "cognitive_tick_duration_seconds",
			Help: "Duration of learning-tick drains.",
		}),
		DrainedBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cognitive_tick_drained_trajectories",
			Help:    "Number of trajectories folded per tick.",
			Buckets: prometheus.LinearBuckets(0, 8, 8),
		}),
		PatternStoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cognitive_pattern_store_size",
			Help: "Current number of learned patterns.",
		}),
		TickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cognitive_tick_failures_total",
			Help: "Learning ticks that failed and left the pattern store untouched.",
		}),
	}
	reg.MustRegister(m.TickDuration, m.DrainedBatch, m.PatternStoreSize, m.TickFailures)
	return m
}

// Engine is the cognitive layer: trajectory lifecycle plus learning
// tick plus rerank. It exclusively owns the pattern store and
// trajectory buffer (spec §3 "Ownership").
type Engine struct {
	mu sync.Mutex

	trajectories TrajectoryDB
	patterns     PatternDB
	cfg          helper.CognitiveConfig
	metrics      *Metrics

	queuedSinceTick int
	lastTick        time.Time
}

// NewEngine builds a cognitive engine over the given trajectory and
// pattern stores. cfg.Enabled=false puts the engine in the Disabled
// state: every lifecycle call still records state honestly, but Tick
// and ForceLearn are no-ops that return "disabled" per spec §4.7/§7.
func NewEngine(trajectories TrajectoryDB, patterns PatternDB, cfg helper.CognitiveConfig, metrics *Metrics) *Engine {
	return &Engine{
		trajectories: trajectories,
		patterns:     patterns,
		cfg:          cfg,
		metrics:      metrics,
		lastTick:     time.Now(),
	}
}

// Begin opens a new trajectory for a query episode.
func (e *Engine) Begin(queryEmbedding []float32, routeTag string, contextIDs []uuid.UUID) (uuid.UUID, error) {
	t, err := e.trajectories.BeginTrajectory(queryEmbedding, routeTag, contextIDs)
	if err != nil {
		return uuid.Nil, helper.NewError("begin trajectory", err)
	}
	return t.ID, nil
}

// Step appends a (embedding, reward) pair to an Open trajectory.
func (e *Engine) Step(id uuid.UUID, stepEmbedding []float32, reward float64) error {
	_, err := e.trajectories.AppendTrajectoryStep(id, model.TrajectoryStep{Embedding: stepEmbedding, Reward: reward})
	if err != nil {
		return helper.NewError("append trajectory step", err)
	}
	return nil
}

// End closes a trajectory with its final quality scalar and enqueues it
// for the next learning tick.
func (e *Engine) End(id uuid.UUID, quality float64) error {
	if _, err := e.trajectories.CloseTrajectory(id, quality); err != nil {
		return helper.NewError("close trajectory", err)
	}

	e.mu.Lock()
	e.queuedSinceTick++
	e.mu.Unlock()

	return nil
}

// Tick inspects the queue and, if size >= DrainBatchSize or elapsed
// wall time >= DrainIntervalSecs, drains a bounded batch of closed
// trajectories into the pattern store. Returns a human-readable summary
// of what happened, never an error that would poison the caller's
// search path unless the tick itself could not run at all.
func (e *Engine) Tick(ctx context.Context) (string, error) {
	if !e.cfg.Enabled {
		return "disabled", nil
	}

	e.mu.Lock()
	due := e.queuedSinceTick >= e.cfg.DrainBatchSize ||
		time.Since(e.lastTick) >= time.Duration(e.cfg.DrainIntervalSecs)*time.Second
	e.mu.Unlock()

	if !due {
		return "idle: drain threshold not reached", nil
	}

	return e.drain(ctx)
}

// ForceLearn performs a drain regardless of thresholds.
func (e *Engine) ForceLearn(ctx context.Context) (string, error) {
	if !e.cfg.Enabled {
		return "disabled", nil
	}
	return e.drain(ctx)
}

// drain folds up to DrainBatchSize closed trajectories into the pattern
// store. On any failure partway through, the batch is marked failed
// (not re-queued) and the pattern store is left at its pre-batch state
// for whichever trajectories were not yet consumed; already-consumed
// ones are not reprocessed (spec §7: "learning failures never poison
// search").
func (e *Engine) drain(ctx context.Context) (string, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	trajectories, err := e.trajectories.SelectClosedTrajectories(e.cfg.DrainBatchSize)
	if err != nil {
		e.recordFailure()
		return "", helper.NewError("select closed trajectories", err)
	}
	if len(trajectories) == 0 {
		e.lastTick = time.Now()
		return "drained 0 trajectories: none pending", nil
	}

	consumed := make([]uuid.UUID, 0, len(trajectories))
	for _, t := range trajectories {
		if err := e.foldTrajectory(t); err != nil {
			e.recordFailure()
			return "", helper.NewError("fold trajectory", fmt.Errorf("trajectory %s: %w", t.ID, err))
		}
		consumed = append(consumed, t.ID)
	}

	if err := e.trajectories.MarkTrajectoriesConsumed(consumed); err != nil {
		e.recordFailure()
		return "", helper.NewError("mark trajectories consumed", err)
	}

	e.queuedSinceTick = 0
	e.lastTick = time.Now()

	if e.metrics != nil {
		e.metrics.TickDuration.Observe(time.Since(start).Seconds())
		e.metrics.DrainedBatch.Observe(float64(len(consumed)))
		if count, err := e.patterns.CountPatterns(); err == nil {
			e.metrics.PatternStoreSize.Set(float64(count))
		}
	}

	return fmt.Sprintf("drained %d trajectories", len(consumed)), nil
}

func (e *Engine) recordFailure() {
	if e.metrics != nil {
		e.metrics.TickFailures.Inc()
	}
}

// foldTrajectory computes the reward-weighted trajectory embedding,
// merges it into the nearest existing pattern (if within
// MergeThreshold cosine similarity) or inserts a new one, then evicts
// the weakest pattern if the store now exceeds its cap.
func (e *Engine) foldTrajectory(t *model.Trajectory) error {
	embedding, avgReward := trajectoryEmbedding(t)
	if embedding == nil {
		return nil // no steps recorded: nothing to learn from
	}

	neighbors, err := e.patterns.SelectPatternsBySimilarity(embedding, 1)
	if err != nil {
		return err
	}

	if len(neighbors) > 0 && cosineSimilarity(neighbors[0].Embedding, embedding) >= e.cfg.MergeThreshold {
		merged := neighbors[0]
		merged.Embedding = l2Normalize(average(merged.Embedding, embedding, merged.Frequency))
		merged.Frequency++
		merged.AverageReward = emaUpdate(merged.AverageReward, avgReward, merged.Frequency)
		if err := e.patterns.UpdatePattern(merged); err != nil {
			return err
		}
	} else {
		if err := e.patterns.InsertPattern(&model.LearnedPattern{
			Embedding:     embedding,
			Frequency:     1,
			AverageReward: avgReward,
		}); err != nil {
			return err
		}
	}

	return e.evictIfOverCap()
}

func (e *Engine) evictIfOverCap() error {
	if e.cfg.PatternCap <= 0 {
		return nil
	}
	count, err := e.patterns.CountPatterns()
	if err != nil {
		return err
	}
	if count <= int64(e.cfg.PatternCap) {
		return nil
	}
	victim, err := e.patterns.SelectPatternToEvict()
	if err != nil {
		return err
	}
	return e.patterns.DeletePattern(victim.ID)
}

// FindPatterns returns the k nearest learned patterns to queryEmbedding
// by cosine similarity.
func (e *Engine) FindPatterns(queryEmbedding []float32, k int) ([]*model.LearnedPattern, error) {
	patterns, err := e.patterns.SelectPatternsBySimilarity(queryEmbedding, k)
	if err != nil {
		return nil, helper.NewError("find patterns", err)
	}
	return patterns, nil
}

// Rerank reorders candidates by a softmax-weighted blend of
// candidate-query similarity and learned-pattern affinity. It never
// silently degrades: the caller asked for rerank, so an engine with no
// patterns configured to draw on still computes a query-similarity-only
// rerank rather than failing — capability absence is reported upfront
// via GetCapabilities, not mid-call.
func (e *Engine) Rerank(ctx context.Context, queryEmbedding []float32, candidates []*model.RetrievalResult, k int) ([]*model.RetrievalResult, error) {
	return e.RerankWithTemperature(ctx, queryEmbedding, candidates, k, 1.0)
}

// RerankWithTemperature is Rerank with an explicit softmax temperature
// (spec §4.7's rerank({k, temperature})).
func (e *Engine) RerankWithTemperature(ctx context.Context, queryEmbedding []float32, candidates []*model.RetrievalResult, k int, temperature float64) ([]*model.RetrievalResult, error) {
	if temperature <= 0 {
		temperature = 1.0
	}

	patterns, err := e.patterns.SelectPatternsBySimilarity(queryEmbedding, 8)
	if err != nil {
		return nil, helper.NewError("rerank pattern lookup", err)
	}

	scored := make([]*model.RetrievalResult, len(candidates))
	weights := make([]float64, len(candidates))
	for i, c := range candidates {
		scored[i] = c
		weights[i] = c.CombinedScore + patternAffinity(patterns, c)
	}

	softmaxInPlace(weights, temperature)
	for i, r := range scored {
		r.CombinedScore = weights[i]
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].CombinedScore != scored[j].CombinedScore {
			return scored[i].CombinedScore > scored[j].CombinedScore
		}
		return scored[i].NodeID.String() < scored[j].NodeID.String()
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// GetCapabilities reports whether the engine is enabled and can serve
// rerank, plus the current pattern store size.
func (e *Engine) GetCapabilities() Capabilities {
	count, _ := e.patterns.CountPatterns()
	return Capabilities{
		Enabled:       e.cfg.Enabled,
		RerankCapable: e.cfg.Enabled,
		PatternCount:  count,
	}
}

// trajectoryEmbedding computes the normalized reward-weighted sum of a
// trajectory's step embeddings, and the plain average reward across
// steps. Returns (nil, 0) for a trajectory with no steps.
func trajectoryEmbedding(t *model.Trajectory) ([]float32, float64) {
	if len(t.Steps) == 0 {
		return nil, 0
	}

	dim := len(t.Steps[0].Embedding)
	sum := make([]float32, dim)
	var rewardSum float64

	for _, step := range t.Steps {
		for i, v := range step.Embedding {
			if i < dim {
				sum[i] += v * float32(step.Reward)
			}
		}
		rewardSum += step.Reward
	}

	return l2Normalize(sum), rewardSum / float64(len(t.Steps))
}

func average(a, b []float32, priorFrequency int) []float32 {
	out := make([]float32, len(a))
	n := float32(priorFrequency)
	for i := range a {
		var bi float32
		if i < len(b) {
			bi = b[i]
		}
		out[i] = (a[i]*n + bi) / (n + 1)
	}
	return out
}

func emaUpdate(avg, sample float64, frequency int) float64 {
	alpha := 1.0 / float64(frequency)
	return avg*(1-alpha) + sample*alpha
}

func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
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

// patternAffinity scores how well candidate's own embedding matches the
// best-fitting learned pattern, weighted by that pattern's average
// reward: a candidate sitting near a pattern the engine has learned
// pays off gets a boost, one near an unrewarding pattern (or near none
// at all) doesn't. Scaled down so vector/graph score still dominates
// ranking.
func patternAffinity(patterns []*model.LearnedPattern, candidate *model.RetrievalResult) float64 {
	if len(patterns) == 0 || len(candidate.Embedding) == 0 {
		return 0
	}
	var best float64
	for _, p := range patterns {
		affinity := cosineSimilarity(p.Embedding, candidate.Embedding) * p.AverageReward
		if affinity > best {
			best = affinity
		}
	}
	return 0.1 * best
}

func softmaxInPlace(weights []float64, temperature float64) {
	if len(weights) == 0 {
		return
	}
	max := weights[0]
	for _, w := range weights {
		if w > max {
			max = w
		}
	}
	var sum float64
	exp := make([]float64, len(weights))
	for i, w := range weights {
		exp[i] = math.Exp((w - max) / temperature)
		sum += exp[i]
	}
	if sum == 0 {
		return
	}
	for i := range weights {
		weights[i] = exp[i] / sum
	}
}
