// Package metrics rolls parsing attempts up into per-owner daily statistics.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/Veraticus/statement-flow/internal/model"
)

// Store is the persistence the aggregator reads and writes.
type Store interface {
	ListAttemptsForDay(ctx context.Context, ownerID string, day time.Time) ([]model.ParsingAttempt, error)
	ListActiveOwners(ctx context.Context, day time.Time) ([]string, error)
	CountPatternsCreated(ctx context.Context, ownerID string, day time.Time) (int, error)
	CountLearningEntries(ctx context.Context, ownerID string, day time.Time) (int, error)
	UpsertMetrics(ctx context.Context, metrics *model.ParsingMetrics) error
}

type key struct {
	day   time.Time
	owner string
}

// Aggregator recomputes daily rollups. Aggregation is idempotent: it always
// rebuilds the (owner, day) row from the attempt history.
type Aggregator struct {
	store   Store
	logger  *slog.Logger
	pending map[key]struct{}
	wake    chan struct{}
	mu      sync.Mutex
}

// NewAggregator creates an aggregator.
func NewAggregator(store Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:   store,
		logger:  common.LoggerOrDefault(logger),
		pending: make(map[key]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Aggregate rebuilds and stores the rollup for one owner and day.
func (a *Aggregator) Aggregate(ctx context.Context, ownerID string, day time.Time) (*model.ParsingMetrics, error) {
	day = model.DayStart(day)

	attempts, err := a.store.ListAttemptsForDay(ctx, ownerID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}
	patterns, err := a.store.CountPatternsCreated(ctx, ownerID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to count patterns: %w", err)
	}
	entries, err := a.store.CountLearningEntries(ctx, ownerID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to count learning entries: %w", err)
	}

	m := Rollup(ownerID, day, attempts)
	m.PatternsLearned = patterns
	m.DatasetEntries = entries

	if err := a.store.UpsertMetrics(ctx, &m); err != nil {
		return nil, fmt.Errorf("failed to store metrics: %w", err)
	}
	a.logger.Debug("Aggregated metrics",
		"owner_id", ownerID,
		"day", day.Format(time.DateOnly),
		"attempts", m.TotalAttempts,
		"successes", m.TotalSuccesses)
	return &m, nil
}

// AggregateDay rebuilds the rollup of every owner active on day.
func (a *Aggregator) AggregateDay(ctx context.Context, day time.Time) (int, error) {
	owners, err := a.store.ListActiveOwners(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("failed to list active owners: %w", err)
	}

	done := 0
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := a.Aggregate(ctx, owner, day); err != nil {
			return done, fmt.Errorf("owner %s: %w", owner, err)
		}
		done++
	}
	return done, nil
}

// Rollup computes statistics over finalized attempts. Attempts still in
// progress are ignored.
func Rollup(ownerID string, day time.Time, attempts []model.ParsingAttempt) model.ParsingMetrics {
	m := model.ParsingMetrics{
		OwnerID: ownerID,
		Day:     model.DayStart(day),
		Methods: make(map[model.Method]model.MethodStats),
	}

	var confidence, duration float64
	for _, at := range attempts {
		if !at.Status.IsFinal() {
			continue
		}
		stats := m.Methods[at.Method]
		stats.Attempts++
		m.TotalAttempts++
		if at.Succeeded() {
			stats.Successes++
			m.TotalSuccesses++
		}
		m.Methods[at.Method] = stats
		confidence += at.Confidence
		duration += float64(at.DurationMS)
	}

	if m.TotalAttempts > 0 {
		m.AverageConfidence = confidence / float64(m.TotalAttempts)
		m.AverageDurationMS = duration / float64(m.TotalAttempts)
	}
	return m
}

// Notify queues a re-aggregation. It never blocks; repeated notifications
// for the same owner and day coalesce.
func (a *Aggregator) Notify(ownerID string, day time.Time) {
	if ownerID == "" {
		return
	}
	a.mu.Lock()
	a.pending[key{owner: ownerID, day: model.DayStart(day)}] = struct{}{}
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Start processes notifications until ctx is cancelled, then drains what
// is still queued.
func (a *Aggregator) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.Flush(context.WithoutCancel(ctx))
			return
		case <-a.wake:
			a.Flush(ctx)
		}
	}
}

// Flush aggregates every queued (owner, day) synchronously.
func (a *Aggregator) Flush(ctx context.Context) {
	a.mu.Lock()
	keys := make([]key, 0, len(a.pending))
	for k := range a.pending {
		keys = append(keys, k)
	}
	a.pending = make(map[key]struct{})
	a.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].day.Equal(keys[j].day) {
			return keys[i].day.Before(keys[j].day)
		}
		return keys[i].owner < keys[j].owner
	})

	for _, k := range keys {
		if _, err := a.Aggregate(ctx, k.owner, k.day); err != nil {
			a.logger.Warn("Failed to aggregate metrics",
				"owner_id", k.owner,
				"day", k.day.Format(time.DateOnly),
				"error", err)
		}
	}
}

// Pending reports how many aggregations are queued.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
