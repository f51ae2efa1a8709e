package aggregation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aadhaar-drishti/backend/internal/metrics"
	"github.com/aadhaar-drishti/backend/internal/storage"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
	"github.com/aadhaar-drishti/backend/pkg/logger"
)

type Engine struct {
	facts         storage.FactStore
	summaries     storage.SummaryStore
	workers       int
	biometricOnly bool
	now           func() time.Time
	afterRun      []func(ctx context.Context) error
}

type Option func(*Engine)

func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithBiometricOnly restricts a run to districts present in the biometric
// table. Districts that only have demographic or enrolment rows are then
// left without a summary.
func WithBiometricOnly(v bool) Option {
	return func(e *Engine) { e.biometricOnly = v }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAfterRun registers a hook called once a run has written its summaries.
// Hook errors are logged, not returned.
func WithAfterRun(fn func(ctx context.Context) error) Option {
	return func(e *Engine) { e.afterRun = append(e.afterRun, fn) }
}

type RunResult struct {
	Districts int               `json:"districts"`
	Processed int               `json:"processed"`
	Failed    []DistrictFailure `json:"failed,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

type DistrictFailure struct {
	State    string `json:"state"`
	District string `json:"district"`
	Error    string `json:"error"`
}

func (r *RunResult) Message() string {
	return fmt.Sprintf("Calculated metrics for %d districts", r.Processed)
}

func NewEngine(facts storage.FactStore, summaries storage.SummaryStore, opts ...Option) *Engine {
	e := &Engine{
		facts:     facts,
		summaries: summaries,
		workers:   4,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run rescans all fact tables and upserts one summary per district. A
// district that fails is logged and skipped; the run goes on.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()

	keys, err := e.districts(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info("Calculating district metrics",
		zap.Int("districts", len(keys)),
		zap.Bool("biometric_only", e.biometricOnly),
		zap.Int("workers", e.workers),
	)

	result := &RunResult{Districts: len(keys)}
	var (
		mu     sync.Mutex
		byRisk = make(map[models.RiskLevel]int)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, key := range keys {
		if gctx.Err() != nil {
			break
		}

		key := key
		g.Go(func() error {
			summary, err := e.recompute(gctx, key)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("Skipping district",
					zap.String("state", key.State),
					zap.String("district", key.District),
					zap.Error(err),
				)
				metrics.DistrictsProcessed.WithLabelValues("failed").Inc()
				result.Failed = append(result.Failed, DistrictFailure{
					State:    key.State,
					District: key.District,
					Error:    err.Error(),
				})
				return nil
			}

			metrics.DistrictsProcessed.WithLabelValues("ok").Inc()
			byRisk[summary.RiskLevel]++
			result.Processed++
			if result.Processed%100 == 0 {
				logger.Info("Aggregation progress",
					zap.Int("processed", result.Processed),
					zap.Int("total", len(keys)),
				)
			}
			return nil
		})
	}

	err = g.Wait()
	result.Duration = time.Since(start)
	metrics.AggregationDuration.Observe(result.Duration.Seconds())

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return result, fmt.Errorf("aggregation interrupted: %w", err)
	}

	for _, level := range []models.RiskLevel{models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical} {
		metrics.DistrictsByRisk.WithLabelValues(string(level)).Set(float64(byRisk[level]))
	}

	for _, hook := range e.afterRun {
		if err := hook(ctx); err != nil {
			logger.Warn("Post-aggregation hook failed", zap.Error(err))
		}
	}

	logger.Info("District metrics calculated",
		zap.Int("processed", result.Processed),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

func (e *Engine) districts(ctx context.Context) ([]models.DistrictKey, error) {
	kinds := models.AllKinds
	if e.biometricOnly {
		kinds = []models.ImportKind{models.KindBiometric}
	}

	seen := make(map[models.DistrictKey]struct{})
	var keys []models.DistrictKey
	for _, kind := range kinds {
		found, err := e.facts.Districts(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s districts: %w", kind, err)
		}
		for _, k := range found {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	return keys, nil
}

func (e *Engine) recompute(ctx context.Context, key models.DistrictKey) (*models.DistrictSummary, error) {
	bio, err := e.facts.Totals(ctx, models.KindBiometric, key)
	if err != nil {
		return nil, err
	}

	demo, err := e.facts.Totals(ctx, models.KindDemographic, key)
	if err != nil {
		return nil, err
	}

	enrol, err := e.facts.Totals(ctx, models.KindEnrolment, key)
	if err != nil {
		return nil, err
	}

	summary := Compute(bio, demo, enrol).Summary(key, e.now())
	if err := e.summaries.UpsertSummary(ctx, &summary); err != nil {
		return nil, err
	}

	return &summary, nil
}
