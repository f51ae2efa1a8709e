package reporting

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/metrics"
	"github.com/aadhaar-drishti/backend/internal/storage"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
	"github.com/aadhaar-drishti/backend/pkg/logger"
	"github.com/aadhaar-drishti/backend/pkg/utils"
)

const (
	districtListLimit  = 100
	migrationListLimit = 50
	riskyContextLimit  = 10

	// Districts above this migration index count as urban.
	urbanMigrationIndex = 7
)

// Cache is a read-through store for computed reports.
type Cache interface {
	GetReport(ctx context.Context, key string, report interface{}) (bool, error)
	SetReport(ctx context.Context, key string, report interface{}, ttl time.Duration) error
	InvalidateReports(ctx context.Context) error
}

type Service struct {
	store    storage.SummaryStore
	cache    Cache
	cacheTTL time.Duration
}

type Option func(*Service)

func WithCache(cache Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

func NewService(store storage.SummaryStore, opts ...Option) *Service {
	s := &Service{store: store, cacheTTL: 5 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate drops every cached report. It is a no-op without a cache.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateReports(ctx)
}

func cached[T any](ctx context.Context, s *Service, report string, params []string, compute func() (T, error)) (T, error) {
	if s.cache == nil {
		return compute()
	}

	key := utils.CacheKey(report, params...)

	var out T
	hit, err := s.cache.GetReport(ctx, key, &out)
	if err != nil {
		logger.Warn("Report cache read failed", zap.String("report", report), zap.Error(err))
	}
	if hit {
		metrics.CacheHits.WithLabelValues(report).Inc()
		return out, nil
	}
	metrics.CacheMisses.WithLabelValues(report).Inc()

	out, err = compute()
	if err != nil {
		return out, err
	}

	if err := s.cache.SetReport(ctx, key, out, s.cacheTTL); err != nil {
		logger.Warn("Report cache write failed", zap.String("report", report), zap.Error(err))
	}
	return out, nil
}

func (s *Service) all(ctx context.Context) ([]models.DistrictSummary, error) {
	list, err := s.store.ListSummaries(ctx, models.SummaryFilter{Sort: models.SortByName})
	if err != nil {
		return nil, fmt.Errorf("failed to list districts: %w", err)
	}
	return list, nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return cached(ctx, s, "stats", nil, func() (*Stats, error) {
		list, err := s.all(ctx)
		if err != nil {
			return nil, err
		}

		stats := &Stats{}
		if len(list) == 0 {
			return stats, nil
		}

		var freshness, needing int64
		failure := decimal.Zero
		for _, d := range list {
			freshness += int64(d.FreshnessScore)
			needing += int64(d.RecordsNeedingUpdatePct)
			failure = failure.Add(decimal.NewFromFloat(d.AuthFailureRate))
			if d.RiskLevel.IsHighRisk() {
				stats.HighRiskDistricts++
			}
		}

		n := decimal.NewFromInt(int64(len(list)))
		stats.FreshnessScore = int(math.Round(float64(freshness) / float64(len(list))))
		stats.RecordsNeedingUpdatePct, _ = decimal.NewFromInt(needing).Div(n).Round(1).Float64()
		stats.AvgFailureRate, _ = failure.Div(n).Round(1).Float64()

		return stats, nil
	})
}

// Districts lists up to 100 districts, least fresh first.
func (s *Service) Districts(ctx context.Context, q DistrictQuery) ([]DistrictRow, error) {
	params := []string{q.State, string(q.RiskLevel)}
	return cached(ctx, s, "districts", params, func() ([]DistrictRow, error) {
		list, err := s.store.ListSummaries(ctx, models.SummaryFilter{
			State:     q.State,
			RiskLevel: q.RiskLevel,
			Sort:      models.SortByFreshnessAsc,
			Limit:     districtListLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list districts: %w", err)
		}

		rows := make([]DistrictRow, 0, len(list))
		for _, d := range list {
			rows = append(rows, DistrictRow{
				ID:                      d.ID,
				Name:                    d.Name,
				State:                   d.State,
				FreshnessScore:          d.FreshnessScore,
				RecordsNeedingUpdatePct: d.RecordsNeedingUpdatePct,
				AuthFailureRate:         d.AuthFailureRate,
				MigrationIndex:          d.MigrationIndex,
				RiskLevel:               d.RiskLevel,
				LastUpdated:             d.LastUpdated,
			})
		}
		return rows, nil
	})
}

var gapWeights = []struct {
	kind         string
	urban, rural float64
}{
	{"Address", 0.6, 0.6},
	{"Mobile", 0.3, 0.5},
	{"Biometric", 0.8, 0.9},
}

// UpdateGaps splits districts into urban and rural by migration index and
// weights each partition's mean update need per update type.
func (s *Service) UpdateGaps(ctx context.Context) ([]UpdateGap, error) {
	return cached(ctx, s, "update-gaps", nil, func() ([]UpdateGap, error) {
		list, err := s.all(ctx)
		if err != nil {
			return nil, err
		}

		var urban, rural []models.DistrictSummary
		for _, d := range list {
			if d.MigrationIndex > urbanMigrationIndex {
				urban = append(urban, d)
			} else {
				rural = append(rural, d)
			}
		}

		urbanGap := meanNeedingUpdate(urban)
		ruralGap := meanNeedingUpdate(rural)

		gaps := make([]UpdateGap, 0, len(gapWeights))
		for _, w := range gapWeights {
			gaps = append(gaps, UpdateGap{
				Type:     w.kind,
				UrbanGap: weighted(urbanGap, w.urban),
				RuralGap: weighted(ruralGap, w.rural),
			})
		}
		return gaps, nil
	})
}

func meanNeedingUpdate(list []models.DistrictSummary) int64 {
	if len(list) == 0 {
		return 0
	}
	var total int64
	for _, d := range list {
		total += int64(d.RecordsNeedingUpdatePct)
	}
	return int64(math.Round(float64(total) / float64(len(list))))
}

func weighted(gap int64, weight float64) float64 {
	v, _ := decimal.NewFromInt(gap).Mul(decimal.NewFromFloat(weight)).Round(1).Float64()
	return v
}

func (s *Service) MigrationImpact(ctx context.Context) ([]MigrationPoint, error) {
	return cached(ctx, s, "migration-impact", nil, func() ([]MigrationPoint, error) {
		list, err := s.store.ListSummaries(ctx, models.SummaryFilter{
			Sort:  models.SortByName,
			Limit: migrationListLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list districts: %w", err)
		}

		points := make([]MigrationPoint, 0, len(list))
		for _, d := range list {
			points = append(points, MigrationPoint{
				Name:           d.Name,
				State:          d.State,
				MigrationIndex: d.MigrationIndex,
				UpdateLag:      100 - d.FreshnessScore,
				Risk:           d.RiskLevel,
			})
		}
		return points, nil
	})
}

// States returns the sorted distinct states, or IndianStates when the store
// holds no summaries.
func (s *Service) States(ctx context.Context) ([]string, error) {
	return cached(ctx, s, "states", nil, func() ([]string, error) {
		states, err := s.store.DistinctStates(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list states: %w", err)
		}
		if len(states) == 0 {
			out := make([]string, len(IndianStates))
			copy(out, IndianStates)
			return out, nil
		}
		return states, nil
	})
}

func (s *Service) RecommendationContext(ctx context.Context) (*RecommendationContext, error) {
	total, err := s.store.CountSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count districts: %w", err)
	}

	worst, err := s.store.ListSummaries(ctx, models.SummaryFilter{
		Sort:  models.SortByFreshnessAsc,
		Limit: riskyContextLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list districts: %w", err)
	}

	rc := &RecommendationContext{TotalDistricts: total, TopRiskyDistricts: []RiskyDistrict{}}
	var freshness int64
	for _, d := range worst {
		freshness += int64(d.FreshnessScore)
		if d.RiskLevel.IsHighRisk() {
			rc.HighRiskCount++
			rc.TopRiskyDistricts = append(rc.TopRiskyDistricts, RiskyDistrict{
				Name:  d.Name,
				State: d.State,
				Score: d.FreshnessScore,
			})
		}
	}
	if len(worst) > 0 {
		rc.AvgFreshnessScore = float64(freshness) / float64(len(worst))
	}

	return rc, nil
}

func (s *Service) Dashboard(ctx context.Context) (*DashboardStats, error) {
	list, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	ds := &DashboardStats{TotalDistricts: len(list)}
	if len(list) == 0 {
		return ds, nil
	}

	var freshness, needing int64
	for _, d := range list {
		freshness += int64(d.FreshnessScore)
		needing += int64(d.RecordsNeedingUpdatePct)
		if d.RiskLevel.IsHighRisk() {
			ds.HighRiskCount++
		}
	}
	ds.AvgFreshnessScore = float64(freshness) / float64(len(list))
	ds.RecordsNeedingUpdatePct = float64(needing) / float64(len(list))

	return ds, nil
}
