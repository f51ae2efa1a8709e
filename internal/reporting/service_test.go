package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aadhaar-drishti/backend/internal/storage/memory"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
)

func summary(state, name string, freshness, migration int, failure float64) models.DistrictSummary {
	risk := models.RiskCritical
	switch {
	case freshness >= 80:
		risk = models.RiskLow
	case freshness >= 60:
		risk = models.RiskMedium
	case freshness >= 40:
		risk = models.RiskHigh
	}
	return models.DistrictSummary{
		Name:                    name,
		State:                   state,
		FreshnessScore:          freshness,
		RecordsNeedingUpdatePct: 100 - freshness,
		AuthFailureRate:         failure,
		MigrationIndex:          migration,
		RiskLevel:               risk,
		LastUpdated:             time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func seeded(t *testing.T, list ...models.DistrictSummary) *memory.Store {
	t.Helper()
	store := memory.New()
	for i := range list {
		require.NoError(t, store.UpsertSummary(context.Background(), &list[i]))
	}
	return store
}

func TestStatsEmptyStore(t *testing.T) {
	stats, err := NewService(memory.New()).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Stats{}, stats)

	data, err := json.Marshal(stats)
	require.NoError(t, err)
	assert.JSONEq(t, `{"freshnessScore":0,"recordsNeedingUpdatePct":0,"highRiskDistricts":0,"avgFailureRate":0}`, string(data))
}

func TestStats(t *testing.T) {
	store := seeded(t,
		summary("Kerala", "Idukki", 90, 2, 3.33),
		summary("Kerala", "Wayanad", 45, 9, 6.67),
		summary("Bihar", "Gaya", 20, 4, 5.0),
	)

	stats, err := NewService(store).Stats(context.Background())
	require.NoError(t, err)

	// (90 + 45 + 20) / 3 = 51.67
	assert.Equal(t, 52, stats.FreshnessScore)
	// (10 + 55 + 80) / 3 = 48.33
	assert.Equal(t, 48.3, stats.RecordsNeedingUpdatePct)
	assert.Equal(t, 2, stats.HighRiskDistricts)
	assert.Equal(t, 5.0, stats.AvgFailureRate)
}

func TestDistrictsFilterAndOrder(t *testing.T) {
	store := seeded(t,
		summary("Kerala", "Idukki", 90, 2, 0),
		summary("Kerala", "Wayanad", 45, 9, 0),
		summary("Bihar", "Gaya", 20, 4, 0),
		summary("Bihar", "Patna", 50, 8, 0),
	)
	svc := NewService(store)
	ctx := context.Background()

	rows, err := svc.Districts(ctx, DistrictQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Gaya", "Wayanad", "Patna", "Idukki"}, names(rows))
	assert.NotEmpty(t, rows[0].ID)

	rows, err = svc.Districts(ctx, DistrictQuery{State: "Kerala"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Wayanad", "Idukki"}, names(rows))

	rows, err = svc.Districts(ctx, DistrictQuery{State: "Bihar", RiskLevel: models.RiskHigh})
	require.NoError(t, err)
	assert.Equal(t, []string{"Patna"}, names(rows))

	rows, err = svc.Districts(ctx, DistrictQuery{State: "Goa"})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestDistrictsCappedAt100(t *testing.T) {
	var list []models.DistrictSummary
	for i := 0; i < 120; i++ {
		list = append(list, summary("Uttar Pradesh", fmt.Sprintf("D%03d", i), i%100, 1, 0))
	}
	store := seeded(t, list...)

	rows, err := NewService(store).Districts(context.Background(), DistrictQuery{})
	require.NoError(t, err)
	assert.Len(t, rows, 100)
	for i := 1; i < len(rows); i++ {
		assert.LessOrEqual(t, rows[i-1].FreshnessScore, rows[i].FreshnessScore)
	}
}

func names(rows []DistrictRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

func TestUpdateGaps(t *testing.T) {
	store := seeded(t,
		summary("Maharashtra", "Pune", 70, 10, 0),  // urban, needs 30
		summary("Maharashtra", "Mumbai", 65, 8, 0), // urban, needs 35
		summary("Maharashtra", "Satara", 40, 7, 0), // rural, needs 60
		summary("Maharashtra", "Sangli", 50, 2, 0), // rural, needs 50
	)

	gaps, err := NewService(store).UpdateGaps(context.Background())
	require.NoError(t, err)

	// urban mean 32.5 -> 33, rural mean 55
	assert.Equal(t, []UpdateGap{
		{Type: "Address", UrbanGap: 19.8, RuralGap: 33},
		{Type: "Mobile", UrbanGap: 9.9, RuralGap: 27.5},
		{Type: "Biometric", UrbanGap: 26.4, RuralGap: 49.5},
	}, gaps)
}

func TestUpdateGapsEmpty(t *testing.T) {
	gaps, err := NewService(memory.New()).UpdateGaps(context.Background())
	require.NoError(t, err)
	require.Len(t, gaps, 3)
	for _, g := range gaps {
		assert.Zero(t, g.UrbanGap)
		assert.Zero(t, g.RuralGap)
	}
}

func TestMigrationImpact(t *testing.T) {
	var list []models.DistrictSummary
	for i := 0; i < 60; i++ {
		list = append(list, summary("Rajasthan", fmt.Sprintf("D%02d", i), 30, i%11, 0))
	}
	store := seeded(t, list...)

	points, err := NewService(store).MigrationImpact(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 50)
	assert.Equal(t, MigrationPoint{Name: "D00", State: "Rajasthan", MigrationIndex: 0, UpdateLag: 70, Risk: models.RiskCritical}, points[0])
}

func TestStates(t *testing.T) {
	svc := NewService(memory.New())
	states, err := svc.States(context.Background())
	require.NoError(t, err)
	assert.Len(t, states, 36)
	assert.Contains(t, states, "Ladakh")

	store := seeded(t,
		summary("Kerala", "Idukki", 90, 2, 0),
		summary("Bihar", "Gaya", 20, 4, 0),
		summary("Kerala", "Wayanad", 45, 9, 0),
	)
	states, err = NewService(store).States(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Bihar", "Kerala"}, states)
}

func TestRecommendationContext(t *testing.T) {
	store := seeded(t,
		summary("Kerala", "Idukki", 90, 2, 0),
		summary("Kerala", "Wayanad", 45, 9, 0),
		summary("Bihar", "Gaya", 20, 4, 0),
	)

	rc, err := NewService(store).RecommendationContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), rc.TotalDistricts)
	assert.Equal(t, 2, rc.HighRiskCount)
	assert.InDelta(t, 51.67, rc.AvgFreshnessScore, 0.01)
	assert.Equal(t, []RiskyDistrict{
		{Name: "Gaya", State: "Bihar", Score: 20},
		{Name: "Wayanad", State: "Kerala", Score: 45},
	}, rc.TopRiskyDistricts)

	empty, err := NewService(memory.New()).RecommendationContext(context.Background())
	require.NoError(t, err)
	assert.Zero(t, empty.AvgFreshnessScore)
	assert.Empty(t, empty.TopRiskyDistricts)
}

func TestDashboard(t *testing.T) {
	store := seeded(t,
		summary("Kerala", "Idukki", 90, 2, 0),
		summary("Bihar", "Gaya", 20, 4, 0),
	)

	ds, err := NewService(store).Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.TotalDistricts)
	assert.Equal(t, 1, ds.HighRiskCount)
	assert.Equal(t, 55.0, ds.AvgFreshnessScore)
	assert.Equal(t, 45.0, ds.RecordsNeedingUpdatePct)
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) GetReport(ctx context.Context, key string, report interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, report)
}

func (c *mapCache) SetReport(ctx context.Context, key string, report interface{}, ttl time.Duration) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	c.sets++
	return nil
}

func (c *mapCache) InvalidateReports(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	return nil
}

func TestCachedReports(t *testing.T) {
	ctx := context.Background()
	store := seeded(t, summary("Kerala", "Idukki", 90, 2, 0))
	cache := newMapCache()
	svc := NewService(store, WithCache(cache, time.Minute))

	first, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 90, first.FreshnessScore)

	// A new summary is invisible until the cache is invalidated.
	extra := summary("Bihar", "Gaya", 20, 4, 0)
	require.NoError(t, store.UpsertSummary(ctx, &extra))

	again, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, cache.sets)

	require.NoError(t, svc.Invalidate(ctx))

	fresh, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 55, fresh.FreshnessScore)

	kerala, err := svc.Districts(ctx, DistrictQuery{State: "Kerala"})
	require.NoError(t, err)
	bihar, err := svc.Districts(ctx, DistrictQuery{State: "Bihar"})
	require.NoError(t, err)
	assert.Equal(t, "Idukki", kerala[0].Name)
	assert.Equal(t, "Gaya", bihar[0].Name)
}

func TestInvalidateWithoutCache(t *testing.T) {
	assert.NoError(t, NewService(memory.New()).Invalidate(context.Background()))
}
