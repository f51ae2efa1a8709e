package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aadhaar-drishti/backend/internal/storage/models"
)

func TestClassifyRiskBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  models.RiskLevel
	}{
		{100, models.RiskLow},
		{80, models.RiskLow},
		{79, models.RiskMedium},
		{60, models.RiskMedium},
		{59, models.RiskHigh},
		{40, models.RiskHigh},
		{39, models.RiskCritical},
		{0, models.RiskCritical},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyRisk(tc.score), "score %d", tc.score)
	}
}

func TestComputeFreshDistrict(t *testing.T) {
	bio := models.AgeTotals{Age5To17: 150, Age17Plus: 300}
	demo := models.AgeTotals{Age5To17: 40, Age17Plus: 60}
	enrol := models.AgeTotals{Age0To5: 20, Age5To17: 30, Age18Plus: 50}

	s := Compute(bio, demo, enrol)

	assert.Equal(t, int64(450), s.Biometric.TotalUpdates)
	assert.Equal(t, int64(100), s.Demographic.TotalUpdates)
	assert.Equal(t, int64(100), s.Enrolment.TotalEnrolments)
	assert.InDelta(t, 2.75, s.UpdateRatio, 1e-9)
	assert.Equal(t, 100, s.FreshnessScore)
	assert.Equal(t, 0, s.RecordsNeedingUpdatePct)
	assert.Equal(t, 6.67, s.AuthFailureRate)
	assert.Equal(t, 10, s.MigrationIndex)
	assert.Equal(t, models.RiskLow, s.RiskLevel)
}

func TestComputeStaleDistrict(t *testing.T) {
	bio := models.AgeTotals{Age5To17: 10, Age17Plus: 10}
	demo := models.AgeTotals{Age5To17: 10, Age17Plus: 10}
	enrol := models.AgeTotals{Age0To5: 100, Age5To17: 100, Age18Plus: 100}

	s := Compute(bio, demo, enrol)

	// (20 + 20) / 600 rounds to 7
	assert.Equal(t, 7, s.FreshnessScore)
	assert.Equal(t, 93, s.RecordsNeedingUpdatePct)
	assert.Equal(t, 5.0, s.AuthFailureRate)
	assert.Equal(t, 1, s.MigrationIndex)
	assert.Equal(t, models.RiskCritical, s.RiskLevel)
}

func TestComputeNoEnrolments(t *testing.T) {
	s := Compute(models.AgeTotals{Age5To17: 5}, models.AgeTotals{Age17Plus: 2}, models.AgeTotals{})

	assert.Equal(t, 0.0, s.UpdateRatio)
	assert.Equal(t, 0, s.FreshnessScore)
	assert.Equal(t, 100, s.RecordsNeedingUpdatePct)
	assert.Equal(t, 0.0, s.AuthFailureRate)
	// 2 / max(0, 1) * 15 = 30, clamped.
	assert.Equal(t, 10, s.MigrationIndex)
	assert.Equal(t, models.RiskCritical, s.RiskLevel)
}

func TestComputeNoBiometricUpdates(t *testing.T) {
	s := Compute(models.AgeTotals{}, models.AgeTotals{}, models.AgeTotals{Age18Plus: 10})

	assert.Equal(t, 0.0, s.AuthFailureRate)
	assert.Equal(t, 0, s.MigrationIndex)
	assert.Equal(t, 0, s.FreshnessScore)
}

func TestComputeRoundsHalfAwayFromZero(t *testing.T) {
	// (1 + 0) / (2 * 200) = 0.0025 -> 0.25 -> 0
	s := Compute(models.AgeTotals{Age17Plus: 1}, models.AgeTotals{}, models.AgeTotals{Age18Plus: 200})
	assert.Equal(t, 0, s.FreshnessScore)

	// 3 / (2 * 4) = 0.375 -> 37.5 -> 38
	s = Compute(models.AgeTotals{Age17Plus: 3}, models.AgeTotals{}, models.AgeTotals{Age18Plus: 4})
	assert.Equal(t, 38, s.FreshnessScore)
	assert.Equal(t, 62, s.RecordsNeedingUpdatePct)
	assert.Equal(t, 10.0, s.AuthFailureRate)
	assert.Equal(t, models.RiskCritical, s.RiskLevel)

	// 5 / (2 * 4) = 0.625 -> 62.5 -> 63
	s = Compute(models.AgeTotals{Age17Plus: 5}, models.AgeTotals{}, models.AgeTotals{Age18Plus: 4})
	assert.Equal(t, 63, s.FreshnessScore)
	assert.Equal(t, models.RiskMedium, s.RiskLevel)

	// 9 / (2 * 10) = 0.45 -> 45
	s = Compute(models.AgeTotals{Age5To17: 4, Age17Plus: 5}, models.AgeTotals{}, models.AgeTotals{Age18Plus: 10})
	assert.Equal(t, 45, s.FreshnessScore)
	assert.Equal(t, models.RiskHigh, s.RiskLevel)
}

func TestScoresSummary(t *testing.T) {
	s := Compute(models.AgeTotals{Age5To17: 1, Age17Plus: 2}, models.AgeTotals{}, models.AgeTotals{Age18Plus: 3})
	d := s.Summary(models.DistrictKey{State: "Kerala", District: "Idukki"}, fixedNow())

	assert.Equal(t, "Idukki", d.Name)
	assert.Equal(t, "Kerala", d.State)
	assert.Equal(t, fixedNow(), d.LastUpdated)
	assert.Equal(t, s.FreshnessScore, d.FreshnessScore)
	assert.Equal(t, int64(3), d.BiometricStats.TotalUpdates)
	assert.Equal(t, int64(3), d.EnrolmentStats.TotalEnrolments)
}
