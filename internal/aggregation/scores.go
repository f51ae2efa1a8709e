package aggregation

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aadhaar-drishti/backend/internal/storage/models"
)

// Scores holds every value derived for one district from its three fact
// totals.
type Scores struct {
	Biometric   models.UpdateStats
	Demographic models.UpdateStats
	Enrolment   models.EnrolmentStats

	UpdateRatio             float64
	FreshnessScore          int
	RecordsNeedingUpdatePct int
	AuthFailureRate         float64
	MigrationIndex          int
	RiskLevel               models.RiskLevel
}

// Compute derives the district scores. Biometric and demographic totals use
// Age5To17 and Age17Plus; enrolment totals use Age0To5, Age5To17 and
// Age18Plus.
func Compute(bio, demo, enrol models.AgeTotals) Scores {
	s := Scores{
		Biometric: models.UpdateStats{
			Age5To17:     bio.Age5To17,
			Age17Plus:    bio.Age17Plus,
			TotalUpdates: bio.Age5To17 + bio.Age17Plus,
		},
		Demographic: models.UpdateStats{
			Age5To17:     demo.Age5To17,
			Age17Plus:    demo.Age17Plus,
			TotalUpdates: demo.Age5To17 + demo.Age17Plus,
		},
		Enrolment: models.EnrolmentStats{
			Age0To5:         enrol.Age0To5,
			Age5To17:        enrol.Age5To17,
			Age18Plus:       enrol.Age18Plus,
			TotalEnrolments: enrol.Age0To5 + enrol.Age5To17 + enrol.Age18Plus,
		},
	}

	totalBio := s.Biometric.TotalUpdates
	totalDemo := s.Demographic.TotalUpdates
	totalEnrol := s.Enrolment.TotalEnrolments

	if totalEnrol > 0 {
		s.UpdateRatio = float64(totalBio+totalDemo) / float64(totalEnrol*2)
	}

	s.FreshnessScore = int(math.Min(math.Round(s.UpdateRatio*100), 100))
	s.RecordsNeedingUpdatePct = max(0, 100-s.FreshnessScore)

	if totalBio > 0 {
		rate := decimal.NewFromInt(bio.Age17Plus).
			Div(decimal.NewFromInt(totalBio)).
			Mul(decimal.NewFromInt(10)).
			Round(2)
		s.AuthFailureRate, _ = rate.Float64()
	}

	migration := math.Round(float64(totalDemo) / float64(max(totalEnrol, 1)) * 15)
	s.MigrationIndex = int(math.Min(10, migration))

	s.RiskLevel = ClassifyRisk(s.FreshnessScore)

	return s
}

// ClassifyRisk maps a freshness score onto a risk level. Lower bounds are
// inclusive: 80 Low, 60 Medium, 40 High, below that Critical.
func ClassifyRisk(freshnessScore int) models.RiskLevel {
	switch {
	case freshnessScore >= 80:
		return models.RiskLow
	case freshnessScore >= 60:
		return models.RiskMedium
	case freshnessScore >= 40:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}

func (s Scores) Summary(key models.DistrictKey, at time.Time) models.DistrictSummary {
	return models.DistrictSummary{
		Name:                    key.District,
		State:                   key.State,
		FreshnessScore:          s.FreshnessScore,
		RecordsNeedingUpdatePct: s.RecordsNeedingUpdatePct,
		AuthFailureRate:         s.AuthFailureRate,
		MigrationIndex:          s.MigrationIndex,
		RiskLevel:               s.RiskLevel,
		LastUpdated:             at,
		BiometricStats:          s.Biometric,
		DemographicStats:        s.Demographic,
		EnrolmentStats:          s.Enrolment,
	}
}
