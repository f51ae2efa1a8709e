package reporting

import (
	"time"

	"github.com/aadhaar-drishti/backend/internal/storage/models"
)

type Stats struct {
	FreshnessScore          int     `json:"freshnessScore"`
	RecordsNeedingUpdatePct float64 `json:"recordsNeedingUpdatePct"`
	HighRiskDistricts       int     `json:"highRiskDistricts"`
	AvgFailureRate          float64 `json:"avgFailureRate"`
}

type DistrictQuery struct {
	State     string
	RiskLevel models.RiskLevel
}

type DistrictRow struct {
	ID                      string           `json:"id"`
	Name                    string           `json:"name"`
	State                   string           `json:"state"`
	FreshnessScore          int              `json:"freshnessScore"`
	RecordsNeedingUpdatePct int              `json:"recordsNeedingUpdatePct"`
	AuthFailureRate         float64          `json:"authFailureRate"`
	MigrationIndex          int              `json:"migrationIndex"`
	RiskLevel               models.RiskLevel `json:"riskLevel"`
	LastUpdated             time.Time        `json:"lastUpdated"`
}

type UpdateGap struct {
	Type     string  `json:"type"`
	UrbanGap float64 `json:"urbanGap"`
	RuralGap float64 `json:"ruralGap"`
}

type MigrationPoint struct {
	Name           string           `json:"name"`
	State          string           `json:"state"`
	MigrationIndex int              `json:"migrationIndex"`
	UpdateLag      int              `json:"updateLag"`
	Risk           models.RiskLevel `json:"risk"`
}

type RiskyDistrict struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Score int    `json:"score"`
}

// RecommendationContext summarises the ten least fresh districts for the
// recommendation prompt.
type RecommendationContext struct {
	TotalDistricts    int64           `json:"totalDistricts"`
	HighRiskCount     int             `json:"highRiskCount"`
	AvgFreshnessScore float64         `json:"avgFreshnessScore"`
	TopRiskyDistricts []RiskyDistrict `json:"topRiskyDistricts"`
}

type DashboardStats struct {
	TotalDistricts          int     `json:"totalDistricts"`
	HighRiskCount           int     `json:"highRiskCount"`
	AvgFreshnessScore       float64 `json:"avgFreshnessScore"`
	RecordsNeedingUpdatePct float64 `json:"recordsNeedingUpdatePct"`
}

// IndianStates is returned by States while no summaries exist.
var IndianStates = []string{
	"Andhra Pradesh", "Arunachal Pradesh", "Assam", "Bihar", "Chhattisgarh",
	"Goa", "Gujarat", "Haryana", "Himachal Pradesh", "Jharkhand",
	"Karnataka", "Kerala", "Madhya Pradesh", "Maharashtra", "Manipur",
	"Meghalaya", "Mizoram", "Nagaland", "Odisha", "Punjab",
	"Rajasthan", "Sikkim", "Tamil Nadu", "Telangana", "Tripura",
	"Uttar Pradesh", "Uttarakhand", "West Bengal", "Andaman and Nicobar Islands",
	"Chandigarh", "Dadra and Nagar Haveli and Daman and Diu", "Delhi",
	"Jammu and Kashmir", "Ladakh", "Lakshadweep", "Puducherry",
}
