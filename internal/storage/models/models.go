package models

import (
	"fmt"
	"time"
)

type ImportKind string

const (
	KindBiometric   ImportKind = "biometric"
	KindDemographic ImportKind = "demographic"
	KindEnrolment   ImportKind = "enrolment"
)

var AllKinds = []ImportKind{KindBiometric, KindDemographic, KindEnrolment}

func ParseImportKind(s string) (ImportKind, error) {
	switch ImportKind(s) {
	case KindBiometric, KindDemographic, KindEnrolment:
		return ImportKind(s), nil
	}
	return "", fmt.Errorf("invalid import kind %q", s)
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

func (r RiskLevel) IsHighRisk() bool {
	return r == RiskHigh || r == RiskCritical
}

// FactRecord is one imported row. Biometric and demographic rows fill
// Age5To17/Age17Plus; enrolment rows fill Age0To5/Age5To17/Age18Plus.
type FactRecord struct {
	Kind      ImportKind `json:"-" bson:"-"`
	Date      time.Time  `json:"date" bson:"date"`
	State     string     `json:"state" bson:"state"`
	District  string     `json:"district" bson:"district"`
	Pincode   int        `json:"pincode" bson:"pincode"`
	Age0To5   int64      `json:"age_0_5,omitempty" bson:"age_0_5,omitempty"`
	Age5To17  int64      `json:"age_5_17" bson:"age_5_17"`
	Age17Plus int64      `json:"age_17_plus,omitempty" bson:"age_17_plus,omitempty"`
	Age18Plus int64      `json:"age_18_plus,omitempty" bson:"age_18_plus,omitempty"`
}

func (r FactRecord) Key() DistrictKey {
	return DistrictKey{State: r.State, District: r.District}
}

type DistrictKey struct {
	State    string `bson:"state"`
	District string `bson:"district"`
}

func (k DistrictKey) String() string {
	return k.State + "/" + k.District
}

// AgeTotals is the sum of every counter for one district in one fact table.
type AgeTotals struct {
	Age0To5   int64 `bson:"age_0_5"`
	Age5To17  int64 `bson:"age_5_17"`
	Age17Plus int64 `bson:"age_17_plus"`
	Age18Plus int64 `bson:"age_18_plus"`
}

type UpdateStats struct {
	Age5To17     int64 `json:"age_5_17" bson:"age_5_17"`
	Age17Plus    int64 `json:"age_17_plus" bson:"age_17_plus"`
	TotalUpdates int64 `json:"totalUpdates" bson:"totalUpdates"`
}

type EnrolmentStats struct {
	Age0To5         int64 `json:"age_0_5" bson:"age_0_5"`
	Age5To17        int64 `json:"age_5_17" bson:"age_5_17"`
	Age18Plus       int64 `json:"age_18_plus" bson:"age_18_plus"`
	TotalEnrolments int64 `json:"totalEnrolments" bson:"totalEnrolments"`
}

// DistrictSummary is keyed by (State, Name); the store never holds two rows
// for the same pair.
type DistrictSummary struct {
	ID                      string         `json:"id" bson:"_id,omitempty"`
	Name                    string         `json:"name" bson:"name"`
	State                   string         `json:"state" bson:"state"`
	FreshnessScore          int            `json:"freshnessScore" bson:"freshnessScore"`
	RecordsNeedingUpdatePct int            `json:"recordsNeedingUpdatePct" bson:"recordsNeedingUpdatePct"`
	AuthFailureRate         float64        `json:"authFailureRate" bson:"authFailureRate"`
	MigrationIndex          int            `json:"migrationIndex" bson:"migrationIndex"`
	RiskLevel               RiskLevel      `json:"riskLevel" bson:"riskLevel"`
	LastUpdated             time.Time      `json:"lastUpdated" bson:"lastUpdated"`
	BiometricStats          UpdateStats    `json:"biometricStats" bson:"biometricStats"`
	DemographicStats        UpdateStats    `json:"demographicStats" bson:"demographicStats"`
	EnrolmentStats          EnrolmentStats `json:"enrolmentStats" bson:"enrolmentStats"`
}

func (d DistrictSummary) Key() DistrictKey {
	return DistrictKey{State: d.State, District: d.Name}
}

type SortOrder int

const (
	SortByName SortOrder = iota
	SortByFreshnessAsc
)

type SummaryFilter struct {
	State     string
	RiskLevel RiskLevel
	Sort      SortOrder
	Limit     int
}

type OTPCredential struct {
	ID           string    `json:"id" bson:"_id"`
	Mobile       string    `json:"mobile" bson:"mobile"`
	OTP          string    `json:"otp" bson:"otp"`
	Last4Aadhaar string    `json:"last4Aadhaar" bson:"last4Aadhaar"`
	Verified     bool      `json:"verified" bson:"verified"`
	ExpiresAt    time.Time `json:"expiresAt" bson:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

func (o *OTPCredential) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

const (
	AddressFresh   = "Fresh"
	AddressStale   = "Stale"
	MobileLinked   = "Linked"
	MobileUnlinked = "Unlinked"
	BiometricGood  = "Good"
	BiometricAging = "Aging"
)

// DemoStatus is the heuristic state of a citizen's address, mobile link and
// biometrics.
type DemoStatus struct {
	Address   string `json:"address"`
	Mobile    string `json:"mobile"`
	Biometric string `json:"biometric"`
}

// CitizenProfile ties a citizen to the district they were resolved to.
type CitizenProfile struct {
	District          string     `json:"district"`
	State             string     `json:"state"`
	DistrictRisk      RiskLevel  `json:"districtRisk"`
	DistrictFreshness int        `json:"districtFreshness"`
	DemoStatus        DemoStatus `json:"demoStatus"`
}
