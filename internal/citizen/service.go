// Package citizen resolves a verified citizen to district-level advice.
//
// Real citizen records are not available, so the district is picked from the
// stored summaries and the status is flagged as simulated.
package citizen

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/auth"
	"github.com/aadhaar-drishti/backend/internal/llm"
	"github.com/aadhaar-drishti/backend/internal/reporting"
	"github.com/aadhaar-drishti/backend/internal/storage"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
	"github.com/aadhaar-drishti/backend/pkg/logger"
)

var ErrNoDistrictData = errors.New("no district data available")

const candidateDistricts = 10

type Recommendation struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Priority      string `json:"priority"`
	EstimatedTime string `json:"estimatedTime"`
	Action        string `json:"action"`
}

type Status struct {
	Mobile            string            `json:"mobile"`
	Last4Aadhaar      string            `json:"last4Aadhaar"`
	District          string            `json:"district"`
	State             string            `json:"state"`
	DemoStatus        models.DemoStatus `json:"demoStatus"`
	Recommendations   []Recommendation  `json:"recommendations"`
	DistrictRisk      models.RiskLevel  `json:"districtRisk"`
	DistrictFreshness int               `json:"districtFreshness"`
	Simulated         bool              `json:"simulated"`
}

type ChatReply struct {
	Response    string                `json:"response"`
	CitizenData models.CitizenProfile `json:"citizenData"`
}

// StatusLookup decides which district a citizen belongs to and how their
// record looks.
type StatusLookup interface {
	Lookup(ctx context.Context, id auth.Identity) (*models.CitizenProfile, error)
}

// RandomDistrictLookup assigns a random district among the first ten
// summaries. Address and biometric flags follow the district's numbers; the
// mobile link is linked four times out of five.
type RandomDistrictLookup struct {
	store storage.SummaryStore

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomDistrictLookup(store storage.SummaryStore, seed int64) *RandomDistrictLookup {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomDistrictLookup{store: store, rng: rand.New(rand.NewSource(seed))}
}

func (l *RandomDistrictLookup) Lookup(ctx context.Context, id auth.Identity) (*models.CitizenProfile, error) {
	list, err := l.store.ListSummaries(ctx, models.SummaryFilter{Limit: candidateDistricts})
	if err != nil {
		return nil, fmt.Errorf("failed to list districts: %w", err)
	}
	if len(list) == 0 {
		return nil, ErrNoDistrictData
	}

	l.mu.Lock()
	d := list[l.rng.Intn(len(list))]
	linked := l.rng.Float64() > 0.2
	l.mu.Unlock()

	return ProfileFor(d, linked), nil
}

// ProfileFor derives the demo status of a citizen living in d.
func ProfileFor(d models.DistrictSummary, mobileLinked bool) *models.CitizenProfile {
	status := models.DemoStatus{
		Address:   models.AddressFresh,
		Mobile:    models.MobileUnlinked,
		Biometric: models.BiometricGood,
	}
	if d.RecordsNeedingUpdatePct > 25 {
		status.Address = models.AddressStale
	}
	if mobileLinked {
		status.Mobile = models.MobileLinked
	}
	if d.AuthFailureRate > 5 {
		status.Biometric = models.BiometricAging
	}

	return &models.CitizenProfile{
		District:          d.Name,
		State:             d.State,
		DistrictRisk:      d.RiskLevel,
		DistrictFreshness: d.FreshnessScore,
		DemoStatus:        status,
	}
}

// Recommendations lists the actions that follow from a demo status.
func Recommendations(s models.DemoStatus) []Recommendation {
	recs := []Recommendation{}
	if s.Address == models.AddressStale {
		recs = append(recs, Recommendation{
			ID:            "rec1",
			Title:         "Update Address Online",
			Description:   "Your address might be outdated based on migration patterns in your area.",
			Priority:      "High",
			EstimatedTime: "5 minutes",
			Action:        "update_address",
		})
	}
	if s.Biometric == models.BiometricAging {
		recs = append(recs, Recommendation{
			ID:            "rec2",
			Title:         "Book Biometric Update",
			Description:   "Biometric authentication may fail. Update recommended for seamless services.",
			Priority:      "Medium",
			EstimatedTime: "30 minutes",
			Action:        "book_biometric",
		})
	}
	if s.Mobile == models.MobileUnlinked {
		recs = append(recs, Recommendation{
			ID:            "rec3",
			Title:         "Link Mobile Number",
			Description:   "Link your mobile for OTP-based authentication.",
			Priority:      "High",
			EstimatedTime: "2 minutes",
			Action:        "link_mobile",
		})
	}
	return recs
}

type Service struct {
	lookup  StatusLookup
	reports *reporting.Service
	advisor *llm.Advisor
}

func NewService(lookup StatusLookup, reports *reporting.Service, advisor *llm.Advisor) *Service {
	return &Service{lookup: lookup, reports: reports, advisor: advisor}
}

func (s *Service) Status(ctx context.Context, id auth.Identity) (*Status, error) {
	profile, err := s.lookup.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Status{
		Mobile:            id.Mobile,
		Last4Aadhaar:      id.Last4Aadhaar,
		District:          profile.District,
		State:             profile.State,
		DemoStatus:        profile.DemoStatus,
		Recommendations:   Recommendations(profile.DemoStatus),
		DistrictRisk:      profile.DistrictRisk,
		DistrictFreshness: profile.DistrictFreshness,
		Simulated:         true,
	}, nil
}

// Chat answers a citizen message. Generator failures never surface; the
// reply falls back to a template built from the citizen's flags.
func (s *Service) Chat(ctx context.Context, id auth.Identity, message string) (*ChatReply, error) {
	dashboard, err := s.reports.Dashboard(ctx)
	if err != nil {
		return nil, err
	}

	profile, err := s.lookup.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	logger.Debug("Answering citizen chat",
		zap.String("district", profile.District),
		zap.Int("message_length", len(message)),
	)

	return &ChatReply{
		Response:    s.advisor.CitizenReply(ctx, *profile, dashboard, message),
		CitizenData: *profile,
	}, nil
}
