package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/metrics"
	"github.com/aadhaar-drishti/backend/internal/reporting"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
	"github.com/aadhaar-drishti/backend/pkg/logger"
)

const recommendationCount = 4

type Recommendation struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	Priority    string `json:"priority" validate:"oneof=High Medium Low"`
	ActionType  string `json:"actionType" validate:"oneof=Campaign Service Infrastructure"`
}

// Returned when the model answered but not with four usable items.
var parseFallback = []Recommendation{
	{ID: "r1", Title: "Mobile Update Vans", Description: "Deploy mobile vans in high-risk districts for doorstep updates.", Priority: "High", ActionType: "Infrastructure"},
	{ID: "r2", Title: "SMS Awareness Campaign", Description: "Launch targeted SMS campaign in districts with low freshness scores.", Priority: "High", ActionType: "Campaign"},
	{ID: "r3", Title: "Senior Citizen Assistance", Description: "Provide dedicated helpline and doorstep service for 60+ age group.", Priority: "Medium", ActionType: "Service"},
	{ID: "r4", Title: "Aadhaar Center Expansion", Description: "Open more enrollment centers in rural high-migration areas.", Priority: "Medium", ActionType: "Infrastructure"},
}

// Returned when the model could not be reached.
var errorFallback = []Recommendation{
	{ID: "r1", Title: "Target High-Risk Districts", Description: "Focus resources on districts with Critical and High risk levels.", Priority: "High", ActionType: "Campaign"},
	{ID: "r2", Title: "Biometric Update Drive", Description: "Organize camps for senior citizens to update biometrics.", Priority: "High", ActionType: "Service"},
	{ID: "r3", Title: "Mobile Linking Initiative", Description: "Simplify mobile linking process through online portal.", Priority: "Medium", ActionType: "Infrastructure"},
	{ID: "r4", Title: "Migration Pattern Analysis", Description: "Use AI to predict districts needing intervention.", Priority: "Low", ActionType: "Infrastructure"},
}

var jsonArrayPattern = regexp.MustCompile(`\[[\s\S]*\]`)

// Advisor turns district statistics into advice. It never returns a
// generator error; every failure degrades to a fixed answer.
type Advisor struct {
	gen      Generator
	validate *validator.Validate
}

// NewAdvisor accepts a nil generator, in which case every call falls back.
func NewAdvisor(gen Generator) *Advisor {
	return &Advisor{gen: gen, validate: validator.New()}
}

func copyRecs(recs []Recommendation) []Recommendation {
	out := make([]Recommendation, len(recs))
	copy(out, recs)
	return out
}

func (a *Advisor) Recommendations(ctx context.Context, stats *reporting.RecommendationContext, userContext string) []Recommendation {
	if a.gen == nil {
		metrics.LLMRequests.WithLabelValues("recommendations", "disabled").Inc()
		return copyRecs(errorFallback)
	}

	resp, err := a.gen.Generate(ctx, CompletionRequest{
		SystemPrompt: "You are an AI advisor for UIDAI's Aadhaar data freshness platform.",
		UserPrompt:   recommendationPrompt(stats, userContext),
		Temperature:  0.4,
		MaxTokens:    800,
	})
	if err != nil {
		logger.Warn("Recommendation generation failed, using fallback",
			zap.String("provider", a.gen.Provider()),
			zap.Error(err),
		)
		metrics.LLMRequests.WithLabelValues("recommendations", "error").Inc()
		return copyRecs(errorFallback)
	}

	recs, err := a.parseRecommendations(resp.Content)
	if err != nil {
		logger.Warn("Unusable recommendation answer, using fallback", zap.Error(err))
		metrics.LLMRequests.WithLabelValues("recommendations", "unparseable").Inc()
		return copyRecs(parseFallback)
	}

	metrics.LLMRequests.WithLabelValues("recommendations", "ok").Inc()
	return recs
}

func (a *Advisor) parseRecommendations(content string) ([]Recommendation, error) {
	match := jsonArrayPattern.FindString(content)
	if match == "" {
		return nil, fmt.Errorf("no json array in answer")
	}

	var recs []Recommendation
	if err := json.Unmarshal([]byte(match), &recs); err != nil {
		return nil, fmt.Errorf("failed to decode recommendations: %w", err)
	}
	if len(recs) != recommendationCount {
		return nil, fmt.Errorf("got %d recommendations, want %d", len(recs), recommendationCount)
	}
	for i := range recs {
		if err := a.validate.Struct(recs[i]); err != nil {
			return nil, fmt.Errorf("recommendation %d: %w", i, err)
		}
	}
	return recs, nil
}

func recommendationPrompt(stats *reporting.RecommendationContext, userContext string) string {
	risky, _ := json.Marshal(stats.TopRiskyDistricts)

	var b strings.Builder
	fmt.Fprintf(&b, "Current Statistics:\n")
	fmt.Fprintf(&b, "- Total Districts Monitored: %d\n", stats.TotalDistricts)
	fmt.Fprintf(&b, "- High Risk Districts: %d\n", stats.HighRiskCount)
	fmt.Fprintf(&b, "- Average Freshness Score: %.1f\n", stats.AvgFreshnessScore)
	fmt.Fprintf(&b, "- Top Risky Districts: %s\n\n", risky)
	if userContext != "" {
		fmt.Fprintf(&b, "Additional Context: %s\n\n", userContext)
	}
	b.WriteString(`Generate EXACTLY 4 actionable recommendations for UIDAI officials to improve data freshness. Each recommendation should:
1. Have a clear title (max 8 words)
2. Have a description (max 25 words)
3. Be categorized as 'Campaign', 'Service', or 'Infrastructure'
4. Have priority 'High', 'Medium', or 'Low'

Format as JSON array:
[
  {
    "id": "r1",
    "title": "...",
    "description": "...",
    "priority": "High|Medium|Low",
    "actionType": "Campaign|Service|Infrastructure"
  }
]`)
	return b.String()
}

// CitizenReply answers a citizen's chat message in light of their district
// and the national picture.
func (a *Advisor) CitizenReply(ctx context.Context, profile models.CitizenProfile, dashboard *reporting.DashboardStats, message string) string {
	if a.gen == nil {
		metrics.LLMRequests.WithLabelValues("citizen_chat", "disabled").Inc()
		return CitizenFallback(profile)
	}

	resp, err := a.gen.Generate(ctx, CompletionRequest{
		SystemPrompt: "You are a helpful AI assistant for UIDAI's Aadhaar citizen portal. Help citizens understand their Aadhaar status and recommend actions.",
		UserPrompt:   citizenPrompt(profile, dashboard, message),
		Temperature:  0.6,
		MaxTokens:    400,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		logger.Warn("Citizen reply generation failed, using fallback",
			zap.String("provider", a.gen.Provider()),
			zap.Error(err),
		)
		metrics.LLMRequests.WithLabelValues("citizen_chat", "error").Inc()
		return CitizenFallback(profile)
	}

	metrics.LLMRequests.WithLabelValues("citizen_chat", "ok").Inc()
	return strings.TrimSpace(resp.Content)
}

func citizenPrompt(p models.CitizenProfile, d *reporting.DashboardStats, message string) string {
	var b strings.Builder
	b.WriteString("Citizen Information:\n")
	fmt.Fprintf(&b, "- District: %s\n", orUnknown(p.District))
	fmt.Fprintf(&b, "- State: %s\n", orUnknown(p.State))
	fmt.Fprintf(&b, "- District Risk Level: %s\n", orUnknown(string(p.DistrictRisk)))
	fmt.Fprintf(&b, "- District Freshness Score: %d/100\n", p.DistrictFreshness)
	fmt.Fprintf(&b, "- Address Status: %s\n", orUnknown(p.DemoStatus.Address))
	fmt.Fprintf(&b, "- Mobile Status: %s\n", orUnknown(p.DemoStatus.Mobile))
	fmt.Fprintf(&b, "- Biometric Status: %s\n\n", orUnknown(p.DemoStatus.Biometric))

	if d != nil {
		b.WriteString("Dashboard Statistics:\n")
		fmt.Fprintf(&b, "- Average Freshness Score: %.1f\n", d.AvgFreshnessScore)
		fmt.Fprintf(&b, "- High Risk Districts: %d\n", d.HighRiskCount)
		fmt.Fprintf(&b, "- Average Update Required: %.1f%%\n\n", d.RecordsNeedingUpdatePct)
	}

	if message != "" {
		fmt.Fprintf(&b, "Citizen's question: %s\n\n", message)
	}

	b.WriteString(`Provide personalized, friendly recommendations in a conversational tone. Focus on:
1. What actions the citizen should take based on their status
2. Why these actions are important
3. Which areas/districts need attention
4. How to update their Aadhaar details

Format as a friendly, conversational response (max 200 words). Be helpful and clear.`)
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// CitizenFallback builds a reply from the profile flags alone.
func CitizenFallback(p models.CitizenProfile) string {
	var tips []string
	if p.DemoStatus.Address == models.AddressStale {
		tips = append(tips, "Your address may need updating. High migration detected in your district.")
	}
	if p.DemoStatus.Mobile == models.MobileUnlinked {
		tips = append(tips, "Link your mobile number for seamless OTP services.")
	}
	if p.DemoStatus.Biometric == models.BiometricAging {
		tips = append(tips, "Consider updating your biometrics, especially if you are 60+ years old.")
	}

	if len(tips) == 0 {
		return "Your Aadhaar details appear to be in good shape. Keep your information updated for seamless service delivery."
	}
	return fmt.Sprintf("Based on your district's data (%s), here are recommendations: %s", p.District, strings.Join(tips, " "))
}
