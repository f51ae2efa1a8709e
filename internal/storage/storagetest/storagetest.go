// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aadhaar-drishti/backend/internal/storage"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
)

// Run exercises a fresh store from newStore in every subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("Facts", func(t *testing.T) { testFacts(t, newStore(t)) })
	t.Run("Summaries", func(t *testing.T) { testSummaries(t, newStore(t)) })
	t.Run("OTP", func(t *testing.T) { testOTP(t, newStore(t)) })
}

// RunOTP exercises a fresh OTP store from newStore, for backends that only
// hold credentials.
func RunOTP(t *testing.T, newStore func(t *testing.T) storage.OTPStore) {
	testOTP(t, newStore(t))
}

func testFacts(t *testing.T, s storage.Store) {
	ctx := context.Background()
	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertFacts(ctx, models.KindBiometric, []models.FactRecord{
		{Date: date, State: "Maharashtra", District: "Pune", Pincode: 411001, Age5To17: 10, Age17Plus: 20},
		{Date: date, State: "Maharashtra", District: "Pune", Pincode: 411002, Age5To17: 5, Age17Plus: 1},
		{Date: date, State: "Kerala", District: "Ernakulam", Pincode: 682001, Age5To17: 7},
	}))
	require.NoError(t, s.InsertFacts(ctx, models.KindEnrolment, []models.FactRecord{
		{Date: date, State: "Goa", District: "North Goa", Pincode: 403001, Age0To5: 1, Age5To17: 2, Age18Plus: 3},
	}))

	keys, err := s.Districts(ctx, models.KindBiometric)
	require.NoError(t, err)
	assert.Equal(t, []models.DistrictKey{
		{State: "Kerala", District: "Ernakulam"},
		{State: "Maharashtra", District: "Pune"},
	}, keys)

	totals, err := s.Totals(ctx, models.KindBiometric, models.DistrictKey{State: "Maharashtra", District: "Pune"})
	require.NoError(t, err)
	assert.Equal(t, models.AgeTotals{Age5To17: 15, Age17Plus: 21}, totals)

	totals, err = s.Totals(ctx, models.KindEnrolment, models.DistrictKey{State: "Goa", District: "North Goa"})
	require.NoError(t, err)
	assert.Equal(t, models.AgeTotals{Age0To5: 1, Age5To17: 2, Age18Plus: 3}, totals)

	totals, err = s.Totals(ctx, models.KindDemographic, models.DistrictKey{State: "Goa", District: "North Goa"})
	require.NoError(t, err)
	assert.Equal(t, models.AgeTotals{}, totals)

	n, err := s.DeleteFacts(ctx, models.KindBiometric)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	keys, err = s.Districts(ctx, models.KindBiometric)
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = s.Districts(ctx, models.KindEnrolment)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func summary(state, name string, freshness int, risk models.RiskLevel) *models.DistrictSummary {
	return &models.DistrictSummary{
		Name:           name,
		State:          state,
		FreshnessScore: freshness,
		RiskLevel:      risk,
		LastUpdated:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func testSummaries(t *testing.T, s storage.Store) {
	ctx := context.Background()

	n, err := s.CountSummaries(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	first := summary("Maharashtra", "Pune", 90, models.RiskLow)
	require.NoError(t, s.UpsertSummary(ctx, first))
	require.NotEmpty(t, first.ID)

	again := summary("Maharashtra", "Pune", 35, models.RiskCritical)
	require.NoError(t, s.UpsertSummary(ctx, again))
	assert.Equal(t, first.ID, again.ID)

	require.NoError(t, s.UpsertSummary(ctx, summary("Maharashtra", "Nagpur", 35, models.RiskCritical)))
	require.NoError(t, s.UpsertSummary(ctx, summary("Kerala", "Wayanad", 50, models.RiskHigh)))
	require.NoError(t, s.UpsertSummary(ctx, summary("Goa", "North Goa", 35, models.RiskCritical)))

	n, err = s.CountSummaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	list, err := s.ListSummaries(ctx, models.SummaryFilter{Sort: models.SortByFreshnessAsc})
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, []string{"North Goa", "Nagpur", "Pune", "Wayanad"}, names(list))
	assert.True(t, list[2].LastUpdated.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, models.RiskCritical, list[2].RiskLevel)

	list, err = s.ListSummaries(ctx, models.SummaryFilter{State: "Maharashtra"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Nagpur", "Pune"}, names(list))

	list, err = s.ListSummaries(ctx, models.SummaryFilter{RiskLevel: models.RiskCritical, Sort: models.SortByFreshnessAsc, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"North Goa", "Nagpur"}, names(list))

	states, err := s.DistinctStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Goa", "Kerala", "Maharashtra"}, states)
}

func names(list []models.DistrictSummary) []string {
	out := make([]string, len(list))
	for i, d := range list {
		out[i] = d.Name
	}
	return out
}

func testOTP(t *testing.T, s storage.OTPStore) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	cred := func(id, code string) *models.OTPCredential {
		return &models.OTPCredential{
			ID:           id,
			Mobile:       "9876543210",
			OTP:          code,
			Last4Aadhaar: "1234",
			ExpiresAt:    now.Add(10 * time.Minute),
			CreatedAt:    now,
		}
	}

	_, err := s.FindPendingOTP(ctx, "9876543210", "1234")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.ReplaceOTP(ctx, cred("otp-1", "111111")))
	require.NoError(t, s.ReplaceOTP(ctx, cred("otp-2", "222222")))

	got, err := s.FindPendingOTP(ctx, "9876543210", "1234")
	require.NoError(t, err)
	assert.Equal(t, "otp-2", got.ID)
	assert.Equal(t, "222222", got.OTP)
	assert.True(t, got.ExpiresAt.Equal(now.Add(10*time.Minute)))

	_, err = s.FindPendingOTP(ctx, "9876543210", "9999")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.MarkOTPVerified(ctx, got))
	assert.True(t, got.Verified)

	_, err = s.FindPendingOTP(ctx, "9876543210", "1234")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.ReplaceOTP(ctx, cred("otp-3", "333333")))
	got, err = s.FindPendingOTP(ctx, "9876543210", "1234")
	require.NoError(t, err)
	require.NoError(t, s.DeleteOTP(ctx, got))

	_, err = s.FindPendingOTP(ctx, "9876543210", "1234")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
