package storage

import (
	"context"
	"errors"

	"github.com/aadhaar-drishti/backend/internal/storage/models"
)

var ErrNotFound = errors.New("record not found")

// FactStore holds the three append-only fact tables.
type FactStore interface {
	InsertFacts(ctx context.Context, kind models.ImportKind, records []models.FactRecord) error
	DeleteFacts(ctx context.Context, kind models.ImportKind) (int64, error)
	Districts(ctx context.Context, kind models.ImportKind) ([]models.DistrictKey, error)
	Totals(ctx context.Context, kind models.ImportKind, key models.DistrictKey) (models.AgeTotals, error)
}

type SummaryStore interface {
	UpsertSummary(ctx context.Context, summary *models.DistrictSummary) error
	ListSummaries(ctx context.Context, filter models.SummaryFilter) ([]models.DistrictSummary, error)
	CountSummaries(ctx context.Context) (int64, error)
	DistinctStates(ctx context.Context) ([]string, error)
}

// OTPStore keeps at most one credential per mobile number.
type OTPStore interface {
	ReplaceOTP(ctx context.Context, otp *models.OTPCredential) error
	FindPendingOTP(ctx context.Context, mobile, last4Aadhaar string) (*models.OTPCredential, error)
	MarkOTPVerified(ctx context.Context, otp *models.OTPCredential) error
	DeleteOTP(ctx context.Context, otp *models.OTPCredential) error
}

type Store interface {
	FactStore
	SummaryStore
	OTPStore
	InitSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
