package storage

import (
	"context"

	"github.com/aadhaar-drishti/backend/internal/storage/models"
)

// WithOTPStore returns a Store whose OTP methods go to otps and everything
// else to base. It is how OTP credentials are moved into redis. Closing the
// result closes base only.
func WithOTPStore(base Store, otps OTPStore) Store {
	return &splitStore{Store: base, otps: otps}
}

type splitStore struct {
	Store
	otps OTPStore
}

func (s *splitStore) ReplaceOTP(ctx context.Context, otp *models.OTPCredential) error {
	return s.otps.ReplaceOTP(ctx, otp)
}

func (s *splitStore) FindPendingOTP(ctx context.Context, mobile, last4Aadhaar string) (*models.OTPCredential, error) {
	return s.otps.FindPendingOTP(ctx, mobile, last4Aadhaar)
}

func (s *splitStore) MarkOTPVerified(ctx context.Context, otp *models.OTPCredential) error {
	return s.otps.MarkOTPVerified(ctx, otp)
}

func (s *splitStore) DeleteOTP(ctx context.Context, otp *models.OTPCredential) error {
	return s.otps.DeleteOTP(ctx, otp)
}
