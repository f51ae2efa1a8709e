package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ttacon/libphonenumber"
	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/metrics"
	"github.com/aadhaar-drishti/backend/internal/storage"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
	"github.com/aadhaar-drishti/backend/pkg/logger"
)

var (
	ErrInvalidMobile  = errors.New("invalid mobile number")
	ErrInvalidAadhaar = errors.New("invalid aadhaar digits")
	ErrOTPNotFound    = errors.New("no pending otp for mobile and aadhaar digits")
	ErrOTPExpired     = errors.New("otp expired")
	ErrOTPMismatch    = errors.New("otp mismatch")
)

const DefaultRegion = "IN"

type OTPRequest struct {
	Mobile    string
	ExpiresIn int
}

type Session struct {
	Token string
	User  Identity
}

type Service struct {
	store  storage.OTPStore
	tokens *TokenIssuer
	codes  CodeGenerator
	sender Sender
	ttl    time.Duration
	region string
	now    func() time.Time
}

type Option func(*Service)

func WithCodeGenerator(g CodeGenerator) Option {
	return func(s *Service) { s.codes = g }
}

func WithSender(sender Sender) Option {
	return func(s *Service) { s.sender = sender }
}

func WithOTPTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithRegion(region string) Option {
	return func(s *Service) {
		if region != "" {
			s.region = strings.ToUpper(region)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store storage.OTPStore, tokens *TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tokens: tokens,
		codes:  FixedCode("123456"),
		sender: LogSender{},
		ttl:    10 * time.Minute,
		region: DefaultRegion,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeMobile parses raw in the given region and returns its 10 digit
// national number. Numbers dialled with another country code are rejected.
func NormalizeMobile(raw, region string) (string, error) {
	num, err := libphonenumber.Parse(raw, region)
	if err != nil {
		return "", ErrInvalidMobile
	}
	if int(num.GetCountryCode()) != libphonenumber.GetCountryCodeForRegion(region) {
		return "", ErrInvalidMobile
	}

	national := strconv.FormatUint(num.GetNationalNumber(), 10)
	if len(national) != 10 {
		return "", ErrInvalidMobile
	}
	return national, nil
}

func validLast4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// RequestOTP issues a fresh code for mobile. Any earlier code for the same
// mobile stops working.
func (s *Service) RequestOTP(ctx context.Context, mobile, last4Aadhaar string) (*OTPRequest, error) {
	normalized, err := NormalizeMobile(mobile, s.region)
	if err != nil {
		metrics.OTPRequests.WithLabelValues("send", "invalid").Inc()
		return nil, err
	}
	if !validLast4(last4Aadhaar) {
		metrics.OTPRequests.WithLabelValues("send", "invalid").Inc()
		return nil, ErrInvalidAadhaar
	}

	code, err := s.codes.Generate()
	if err != nil {
		return nil, err
	}

	now := s.now()
	cred := &models.OTPCredential{
		ID:           uuid.New().String(),
		Mobile:       normalized,
		OTP:          code,
		Last4Aadhaar: last4Aadhaar,
		ExpiresAt:    now.Add(s.ttl),
		CreatedAt:    now,
	}

	if err := s.store.ReplaceOTP(ctx, cred); err != nil {
		metrics.OTPRequests.WithLabelValues("send", "error").Inc()
		return nil, fmt.Errorf("failed to store otp: %w", err)
	}

	if err := s.sender.Send(ctx, normalized, code); err != nil {
		logger.Warn("OTP delivery failed", zap.String("mobile", maskMobile(normalized)), zap.Error(err))
	}

	metrics.OTPRequests.WithLabelValues("send", "ok").Inc()
	return &OTPRequest{Mobile: normalized, ExpiresIn: int(s.ttl.Seconds())}, nil
}

// VerifyOTP checks code against the pending credential for (mobile,
// last4Aadhaar) and returns a signed session on success. An expired
// credential is deleted.
func (s *Service) VerifyOTP(ctx context.Context, mobile, code, last4Aadhaar string) (*Session, error) {
	normalized, err := NormalizeMobile(mobile, s.region)
	if err != nil {
		metrics.OTPRequests.WithLabelValues("verify", "not_found").Inc()
		return nil, ErrOTPNotFound
	}

	cred, err := s.store.FindPendingOTP(ctx, normalized, last4Aadhaar)
	if errors.Is(err, storage.ErrNotFound) {
		metrics.OTPRequests.WithLabelValues("verify", "not_found").Inc()
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load otp: %w", err)
	}

	if cred.Expired(s.now()) {
		if err := s.store.DeleteOTP(ctx, cred); err != nil {
			logger.Warn("Failed to delete expired otp", zap.Error(err))
		}
		metrics.OTPRequests.WithLabelValues("verify", "expired").Inc()
		return nil, ErrOTPExpired
	}

	if cred.OTP != code {
		metrics.OTPRequests.WithLabelValues("verify", "mismatch").Inc()
		return nil, ErrOTPMismatch
	}

	if err := s.store.MarkOTPVerified(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to mark otp verified: %w", err)
	}

	user := Identity{Mobile: normalized, Last4Aadhaar: last4Aadhaar}
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	metrics.OTPRequests.WithLabelValues("verify", "ok").Inc()
	logger.Info("Citizen verified", zap.String("mobile", maskMobile(normalized)))

	return &Session{Token: token, User: user}, nil
}
