package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/pkg/logger"
)

type CodeGenerator interface {
	Generate() (string, error)
}

// FixedCode hands out the same code every time. It stands in until SMS
// delivery is wired.
type FixedCode string

func (f FixedCode) Generate() (string, error) {
	return string(f), nil
}

type RandomCode struct {
	Digits int
}

func (r RandomCode) Generate() (string, error) {
	digits := r.Digits
	if digits <= 0 {
		digits = 6
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

// Sender delivers an OTP to a mobile number.
type Sender interface {
	Send(ctx context.Context, mobile, code string) error
}

// LogSender records the delivery instead of sending an SMS.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, mobile, code string) error {
	logger.Info("OTP delivery skipped, no SMS gateway configured",
		zap.String("mobile", maskMobile(mobile)),
	)
	return nil
}

func maskMobile(mobile string) string {
	if len(mobile) <= 4 {
		return mobile
	}
	masked := make([]byte, len(mobile))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(mobile)-4:], mobile[len(mobile)-4:])
	return string(masked)
}
