package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/storage"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
	"github.com/aadhaar-drishti/backend/pkg/logger"
)

const (
	reportPrefix = "report:"
	otpPrefix    = "otp:"

	// otpGrace keeps an OTP key alive past ExpiresAt so a late verify sees
	// the expired record instead of no record.
	otpGrace = 5 * time.Minute
)

type Client struct {
	client *redis.Client
	now    func() time.Time
}

var _ storage.OTPStore = (*Client)(nil)

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return NewFromClient(client), nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(client *redis.Client) *Client {
	return &Client{client: client, now: time.Now}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetReport(ctx context.Context, key string, report interface{}, ttl time.Duration) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	err = c.client.Set(ctx, reportPrefix+key, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set report cache: %w", err)
	}

	logger.Debug("Report cached", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetReport(ctx context.Context, key string, report interface{}) (bool, error) {
	data, err := c.client.Get(ctx, reportPrefix+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get report cache: %w", err)
	}

	err = json.Unmarshal(data, report)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	logger.Debug("Report cache hit", zap.String("key", key))
	return true, nil
}

func (c *Client) InvalidateReports(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, reportPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Report cache invalidated")
	return nil
}

// OTP credentials live under one key per mobile, so SET replaces any prior
// code and the key TTL removes it otpGrace after it expires.

func otpKeyTTL(expiresAt, now time.Time) (time.Duration, error) {
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return 0, fmt.Errorf("otp already expired at %s", expiresAt.Format(time.RFC3339))
	}
	return ttl + otpGrace, nil
}

func (c *Client) ReplaceOTP(ctx context.Context, otp *models.OTPCredential) error {
	data, err := json.Marshal(otp)
	if err != nil {
		return fmt.Errorf("failed to marshal otp: %w", err)
	}

	ttl, err := otpKeyTTL(otp.ExpiresAt, c.now())
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, otpPrefix+otp.Mobile, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return nil
}

func (c *Client) getOTP(ctx context.Context, mobile string) (*models.OTPCredential, error) {
	data, err := c.client.Get(ctx, otpPrefix+mobile).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get otp: %w", err)
	}

	var o models.OTPCredential
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal otp: %w", err)
	}
	return &o, nil
}

func (c *Client) FindPendingOTP(ctx context.Context, mobile, last4Aadhaar string) (*models.OTPCredential, error) {
	o, err := c.getOTP(ctx, mobile)
	if err != nil {
		return nil, err
	}
	if o.Verified || o.Last4Aadhaar != last4Aadhaar {
		return nil, storage.ErrNotFound
	}
	return o, nil
}

func (c *Client) MarkOTPVerified(ctx context.Context, otp *models.OTPCredential) error {
	stored, err := c.getOTP(ctx, otp.Mobile)
	if err != nil {
		return err
	}
	if stored.ID != otp.ID {
		return storage.ErrNotFound
	}

	stored.Verified = true
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal otp: %w", err)
	}

	if err := c.client.Set(ctx, otpPrefix+otp.Mobile, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark otp verified: %w", err)
	}

	otp.Verified = true
	return nil
}

func (c *Client) DeleteOTP(ctx context.Context, otp *models.OTPCredential) error {
	if err := c.client.Del(ctx, otpPrefix+otp.Mobile).Err(); err != nil {
		return fmt.Errorf("failed to delete otp: %w", err)
	}
	return nil
}
