package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aadhaar-drishti/backend/internal/storage/models"
	"github.com/aadhaar-drishti/backend/pkg/config"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	return &config.Config{
		Storage: config.StorageConfig{Driver: driver},
		SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "nested", "drishti.db")},
		Auth: config.AuthConfig{
			JWTSecret:     "secret",
			TokenTTLHours: 1,
			OTPTTLMinutes: 10,
			OTPMode:       "fixed",
			FixedOTP:      "123456",
			Region:        "IN",
		},
		Import:      config.ImportConfig{BatchSize: 10, Concurrency: 2, MaxAttempts: 2},
		Aggregation: config.AggregationConfig{Workers: 2},
		LLM:         config.LLMConfig{Provider: "gemini"},
	}
}

func TestNewWiresServices(t *testing.T) {
	for _, driver := range []string{"memory", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			app, err := New(ctx, testConfig(t, driver))
			require.NoError(t, err)
			defer app.Close()

			require.NoError(t, app.Store.Ping(ctx))

			_, err = app.OTPs.RequestOTP(ctx, "9876543210", "1234")
			require.NoError(t, err)
			session, err := app.OTPs.VerifyOTP(ctx, "9876543210", "123456", "1234")
			require.NoError(t, err)

			id, err := app.Tokens.Validate(session.Token)
			require.NoError(t, err)
			assert.Equal(t, "9876543210", id.Mobile)

			require.NoError(t, app.Store.InsertFacts(ctx, models.KindBiometric, []models.FactRecord{
				{State: "Kerala", District: "Ernakulam", Age5To17: 1, Age17Plus: 1},
			}))
			result, err := app.Engine.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, result.Processed)
		})
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), testConfig(t, "cassandra"))
	assert.Error(t, err)
}

func TestNewGenerator(t *testing.T) {
	ctx := context.Background()

	gen, err := NewGenerator(ctx, config.LLMConfig{Provider: "openai"})
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = NewGenerator(ctx, config.LLMConfig{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai", gen.Provider())

	_, err = NewGenerator(ctx, config.LLMConfig{Provider: "claude", APIKey: "k"})
	assert.Error(t, err)
}
