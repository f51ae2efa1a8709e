package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init("loud", "json", "stdout"))
}

func TestInitWritesToFile(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	path := filepath.Join(t.TempDir(), "drishti.log")
	require.NoError(t, Init("info", "json", path))

	Named("importer").Info("Import complete", zap.Int("rows", 3))
	Debug("hidden")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Import complete"`)
	assert.Contains(t, string(data), `"logger":"importer"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestInitTagsService(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	path := filepath.Join(t.TempDir(), "drishti.log")
	require.NoError(t, Init("debug", "json", path))

	Warn("OTP delivery failed")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"aadhaar-drishti"`)
	assert.Contains(t, string(data), `"level":"warn"`)
	assert.Contains(t, string(data), `"caller":"logger/logger_test.go`)
}
