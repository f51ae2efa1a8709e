package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aadhaar-drishti/backend/internal/storage"
	"github.com/aadhaar-drishti/backend/internal/storage/storagetest"
)

func TestClient(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		client, err := NewClient(filepath.Join(t.TempDir(), "drishti.db"))
		require.NoError(t, err)
		t.Cleanup(func() { client.Close() })
		require.NoError(t, client.InitSchema(context.Background()))
		return client
	})
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	client, err := NewClient(filepath.Join(t.TempDir(), "drishti.db"))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.InitSchema(ctx))
	require.NoError(t, client.InitSchema(ctx))
	require.NoError(t, client.Ping(ctx))
}
