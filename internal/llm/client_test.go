package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aadhaar-drishti/backend/pkg/retry"
)

func TestIsClientError(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{400, true},
		{401, true},
		{429, false},
		{500, false},
	}

	for _, tc := range cases {
		err := fmt.Errorf("wrapped: %w", &openai.APIError{HTTPStatusCode: tc.status})
		assert.Equal(t, tc.want, isClientError(err), tc.status)
	}
	assert.False(t, isClientError(errors.New("connection reset")))
}

func TestGuardStopsOnPermanentError(t *testing.T) {
	g := newGuard("test", time.Second)
	rejected := errors.New("rejected")

	calls := 0
	err := g.run(context.Background(), func(ctx context.Context) error {
		calls++
		return retry.Permanent(rejected)
	})
	assert.Equal(t, rejected, err)
	assert.Equal(t, 1, calls)
}

func TestGuardAppliesTimeout(t *testing.T) {
	g := newGuard("test", 20*time.Millisecond)

	err := g.run(context.Background(), func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(20*time.Millisecond), deadline, 20*time.Millisecond)
		return nil
	})
	require.NoError(t, err)
}
