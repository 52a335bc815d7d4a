package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientProviders(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "mock", cfg: Config{Provider: ProviderMock, Dim: 64}},
		{name: "none", cfg: Config{Provider: ProviderNone, Dim: 64}},
		{name: "empty defaults to none", cfg: Config{Dim: 64}},
		{name: "ollama", cfg: Config{Provider: ProviderOllama, Dim: 768}},
		{name: "openai with key", cfg: Config{Provider: ProviderOpenAI, APIKey: "sk-test", Dim: 384}},
		{name: "openai without key", cfg: Config{Provider: ProviderOpenAI, Dim: 384}, wantErr: true},
		{name: "unknown provider", cfg: Config{Provider: "quantum"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, client)
		})
	}
}

func TestAbsentClientReportsUnavailable(t *testing.T) {
	client, err := NewClient(Config{Provider: ProviderNone, Dim: 32})
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 32, client.Dim())
}

func TestMockDeterministic(t *testing.T) {
	client := NewMockClient(128)

	a, err := client.Embed(context.Background(), "prefers tabs over spaces")
	require.NoError(t, err)
	b, err := client.Embed(context.Background(), "prefers tabs over spaces")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
}

func TestMockSharedTokensAreCloser(t *testing.T) {
	client := NewMockClient(128)
	ctx := context.Background()

	base, err := client.Embed(ctx, "use bun install for dependencies")
	require.NoError(t, err)
	near, err := client.Embed(ctx, "run bun install to fetch dependencies")
	require.NoError(t, err)
	far, err := client.Embed(ctx, "deployed the staging cluster yesterday")
	require.NoError(t, err)

	assert.Greater(t, cosine(base, near), cosine(base, far))
}

func TestMockEmptyTextStillUnit(t *testing.T) {
	client := NewMockClient(16)

	vec, err := client.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cosine(vec, vec), 1e-6)
}

func TestLazyCoalescesInit(t *testing.T) {
	calls := 0
	lazy := NewLazy(64, func() (Client, error) {
		calls++
		return NewMockClient(64), nil
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := lazy.Embed(ctx, "hello world")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

func TestLazyPinsFailedInit(t *testing.T) {
	calls := 0
	lazy := NewLazy(64, func() (Client, error) {
		calls++
		return nil, errors.New("backend offline")
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := lazy.Embed(ctx, "hello")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, 1, calls)
}

func TestLazyRejectsWrongDimension(t *testing.T) {
	lazy := NewLazy(64, func() (Client, error) {
		return NewMockClient(32), nil
	})

	_, err := lazy.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("dimension mismatch: %d vs %d", len(a), len(b)))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
