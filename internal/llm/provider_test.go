package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	calls int
	reply string
	err   error
}

func (f *fakeProvider) Label(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{"provider": "fake"}
}

func TestApplyDefaults(t *testing.T) {
	var cfg ProviderConfig
	cfg.ApplyDefaults()

	assert.Equal(t, ProviderOpenAI, cfg.Type)
	assert.Equal(t, "gpt-4o-mini", cfg.ModelName)
	assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.NoError(t, cfg.Validate())

	gem := ProviderConfig{Type: ProviderGemini}
	gem.ApplyDefaults()
	assert.Equal(t, "gemini-1.5-flash", gem.ModelName)
	assert.Empty(t, gem.BaseURL)

	assert.Error(t, ProviderConfig{Type: "groq"}.Validate())
}

func TestNewProvider_UnknownType(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Type: "groq"}, zap.NewNop())
	assert.Error(t, err)
}

func TestGuardedProvider_PassesThrough(t *testing.T) {
	fake := &fakeProvider{reply: "Yes"}
	p := NewGuardedProvider(fake, ProviderConfig{Type: "fake-pass", ModelName: "m1"}, zap.NewNop())

	out, err := p.Label(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Yes", out)
	assert.Equal(t, "m1", p.Model())
	assert.Equal(t, "closed", p.GetModelInfo()["breaker_state"])
}

func TestGuardedProvider_DoesNotRetry(t *testing.T) {
	upstream := errors.New("status 500")
	fake := &fakeProvider{err: upstream}
	p := NewGuardedProvider(fake, ProviderConfig{Type: "fake-once", FailureThreshold: 10}, zap.NewNop())

	_, err := p.Label(context.Background(), "prompt")
	assert.ErrorIs(t, err, upstream)
	assert.Equal(t, 1, fake.calls)
}

func TestGuardedProvider_BreakerFailsFast(t *testing.T) {
	fake := &fakeProvider{err: errors.New("timeout")}
	p := NewGuardedProvider(fake, ProviderConfig{Type: "fake-trip", FailureThreshold: 2, OpenTimeout: time.Hour}, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := p.Label(context.Background(), "prompt")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := p.Label(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, fake.calls)
}

func TestGuardedProvider_CancelledWhileWaiting(t *testing.T) {
	fake := &fakeProvider{reply: "Yes"}
	p := NewGuardedProvider(fake, ProviderConfig{Type: "fake-slow", RequestsPerMinute: 1}, zap.NewNop())

	_, err := p.Label(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Label(ctx, "second")
	assert.Error(t, err)
	assert.Equal(t, 1, fake.calls)
}
