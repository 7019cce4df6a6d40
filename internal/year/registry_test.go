package year

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]string{"2024", "2025", "2026"}, "2024")
	require.NoError(t, err)
	return r
}

func TestRegistry_SetValidYears(t *testing.T) {
	r := newRegistry(t)

	for _, y := range r.Available() {
		t.Run(y, func(t *testing.T) {
			assert.True(t, r.Set(y))
			assert.Equal(t, y, r.Current())
		})
	}
}

func TestRegistry_SetInvalidYearKeepsState(t *testing.T) {
	r := newRegistry(t)
	require.True(t, r.Set("2025"))

	for _, y := range []string{"2023", "", "2024 ", "twenty"} {
		assert.False(t, r.Set(y), "year %q", y)
		assert.Equal(t, "2025", r.Current())
	}
}

func TestRegistry_AvailableIsACopy(t *testing.T) {
	r := newRegistry(t)

	years := r.Available()
	years[0] = "1999"

	assert.Equal(t, []string{"2024", "2025", "2026"}, r.Available())
}

func TestNewRegistry_RejectsBadDefault(t *testing.T) {
	_, err := NewRegistry([]string{"2024"}, "2030")
	assert.ErrorIs(t, err, ErrInvalidYear)

	_, err = NewRegistry(nil, "2024")
	assert.Error(t, err)
}

func TestRegistry_ContextOverride(t *testing.T) {
	r := newRegistry(t)

	ctx, err := r.WithYear(context.Background(), "2026")
	require.NoError(t, err)

	// A global switch made by another request does not leak into the pinned context.
	require.True(t, r.Set("2025"))
	assert.Equal(t, "2026", r.FromContext(ctx))
	assert.Equal(t, "2025", r.FromContext(context.Background()))

	_, err = r.WithYear(context.Background(), "1990")
	assert.ErrorIs(t, err, ErrInvalidYear)
}

func TestRegistry_ConcurrentSetIsLastWriteWins(t *testing.T) {
	r := newRegistry(t)

	done := make(chan struct{})
	for _, y := range []string{"2024", "2025", "2026"} {
		go func(y string) {
			for i := 0; i < 100; i++ {
				r.Set(y)
				_ = r.Current()
			}
			done <- struct{}{}
		}(y)
	}
	for i := 0; i < 3; i++ {
		<-done
	}

	assert.True(t, r.IsValid(r.Current()))
}
