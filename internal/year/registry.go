// Package year holds the process-wide conference year selector.
//
// The selected year is global: a Set from one request is observed by every
// request that follows it, whichever client issued it. Callers that need
// isolation attach an explicit year to their context with WithYear.
package year

import (
	"context"
	"errors"
	"sync"
)

// ErrInvalidYear is returned when a year outside the configured set is requested.
var ErrInvalidYear = errors.New("invalid year")

type ctxKey struct{}

// Registry stores the active year and the fixed list of years that may be selected.
type Registry struct {
	mu        sync.RWMutex
	current   string
	available []string
}

// NewRegistry creates a registry over the given years with def as the initial selection.
func NewRegistry(available []string, def string) (*Registry, error) {
	if len(available) == 0 {
		return nil, errors.New("at least one year is required")
	}

	r := &Registry{available: append([]string(nil), available...)}
	if !r.IsValid(def) {
		return nil, ErrInvalidYear
	}
	r.current = def

	return r, nil
}

// Set selects year for all subsequent reads. It returns false and leaves the
// selection untouched when year is not one of the available years.
func (r *Registry) Set(year string) bool {
	if !r.IsValid(year) {
		return false
	}

	r.mu.Lock()
	r.current = year
	r.mu.Unlock()

	return true
}

// Current returns the globally selected year.
func (r *Registry) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Available returns the selectable years in configured order.
func (r *Registry) Available() []string {
	return append([]string(nil), r.available...)
}

// IsValid reports whether year is selectable.
func (r *Registry) IsValid(year string) bool {
	for _, y := range r.available {
		if y == year {
			return true
		}
	}
	return false
}

// WithYear returns a context pinned to year. Reads made with that context
// ignore the global selection.
func (r *Registry) WithYear(ctx context.Context, year string) (context.Context, error) {
	if !r.IsValid(year) {
		return ctx, ErrInvalidYear
	}
	return context.WithValue(ctx, ctxKey{}, year), nil
}

// FromContext returns the year pinned on ctx, or the global selection.
func (r *Registry) FromContext(ctx context.Context) string {
	if y, ok := ctx.Value(ctxKey{}).(string); ok && y != "" {
		return y
	}
	return r.Current()
}
