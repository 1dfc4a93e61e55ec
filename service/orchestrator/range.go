package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Range is a closed interval of durations from which pauses are drawn.
// The zero Range means "no pause".
type Range struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Fixed returns a Range that always draws d.
func Fixed(d time.Duration) Range { return Range{Min: d, Max: d} }

// ParseRange parses "min-max" (e.g. "5s-30s") or a single duration.
// An empty string yields the zero Range.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, nil
	}
	lo, hi, found := strings.Cut(s, "-")
	if !found {
		d, err := time.ParseDuration(s)
		if err != nil {
			return Range{}, fmt.Errorf("parse range %q: %w", s, err)
		}
		return Fixed(d), nil
	}
	minD, err := time.ParseDuration(strings.TrimSpace(lo))
	if err != nil {
		return Range{}, fmt.Errorf("parse range %q: min: %w", s, err)
	}
	maxD, err := time.ParseDuration(strings.TrimSpace(hi))
	if err != nil {
		return Range{}, fmt.Errorf("parse range %q: max: %w", s, err)
	}
	r := Range{Min: minD, Max: maxD}
	return r, r.Validate()
}

// Validate rejects negative bounds and inverted ranges.
func (r Range) Validate() error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("range %s has a negative bound", r)
	}
	if r.Max < r.Min {
		return fmt.Errorf("range %s has max below min", r)
	}
	return nil
}

// IsZero reports whether the range never pauses.
func (r Range) IsZero() bool { return r.Max <= 0 }

// Draw returns a uniformly distributed duration in [Min, Max].
func (r Range) Draw() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rand.N(r.Max-r.Min+1)
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Min, r.Max)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
