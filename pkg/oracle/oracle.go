// Package oracle is the read-only price and balance collaborator consumed by
// the layer that evaluates non-chain trigger types. The protocol core never
// reads it directly.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultMaxStaleness is how old a reading may be before it is treated as
// unavailable.
const DefaultMaxStaleness = 3600 * time.Second

// ErrStale means the freshest available reading is older than the staleness
// bound. A stale reading is never surfaced as a truth value.
var ErrStale = errors.New("oracle reading is stale")

// ErrUnknown means the source has no reading for the requested key.
var ErrUnknown = errors.New("no oracle reading")

// Reading is one observed value with its observation time.
type Reading struct {
	Value uint64    `json:"value"`
	Time  time.Time `json:"time"`
}

// Source supplies raw readings. Implementations wrap a price feed or chain
// state reader; tests use StaticSource.
type Source interface {
	// Price returns the latest reading for a trading pair such as "ETH/USD".
	Price(ctx context.Context, pair string) (Reading, error)

	// Balance returns the latest balance reading for a principal.
	Balance(ctx context.Context, principal string) (Reading, error)
}

// Oracle answers threshold predicates over a Source, enforcing the staleness
// contract on every read.
type Oracle struct {
	source       Source
	maxStaleness time.Duration
	now          func() time.Time
}

// New creates an oracle over the source. A zero maxStaleness uses the
// default.
func New(source Source, maxStaleness time.Duration) *Oracle {
	if maxStaleness <= 0 {
		maxStaleness = DefaultMaxStaleness
	}
	return &Oracle{source: source, maxStaleness: maxStaleness, now: time.Now}
}

// WithClock overrides the clock for testing.
func (o *Oracle) WithClock(now func() time.Time) *Oracle {
	o.now = now
	return o
}

// PriceAbove reports whether the pair trades strictly above the threshold.
func (o *Oracle) PriceAbove(ctx context.Context, pair string, threshold uint64) (bool, error) {
	r, err := o.source.Price(ctx, pair)
	if err != nil {
		return false, err
	}
	if err := o.fresh(r, "price "+pair); err != nil {
		return false, err
	}
	return r.Value > threshold, nil
}

// PriceBelow reports whether the pair trades strictly below the threshold.
func (o *Oracle) PriceBelow(ctx context.Context, pair string, threshold uint64) (bool, error) {
	r, err := o.source.Price(ctx, pair)
	if err != nil {
		return false, err
	}
	if err := o.fresh(r, "price "+pair); err != nil {
		return false, err
	}
	return r.Value < threshold, nil
}

// BalanceAbove reports whether the principal's balance meets the threshold.
func (o *Oracle) BalanceAbove(ctx context.Context, principal string, threshold uint64) (bool, error) {
	r, err := o.source.Balance(ctx, principal)
	if err != nil {
		return false, err
	}
	if err := o.fresh(r, "balance "+principal); err != nil {
		return false, err
	}
	return r.Value >= threshold, nil
}

func (o *Oracle) fresh(r Reading, key string) error {
	age := o.now().Sub(r.Time)
	if age > o.maxStaleness {
		return fmt.Errorf("%w: %s reading is %s old (max %s)", ErrStale, key, age, o.maxStaleness)
	}
	return nil
}

// StaticSource is an in-memory source for tests and the local CLI.
type StaticSource struct {
	mu       sync.RWMutex
	prices   map[string]Reading
	balances map[string]Reading
}

// NewStaticSource creates an empty static source.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		prices:   make(map[string]Reading),
		balances: make(map[string]Reading),
	}
}

// SetPrice records a price reading.
func (s *StaticSource) SetPrice(pair string, value uint64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[pair] = Reading{Value: value, Time: at}
}

// SetBalance records a balance reading.
func (s *StaticSource) SetBalance(principal string, value uint64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[principal] = Reading{Value: value, Time: at}
}

// Price implements Source.
func (s *StaticSource) Price(_ context.Context, pair string) (Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.prices[pair]
	if !ok {
		return Reading{}, fmt.Errorf("%w: price %s", ErrUnknown, pair)
	}
	return r, nil
}

// Balance implements Source.
func (s *StaticSource) Balance(_ context.Context, principal string) (Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.balances[principal]
	if !ok {
		return Reading{}, fmt.Errorf("%w: balance %s", ErrUnknown, principal)
	}
	return r, nil
}
