package oracle

import (
	"context"
	"errors"
	"testing"
	"time"
)

var now = time.Unix(1_700_000_000, 0)

func newTestOracle(maxStaleness time.Duration) (*Oracle, *StaticSource) {
	src := NewStaticSource()
	o := New(src, maxStaleness).WithClock(func() time.Time { return now })
	return o, src
}

func TestPriceAboveStrict(t *testing.T) {
	o, src := newTestOracle(time.Hour)
	ctx := context.Background()

	tests := []struct {
		price, threshold uint64
		want             bool
	}{
		{2001, 2000, true},
		{2000, 2000, false}, // strictly above
		{1999, 2000, false},
	}
	for _, tt := range tests {
		src.SetPrice("ETH/USD", tt.price, now)
		got, err := o.PriceAbove(ctx, "ETH/USD", tt.threshold)
		if err != nil {
			t.Fatalf("PriceAbove(%d, %d): %v", tt.price, tt.threshold, err)
		}
		if got != tt.want {
			t.Errorf("PriceAbove(%d, %d) = %v, want %v", tt.price, tt.threshold, got, tt.want)
		}
	}
}

func TestPriceBelowStrict(t *testing.T) {
	o, src := newTestOracle(time.Hour)
	ctx := context.Background()

	tests := []struct {
		price, threshold uint64
		want             bool
	}{
		{1999, 2000, true},
		{2000, 2000, false}, // strictly below
		{2001, 2000, false},
	}
	for _, tt := range tests {
		src.SetPrice("ETH/USD", tt.price, now)
		got, err := o.PriceBelow(ctx, "ETH/USD", tt.threshold)
		if err != nil {
			t.Fatalf("PriceBelow(%d, %d): %v", tt.price, tt.threshold, err)
		}
		if got != tt.want {
			t.Errorf("PriceBelow(%d, %d) = %v, want %v", tt.price, tt.threshold, got, tt.want)
		}
	}
}

func TestBalanceAboveInclusive(t *testing.T) {
	o, src := newTestOracle(time.Hour)
	ctx := context.Background()

	tests := []struct {
		balance, threshold uint64
		want               bool
	}{
		{1001, 1000, true},
		{1000, 1000, true}, // meets the threshold
		{999, 1000, false},
	}
	for _, tt := range tests {
		src.SetBalance("alice", tt.balance, now)
		got, err := o.BalanceAbove(ctx, "alice", tt.threshold)
		if err != nil {
			t.Fatalf("BalanceAbove(%d, %d): %v", tt.balance, tt.threshold, err)
		}
		if got != tt.want {
			t.Errorf("BalanceAbove(%d, %d) = %v, want %v", tt.balance, tt.threshold, got, tt.want)
		}
	}
}

func TestStaleReadingNeverAnswers(t *testing.T) {
	o, src := newTestOracle(time.Hour)
	ctx := context.Background()

	// Exactly at the bound is still fresh; one second past is not.
	src.SetPrice("ETH/USD", 3000, now.Add(-time.Hour))
	if _, err := o.PriceAbove(ctx, "ETH/USD", 2000); err != nil {
		t.Fatalf("reading at the staleness bound should answer: %v", err)
	}

	src.SetPrice("ETH/USD", 3000, now.Add(-time.Hour-time.Second))
	if _, err := o.PriceAbove(ctx, "ETH/USD", 2000); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}

	src.SetBalance("alice", 5000, now.Add(-2*time.Hour))
	if _, err := o.BalanceAbove(ctx, "alice", 1000); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestUnknownReading(t *testing.T) {
	o, _ := newTestOracle(time.Hour)
	ctx := context.Background()

	if _, err := o.PriceAbove(ctx, "DOGE/USD", 1); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
	if _, err := o.BalanceAbove(ctx, "nobody", 1); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
}

func TestDefaultStaleness(t *testing.T) {
	src := NewStaticSource()
	o := New(src, 0).WithClock(func() time.Time { return now })
	src.SetPrice("ETH/USD", 3000, now.Add(-DefaultMaxStaleness+time.Minute))

	if _, err := o.PriceAbove(context.Background(), "ETH/USD", 2000); err != nil {
		t.Fatalf("zero maxStaleness should use the default bound: %v", err)
	}
}
