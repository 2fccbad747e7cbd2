package collateral

import (
	"math"
	"testing"
)

func TestSaturatingSub(t *testing.T) {
	tests := []struct {
		a, b, want uint64
	}{
		{10, 3, 7},
		{10, 10, 0},
		{3, 10, 0},
		{0, 0, 0},
		{0, 1, 0},
		{math.MaxUint64, 1, math.MaxUint64 - 1},
	}
	for _, tt := range tests {
		if got := SaturatingSub(tt.a, tt.b); got != tt.want {
			t.Errorf("SaturatingSub(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEffectiveSlash(t *testing.T) {
	tests := []struct {
		requested, available, want uint64
	}{
		{50, 100, 50},
		{100, 100, 100},
		{250, 100, 100},
		{0, 100, 0},
		{50, 0, 0},
	}
	for _, tt := range tests {
		if got := EffectiveSlash(tt.requested, tt.available); got != tt.want {
			t.Errorf("EffectiveSlash(%d, %d) = %d, want %d", tt.requested, tt.available, got, tt.want)
		}
	}
}

func TestCheckedAdd(t *testing.T) {
	tests := []struct {
		a, b, want uint64
		ok         bool
	}{
		{1, 2, 3, true},
		{0, 0, 0, true},
		{math.MaxUint64, 0, math.MaxUint64, true},
		{math.MaxUint64, 1, 0, false},
		{math.MaxUint64 - 1, 2, 0, false},
	}
	for _, tt := range tests {
		got, ok := CheckedAdd(tt.a, tt.b)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("CheckedAdd(%d, %d) = (%d, %v), want (%d, %v)", tt.a, tt.b, got, ok, tt.want, tt.ok)
		}
	}
}
