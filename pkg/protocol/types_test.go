package protocol

import (
	"encoding/json"
	"testing"
)

func TestTriggerTypeValidate(t *testing.T) {
	valid := []TriggerType{
		TriggerBlockHeight, TriggerTimestamp,
		TriggerPriceAbove, TriggerPriceBelow, TriggerBalanceThreshold,
	}
	for _, typ := range valid {
		if err := typ.Validate(); err != nil {
			t.Errorf("%s: %v", typ, err)
		}
	}
	for _, typ := range []TriggerType{"", "lunar_phase", "BLOCK_HEIGHT"} {
		if err := typ.Validate(); err == nil {
			t.Errorf("%q: expected error", typ)
		}
	}
}

func TestTriggerTypeChainEvaluable(t *testing.T) {
	tests := []struct {
		typ  TriggerType
		want bool
	}{
		{TriggerBlockHeight, true},
		{TriggerTimestamp, true},
		{TriggerPriceAbove, false},
		{TriggerPriceBelow, false},
		{TriggerBalanceThreshold, false},
	}
	for _, tt := range tests {
		if got := tt.typ.ChainEvaluable(); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ConditionStatus
		want     bool
	}{
		{StatusRegistered, StatusActive, true},
		{StatusRegistered, StatusCancelled, true},
		{StatusRegistered, StatusExecuted, false},
		{StatusRegistered, StatusSlashed, false},
		{StatusActive, StatusExecuted, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusSlashed, true},
		{StatusActive, StatusRegistered, false},
		{StatusExecuted, StatusActive, true},
		{StatusExecuted, StatusSlashed, true},
		{StatusExecuted, StatusCancelled, false},
		{StatusCancelled, StatusActive, false},
		{StatusCancelled, StatusRegistered, false},
		{StatusSlashed, StatusActive, false},
		{StatusSlashed, StatusExecuted, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := map[ConditionStatus]bool{
		StatusRegistered: false,
		StatusActive:     false,
		StatusExecuted:   false,
		StatusCancelled:  true,
		StatusSlashed:    true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s: got %v, want %v", status, got, want)
		}
	}
}

func TestStatusJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(StatusActive)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var s ConditionStatus
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s != StatusActive {
		t.Fatalf("got %s, want %s", s, StatusActive)
	}

	if err := json.Unmarshal([]byte(`"bogus"`), &s); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestTargetIsZero(t *testing.T) {
	if !(Target{}).IsZero() {
		t.Fatal("empty target should be zero")
	}
	if (Target{Address: "0xabc"}).IsZero() {
		t.Fatal("addressed target should not be zero")
	}
	// A payload alone is not a valid target.
	if !(Target{Payload: []byte{1}}).IsZero() {
		t.Fatal("payload without address should still be zero")
	}
}

func TestConditionCloneIsolatesPayload(t *testing.T) {
	c := &Condition{
		ID:     1,
		Target: Target{Address: "0xabc", Payload: []byte{0xde, 0xad}},
	}
	cp := c.Clone()
	cp.Target.Payload[0] = 0x00
	if c.Target.Payload[0] != 0xde {
		t.Fatal("clone shares the payload slice")
	}
}
