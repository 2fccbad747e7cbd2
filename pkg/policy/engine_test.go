package policy

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func TestNewEngine(t *testing.T) {
	eng := testEngine(t)

	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"condition-quota",
		"execution-rate",
		"stake-floor",
		"target-address",
	}

	for _, expected := range expectedPolicies {
		found := false
		for _, p := range policies {
			if p.Name == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func TestEvaluateConditionQuota(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	tests := []struct {
		name             string
		activeConditions int
		expectAllowed    bool
	}{
		{name: "under quota", activeConditions: 5, expectAllowed: true},
		{name: "at quota", activeConditions: 100, expectAllowed: false},
		{name: "over quota", activeConditions: 150, expectAllowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := &Input{
				Condition: &ConditionInput{Type: "block_height", Value: 5000, Target: "0xabc"},
				Registrant: &RegistrantInput{
					Principal:        "alice",
					ActiveConditions: tt.activeConditions,
				},
				Context: &Context{Operation: "register", Timestamp: time.Now()},
			}

			result, err := eng.Evaluate(ctx, input)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if result.Allowed != tt.expectAllowed {
				t.Errorf("allowed = %v, want %v (violations: %+v)",
					result.Allowed, tt.expectAllowed, result.Violations)
			}
		})
	}
}

func TestEvaluateStakeFloor(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	tests := []struct {
		name          string
		staked        uint64
		misses        uint64
		expectAllowed bool
		expectFlagged bool
	}{
		{name: "healthy executor", staked: 1000, expectAllowed: true},
		{name: "at floor", staked: 100, expectAllowed: true},
		{name: "below floor", staked: 50, expectAllowed: false},
		{name: "miss history warns but allows", staked: 1000, misses: 3, expectAllowed: true, expectFlagged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := &Input{
				Executor: &ExecutorInput{Principal: "bob", Staked: tt.staked, Misses: tt.misses},
				Context:  &Context{Operation: "execute", Block: 500, Timestamp: time.Now()},
			}

			result, err := eng.Evaluate(ctx, input)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if result.Allowed != tt.expectAllowed {
				t.Errorf("allowed = %v, want %v (violations: %+v)",
					result.Allowed, tt.expectAllowed, result.Violations)
			}
			if tt.expectFlagged && len(result.Violations) == 0 {
				t.Error("expected a warning violation for miss history")
			}
		})
	}
}

func TestEvaluateTargetAddress(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	tests := []struct {
		name          string
		target        string
		expectAllowed bool
	}{
		{name: "hex address", target: "0xdeadbeef", expectAllowed: true},
		{name: "missing prefix", target: "deadbeef", expectAllowed: false},
		{name: "non-hex", target: "0xzz", expectAllowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := &Input{
				Condition:  &ConditionInput{Type: "timestamp", Value: 100, Target: tt.target},
				Registrant: &RegistrantInput{Principal: "alice"},
				Context:    &Context{Operation: "register", Timestamp: time.Now()},
			}

			result, err := eng.Evaluate(ctx, input)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if result.Allowed != tt.expectAllowed {
				t.Errorf("allowed = %v, want %v (violations: %+v)",
					result.Allowed, tt.expectAllowed, result.Violations)
			}
		})
	}
}

func TestExecutionRateWarnsOnly(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	input := &Input{
		Registrant: &RegistrantInput{Principal: "alice", ExecutionsToday: 1500},
		Executor:   &ExecutorInput{Principal: "bob", Staked: 1000},
		Context:    &Context{Operation: "execute", Timestamp: time.Now()},
	}

	result, err := eng.Evaluate(ctx, input)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("warning-severity policy blocked request: %+v", result.Violations)
	}
	found := false
	for _, v := range result.Violations {
		if v.Policy == "execution-rate" {
			found = true
		}
	}
	if !found {
		t.Error("expected an execution-rate violation")
	}
}

func TestDisablePolicy(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	if err := eng.DisablePolicy("stake-floor"); err != nil {
		t.Fatalf("DisablePolicy() error = %v", err)
	}

	input := &Input{
		Executor: &ExecutorInput{Principal: "bob", Staked: 1},
		Context:  &Context{Operation: "execute", Timestamp: time.Now()},
	}

	result, err := eng.Evaluate(ctx, input)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("disabled policy still blocked request: %+v", result.Violations)
	}

	if err := eng.EnablePolicy("stake-floor"); err != nil {
		t.Fatalf("EnablePolicy() error = %v", err)
	}

	result, err = eng.Evaluate(ctx, input)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Allowed {
		t.Error("re-enabled policy did not block request")
	}

	if err := eng.DisablePolicy("no-such-policy"); err == nil {
		t.Error("DisablePolicy() on unknown name did not fail")
	}
}

func TestGetPolicy(t *testing.T) {
	eng := testEngine(t)

	p, err := eng.GetPolicy("condition-quota")
	if err != nil {
		t.Fatalf("GetPolicy() error = %v", err)
	}
	if p.Severity != SeverityError {
		t.Errorf("severity = %s, want %s", p.Severity, SeverityError)
	}

	if _, err := eng.GetPolicy("missing"); err == nil {
		t.Error("GetPolicy() on unknown name did not fail")
	}
}
