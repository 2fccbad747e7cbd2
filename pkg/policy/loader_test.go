package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestLoadFromFileRego(t *testing.T) {
	loader := testLoader()

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "repeatable-only.rego")

	regoContent := `package keeper.policies.custom

# Denies one-shot conditions in this deployment

import rego.v1

deny contains violation if {
	input.condition
	not input.condition.repeatable
	violation := {"message": "one-shot conditions are disabled", "severity": "error"}
}`

	if err := os.WriteFile(policyFile, []byte(regoContent), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "repeatable-only" {
		t.Errorf("Expected name 'repeatable-only', got '%s'", policy.Name)
	}
	if policy.Rego != regoContent {
		t.Error("Rego content doesn't match")
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
	if policy.Description == "" {
		t.Error("Description not extracted from leading comment")
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	loader := testLoader()

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "quota-override.json")

	p := Policy{
		Name:     "quota-override",
		Rego:     "package keeper.policies.override\n\nimport rego.v1\n",
		Severity: SeverityCritical,
		Enabled:  true,
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	if err := os.WriteFile(policyFile, data, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	loaded, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if loaded.Name != "quota-override" || loaded.Severity != SeverityCritical {
		t.Errorf("unexpected policy: %+v", loaded)
	}
	if loaded.CreatedAt.IsZero() {
		t.Error("CreatedAt default not applied")
	}
}

func TestLoadFromPathsDirectory(t *testing.T) {
	loader := testLoader()
	tmpDir := t.TempDir()

	rego := "package keeper.policies.a\n\nimport rego.v1\n"
	if err := os.WriteFile(filepath.Join(tmpDir, "a.rego"), []byte(rego), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policies, err := loader.LoadFromPaths(context.Background(), []string{tmpDir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("loaded %d policies, want 1", len(policies))
	}
	if policies[0].Name != "a" {
		t.Errorf("name = %s, want a", policies[0].Name)
	}
}

func TestLoadedPolicyEnforced(t *testing.T) {
	eng := testEngine(t)
	ctx := context.Background()

	tmpDir := t.TempDir()
	regoContent := `package keeper.policies.custom

import rego.v1

deny contains violation if {
	input.condition
	not input.condition.repeatable
	violation := {"message": "one-shot conditions are disabled", "severity": "error"}
}`
	if err := os.WriteFile(filepath.Join(tmpDir, "repeatable-only.rego"), []byte(regoContent), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if err := eng.LoadPolicies(ctx, []string{tmpDir}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	input := &Input{
		Condition:  &ConditionInput{Type: "block_height", Value: 10, Target: "0xabc", Repeatable: false},
		Registrant: &RegistrantInput{Principal: "alice"},
		Context:    &Context{Operation: "register"},
	}
	result, err := eng.Evaluate(ctx, input)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Allowed {
		t.Error("custom policy did not block one-shot registration")
	}

	input.Condition.Repeatable = true
	result, err = eng.Evaluate(ctx, input)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("repeatable registration blocked: %+v", result.Violations)
	}
}
