package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Principal is the principal the violation concerns.
	Principal string `json:"principal,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at"`
}

// Result represents the outcome of evaluating all policies for one request.
type Result struct {
	// Allowed indicates if the operation may proceed.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block the request.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// ConditionInput describes the condition a request concerns.
type ConditionInput struct {
	// ID is the condition identifier, zero for a registration not yet assigned one.
	ID uint64 `json:"id"`

	// Type is the trigger type.
	Type string `json:"type"`

	// Value is the trigger threshold.
	Value uint64 `json:"value"`

	// Target is the callback address.
	Target string `json:"target"`

	// Repeatable indicates the condition re-arms after execution.
	Repeatable bool `json:"repeatable"`
}

// RegistrantInput carries per-registrant aggregates for quota policies.
type RegistrantInput struct {
	// Principal is the registrant identity.
	Principal string `json:"principal"`

	// ActiveConditions counts this registrant's non-terminal conditions.
	ActiveConditions int `json:"active_conditions"`

	// ExecutionsToday counts executions recorded for this registrant's
	// conditions since midnight UTC.
	ExecutionsToday int `json:"executions_today"`
}

// ExecutorInput carries the collateral position of the acting executor.
type ExecutorInput struct {
	// Principal is the executor identity.
	Principal string `json:"principal"`

	// Staked is the executor's current stake balance.
	Staked uint64 `json:"staked"`

	// Slashed is the cumulative amount slashed from this executor.
	Slashed uint64 `json:"slashed"`

	// Misses counts adverse challenge resolutions against this executor.
	Misses uint64 `json:"misses"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Operation is the operation being performed (e.g., "register", "execute").
	Operation string `json:"operation"`

	// Block is the chain head height at evaluation time.
	Block uint64 `json:"block"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Environment is the deployment environment (e.g., "production").
	Environment string `json:"environment,omitempty"`

	// Metadata contains additional context metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Input represents the input data for policy evaluation.
type Input struct {
	// Condition is the condition being evaluated, if any.
	Condition *ConditionInput `json:"condition,omitempty"`

	// Registrant carries aggregates about the requesting registrant.
	Registrant *RegistrantInput `json:"registrant,omitempty"`

	// Executor carries the acting executor's collateral position.
	Executor *ExecutorInput `json:"executor,omitempty"`

	// Context provides additional evaluation context.
	Context *Context `json:"context"`
}
