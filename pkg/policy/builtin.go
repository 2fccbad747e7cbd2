package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		conditionQuotaPolicy(),
		executionRatePolicy(),
		stakeFloorPolicy(),
		targetAddressPolicy(),
	}
}

// conditionQuotaPolicy caps the number of live conditions per registrant.
func conditionQuotaPolicy() Policy {
	return Policy{
		Name:        "condition-quota",
		Description: "Caps the number of non-terminal conditions a single registrant may hold",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"quota", "registration"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package keeper.policies.quota

import rego.v1

# Maximum live conditions per registrant
max_conditions := 100

deny contains violation if {
	input.context.operation == "register"
	input.registrant

	input.registrant.active_conditions >= max_conditions

	violation := {
		"message": sprintf("Registrant %s already holds %d conditions (limit %d)",
			[input.registrant.principal, input.registrant.active_conditions, max_conditions]),
		"severity": "error",
		"principal": input.registrant.principal,
	}
}`,
	}
}

// executionRatePolicy flags registrants whose conditions fire unusually often.
func executionRatePolicy() Policy {
	return Policy{
		Name:        "execution-rate",
		Description: "Warns when a registrant's conditions execute more than the daily allowance",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"rate", "execution"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package keeper.policies.rate

import rego.v1

# Executions per registrant per UTC day before flagging
max_executions_per_day := 1000

deny contains violation if {
	input.context.operation == "execute"
	input.registrant

	input.registrant.executions_today >= max_executions_per_day

	violation := {
		"message": sprintf("Registrant %s reached %d executions today (allowance %d)",
			[input.registrant.principal, input.registrant.executions_today, max_executions_per_day]),
		"severity": "warning",
		"principal": input.registrant.principal,
	}
}`,
	}
}

// stakeFloorPolicy blocks executors whose remaining stake is too thin to
// back the fraud-proof game.
func stakeFloorPolicy() Policy {
	return Policy{
		Name:        "stake-floor",
		Description: "Blocks executions by executors whose remaining stake is below the floor",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"collateral", "execution"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package keeper.policies.stake

import rego.v1

# Minimum stake an executor must retain to keep executing
stake_floor := 100

deny contains violation if {
	input.context.operation == "execute"
	input.executor

	input.executor.staked < stake_floor

	violation := {
		"message": sprintf("Executor %s holds %d stake, below the floor of %d",
			[input.executor.principal, input.executor.staked, stake_floor]),
		"severity": "error",
		"principal": input.executor.principal,
	}
}

# Flag executors with a miss history even when above the floor
deny contains violation if {
	input.context.operation == "execute"
	input.executor

	input.executor.misses >= 3

	violation := {
		"message": sprintf("Executor %s has %d adverse resolutions on record",
			[input.executor.principal, input.executor.misses]),
		"severity": "warning",
		"principal": input.executor.principal,
	}
}`,
	}
}

// targetAddressPolicy enforces the callback address shape at registration.
func targetAddressPolicy() Policy {
	return Policy{
		Name:        "target-address",
		Description: "Requires condition targets to be 0x-prefixed hex addresses",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"validation", "registration"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package keeper.policies.target

import rego.v1

deny contains violation if {
	input.context.operation == "register"
	input.condition

	not regex.match("^0x[0-9a-fA-F]+$", input.condition.target)

	violation := {
		"message": sprintf("Target address '%s' is not a 0x-prefixed hex address", [input.condition.target]),
		"severity": "error",
	}
}`,
	}
}
