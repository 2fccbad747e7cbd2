// Package authz is the role gate consulted by every mutating protocol
// operation. It is a pure predicate layer: it holds role assignments and
// answers yes/no, it never mutates protocol state itself.
package authz

import (
	"fmt"
	"sync"
)

// Gate holds the protocol's role assignments.
//
// Roles:
//   - Owner: single principal, transferable, never empty.
//   - Slasher: delegated arbitration principal; falls back to Owner when unset.
//   - Executors: set membership; the main executor is always present and
//     cannot be revoked.
type Gate struct {
	mu           sync.RWMutex
	owner        string
	slasher      string
	mainExecutor string
	executors    map[string]bool
}

// NewGate creates a gate with the given owner. The owner doubles as the main
// executor until one is designated.
func NewGate(owner string) (*Gate, error) {
	if owner == "" {
		return nil, fmt.Errorf("owner must not be empty")
	}
	return &Gate{
		owner:        owner,
		mainExecutor: owner,
		executors:    map[string]bool{owner: true},
	}, nil
}

// Owner returns the current owner principal.
func (g *Gate) Owner() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner
}

// TransferOwnership moves the owner role to a new principal. Only the current
// owner may transfer, and never to the empty principal. When the main-executor
// seat was never delegated it follows the owner: the old owner loses its
// executor membership along with everything else.
func (g *Gate) TransferOwnership(caller, newOwner string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.owner {
		return fmt.Errorf("only the owner may transfer ownership")
	}
	if newOwner == "" {
		return fmt.Errorf("owner must not be empty")
	}
	if g.mainExecutor == g.owner {
		delete(g.executors, g.owner)
		g.mainExecutor = newOwner
		g.executors[newOwner] = true
	}
	g.owner = newOwner
	return nil
}

// SetSlasher delegates the slasher role. Owner only. An empty principal
// clears the delegation, falling back to the owner.
func (g *Gate) SetSlasher(caller, slasher string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.owner {
		return fmt.Errorf("only the owner may set the slasher")
	}
	g.slasher = slasher
	return nil
}

// SetMainExecutor designates the unrevokable main executor. Owner only.
func (g *Gate) SetMainExecutor(caller, executor string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.owner {
		return fmt.Errorf("only the owner may set the main executor")
	}
	if executor == "" {
		return fmt.Errorf("main executor must not be empty")
	}
	g.mainExecutor = executor
	g.executors[executor] = true
	return nil
}

// AddExecutor authorizes a principal as an executor. Owner only.
func (g *Gate) AddExecutor(caller, executor string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.owner {
		return fmt.Errorf("only the owner may authorize executors")
	}
	if executor == "" {
		return fmt.Errorf("executor must not be empty")
	}
	g.executors[executor] = true
	return nil
}

// RemoveExecutor revokes an executor. Owner only. The main executor cannot
// be revoked.
func (g *Gate) RemoveExecutor(caller, executor string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.owner {
		return fmt.Errorf("only the owner may revoke executors")
	}
	if executor == g.mainExecutor {
		return fmt.Errorf("the main executor cannot be revoked")
	}
	delete(g.executors, executor)
	return nil
}

// IsOwner reports whether the principal holds the owner role.
func (g *Gate) IsOwner(principal string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return principal != "" && principal == g.owner
}

// IsSlasher reports whether the principal may slash: the delegated slasher
// when one is set, the owner always.
func (g *Gate) IsSlasher(principal string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if principal == "" {
		return false
	}
	if principal == g.owner {
		return true
	}
	return g.slasher != "" && principal == g.slasher
}

// IsExecutor reports whether the principal is in the authorized executor set.
// The owner acts as a fallback executor.
func (g *Gate) IsExecutor(principal string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if principal == "" {
		return false
	}
	if principal == g.owner {
		return true
	}
	return g.executors[principal]
}

// Executors returns a snapshot of the authorized executor set.
func (g *Gate) Executors() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.executors))
	for p := range g.executors {
		out = append(out, p)
	}
	return out
}
