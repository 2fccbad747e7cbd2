package authz

import "testing"

func TestNewGate(t *testing.T) {
	if _, err := NewGate(""); err == nil {
		t.Fatal("expected error for empty owner")
	}

	g, err := NewGate("owner")
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	if g.Owner() != "owner" {
		t.Fatalf("got owner %s", g.Owner())
	}
	// The owner starts as the main executor.
	if !g.IsExecutor("owner") {
		t.Fatal("owner should be an executor")
	}
}

func TestTransferOwnership(t *testing.T) {
	g, _ := NewGate("owner")

	if err := g.TransferOwnership("mallory", "mallory"); err == nil {
		t.Fatal("only the owner may transfer")
	}
	if err := g.TransferOwnership("owner", ""); err == nil {
		t.Fatal("ownership may never go empty")
	}
	if err := g.TransferOwnership("owner", "heir"); err != nil {
		t.Fatalf("TransferOwnership: %v", err)
	}
	if !g.IsOwner("heir") || g.IsOwner("owner") {
		t.Fatal("ownership did not move")
	}
	// The old owner lost its implicit powers, the executor seat included.
	if g.IsSlasher("owner") {
		t.Fatal("former owner should not slash")
	}
	if g.IsExecutor("owner") {
		t.Fatal("former owner should not keep the executor seat")
	}
	if !g.IsExecutor("heir") {
		t.Fatal("the undelegated main-executor seat follows the owner")
	}
	if err := g.RemoveExecutor("heir", "heir"); err == nil {
		t.Fatal("the inherited seat stays unrevokable")
	}
}

func TestTransferOwnershipKeepsDelegatedMainExecutor(t *testing.T) {
	g, _ := NewGate("owner")

	if err := g.SetMainExecutor("owner", "keeper-bot"); err != nil {
		t.Fatalf("SetMainExecutor: %v", err)
	}
	if err := g.TransferOwnership("owner", "heir"); err != nil {
		t.Fatalf("TransferOwnership: %v", err)
	}

	// A delegated seat does not move with the ownership.
	if !g.IsExecutor("keeper-bot") {
		t.Fatal("delegated main executor should survive the transfer")
	}
	if err := g.RemoveExecutor("heir", "keeper-bot"); err == nil {
		t.Fatal("delegated main executor stays unrevokable")
	}
}

func TestSlasherDelegation(t *testing.T) {
	g, _ := NewGate("owner")

	// Unset slasher falls back to the owner.
	if !g.IsSlasher("owner") {
		t.Fatal("owner should always slash")
	}
	if g.IsSlasher("arbiter") {
		t.Fatal("arbiter not yet delegated")
	}

	if err := g.SetSlasher("mallory", "mallory"); err == nil {
		t.Fatal("only the owner delegates")
	}
	if err := g.SetSlasher("owner", "arbiter"); err != nil {
		t.Fatalf("SetSlasher: %v", err)
	}
	if !g.IsSlasher("arbiter") {
		t.Fatal("delegated arbiter should slash")
	}
	// Delegation never displaces the owner.
	if !g.IsSlasher("owner") {
		t.Fatal("owner should still slash")
	}

	// Clearing the delegation falls back to the owner alone.
	if err := g.SetSlasher("owner", ""); err != nil {
		t.Fatalf("clear slasher: %v", err)
	}
	if g.IsSlasher("arbiter") {
		t.Fatal("cleared arbiter should not slash")
	}
}

func TestExecutorSet(t *testing.T) {
	g, _ := NewGate("owner")

	if err := g.AddExecutor("mallory", "mallory"); err == nil {
		t.Fatal("only the owner authorizes executors")
	}
	if err := g.AddExecutor("owner", ""); err == nil {
		t.Fatal("empty executor rejected")
	}
	if err := g.AddExecutor("owner", "bob"); err != nil {
		t.Fatalf("AddExecutor: %v", err)
	}
	if !g.IsExecutor("bob") {
		t.Fatal("bob should be an executor")
	}

	if err := g.RemoveExecutor("mallory", "bob"); err == nil {
		t.Fatal("only the owner revokes")
	}
	if err := g.RemoveExecutor("owner", "bob"); err != nil {
		t.Fatalf("RemoveExecutor: %v", err)
	}
	if g.IsExecutor("bob") {
		t.Fatal("bob should be revoked")
	}
}

func TestMainExecutorUnrevokable(t *testing.T) {
	g, _ := NewGate("owner")

	if err := g.SetMainExecutor("owner", "keeper-bot"); err != nil {
		t.Fatalf("SetMainExecutor: %v", err)
	}
	if !g.IsExecutor("keeper-bot") {
		t.Fatal("main executor should be in the set")
	}
	if err := g.RemoveExecutor("owner", "keeper-bot"); err == nil {
		t.Fatal("the main executor cannot be revoked")
	}

	if err := g.SetMainExecutor("owner", ""); err == nil {
		t.Fatal("main executor may never go empty")
	}
	if err := g.SetMainExecutor("mallory", "mallory"); err == nil {
		t.Fatal("only the owner designates the main executor")
	}
}

func TestEmptyPrincipalNeverAuthorized(t *testing.T) {
	g, _ := NewGate("owner")
	if g.IsOwner("") || g.IsSlasher("") || g.IsExecutor("") {
		t.Fatal("the empty principal holds no role")
	}
}
