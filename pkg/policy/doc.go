// Package policy provides Open Policy Agent (OPA) admission checks for
// protocol requests.
//
// Policies are written in Rego and evaluated before a request reaches the
// state machine. Built-in policies cover registrant condition quotas,
// per-day execution allowances, the executor stake floor, and target
// address validation. Custom .rego or .json policies can be loaded from
// disk and hot-reloaded via the Loader's file watcher.
//
// A request is denied when any enabled policy emits a violation of error
// or critical severity; warning and info violations are reported but do
// not block.
package policy
