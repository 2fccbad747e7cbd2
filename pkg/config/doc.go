// Package config holds the daemon configuration and declarative condition
// manifests.
//
// The daemon configuration is YAML, decoded on top of DefaultConfig and
// validated with struct tags. Condition manifests are CUE files declaring
// conditions to register in bulk; the CLI's register command accepts them
// via -f. A file watcher supports hot-reload of runtime-tunable parameters
// in serve mode.
package config
