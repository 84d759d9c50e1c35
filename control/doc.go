// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime control surface for hioload-ipc: configuration store with reload
// listeners, metrics registry, debug probes, and TOML config loading.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads and merged updates
//   - Synchronous reload listeners
//   - Named runtime metrics
//   - Debug hooks and probe registration
//
// The adapters package composes these primitives into the api.Control
// contract; the facade publishes dispatch-loop statistics through them.
package control
