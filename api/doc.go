// File: api/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api defines the shared, dependency-free contracts of hioload-ipc:
// the library error taxonomy, handler dispositions, cancellation tokens, the
// clock abstraction used for testable timers, and the control/executor/
// shutdown service interfaces implemented by the concrete packages.
//
// Nothing in this package performs work. Implementation packages (ipc,
// dispatch, pump, rpc) depend on api; api depends only on the standard
// library, so any component can be faked against these contracts.
package api
