// File: fake/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Recording pump handler with scriptable outcomes.

package fake

import (
	"sync"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/ipc"
)

// PumpRecorder records every message a pump delivers and answers with a
// configurable result. The zero value keeps listening with no error.
// Handle satisfies pump.Handler and OnError the pump's error callback.
type PumpRecorder struct {
	mu          sync.Mutex
	payloads    [][]byte
	errs        []error
	disposition api.Disposition
	handleErr   error
}

// NewPumpRecorder creates a recorder that continues after each message.
func NewPumpRecorder() *PumpRecorder {
	return &PumpRecorder{}
}

// Handle records the message payload and returns the scripted result.
func (r *PumpRecorder) Handle(m *ipc.Message) (api.Disposition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, append([]byte(nil), m.Bytes...))
	return r.disposition, r.handleErr
}

// OnError records one teardown error.
func (r *PumpRecorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

// SetResult scripts what Handle returns for subsequent messages.
func (r *PumpRecorder) SetResult(d api.Disposition, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposition = d
	r.handleErr = err
}

// Payloads returns a copy of all recorded payloads in delivery order.
func (r *PumpRecorder) Payloads() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.payloads))
	for i, p := range r.payloads {
		out[i] = append([]byte(nil), p...)
	}
	return out
}

// Errors returns a copy of all recorded teardown errors.
func (r *PumpRecorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// Count returns the number of messages recorded so far.
func (r *PumpRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

// ErrorCount returns the number of teardown errors recorded so far.
func (r *PumpRecorder) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}
