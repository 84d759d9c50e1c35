// File: ipc/object.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared machinery for waitable objects: the one-shot watch set that links
// an object's signal transitions to completion ports.
//
// Lock discipline: an object owner calls watchSet methods under its own
// lock, and packet delivery into a port happens on that same path. The port
// never calls back into an object while holding its own lock, so the
// object-then-port order is consistent everywhere and cannot deadlock.

package ipc

// Waitable is implemented by objects a port can watch for signal
// transitions. Only types in this package satisfy it; external code
// consumes waitables, it does not implement them.
type Waitable interface {
	Handle

	// Signals returns the currently asserted signal set.
	Signals() Signals

	watch(p *Port, key uint64, mask Signals) error
	unwatch(key uint64) bool
}

// portWatch is one armed registration.
type portWatch struct {
	port *Port
	mask Signals
}

// watchSet tracks the one-shot registrations of a single object.
// All methods require the owner's lock.
type watchSet struct {
	m map[uint64]portWatch
}

func (ws *watchSet) add(key uint64, p *Port, mask Signals) {
	if ws.m == nil {
		ws.m = make(map[uint64]portWatch)
	}
	ws.m[key] = portWatch{port: p, mask: mask}
}

func (ws *watchSet) remove(key uint64) bool {
	if _, ok := ws.m[key]; !ok {
		return false
	}
	delete(ws.m, key)
	return true
}

// fire delivers a signal packet to every registration whose mask intersects
// observed, consuming those registrations. Registrations whose mask misses
// stay armed.
func (ws *watchSet) fire(observed Signals, count uint64) {
	for key, w := range ws.m {
		if !observed.Has(w.mask) {
			continue
		}
		delete(ws.m, key)
		w.port.deliverSignal(key, observed, count)
	}
}

// clear drops every registration without delivering anything.
func (ws *watchSet) clear() {
	ws.m = nil
}
