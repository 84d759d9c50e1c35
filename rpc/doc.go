// File: rpc/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package rpc layers a request/reply transport over channel message pumps.
//
// A Proxy is the client side: it stamps outgoing calls with transaction
// identifiers, keeps a table of pending response handlers, and routes
// inbound replies back by identifier. Messages whose identifier is the
// no-reply sentinel, or matches no pending call, are unsolicited events
// and go to the event path instead.
//
// A StubController is the server side: it decodes each inbound call and
// hands it to an application-supplied Stub together with a single-use
// Responder when the caller expects a reply. Responders stay valid after
// the dispatch returns and may be moved between goroutines; tearing the
// binding down revokes every outstanding Responder so late replies fail
// with a canceled status instead of touching a dead channel.
//
// Payload encoding above the envelope header is the application's
// business: both controllers treat the byte payload and carried handles
// opaquely.
package rpc
