// Package correlator runs one request/response round trip per Invoke: mint a
// nonce, send the envelope through the transport selector, and settle on the
// first inbound reply carrying that nonce or on timeout.
package correlator
