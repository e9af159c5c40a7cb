// Package transport delivers serialized envelopes to the embedding host.
//
// Ownership boundary:
// - channel capabilities (host bridge, parent frame)
// - per-send channel selection
// - inbound pumps feeding the shared inbox
package transport
