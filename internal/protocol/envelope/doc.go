// Package envelope owns the page<->host wire shapes.
//
// Ownership boundary:
// - method enumeration
// - outbound envelope encoding (large-integer degradation)
// - inbound classification into validated replies
package envelope
