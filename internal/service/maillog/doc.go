// Package maillog records every outbound send attempt and its outcome.
//
// Rows are keyed by the correlation id carried in the X-Message-ID header.
// The interceptor writes pending and blocked rows, the transport ack sets
// the synchronous outcome and webhook reconciliation sets the final one.
package maillog
