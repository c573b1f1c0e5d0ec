// Package transport delivers record batches to the persistence process over
// one of two interchangeable channels: a localhost HTTP daemon (channel A)
// and a native-messaging style framed socket (channel B).
//
// The manager owns channel selection, credential bootstrap, failover, and
// crash-loop detection; callers see a single Send operation. A send failure
// never drops an envelope silently: the error propagates so the flush
// scheduler can requeue and retry on the next cycle.
package transport
