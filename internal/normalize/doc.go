// Package normalize converts raw feed payloads into canonical records.
//
// The upstream schema is unversioned and shifts without notice, so the
// normalizer is built to degrade instead of fail: known endpoints resolve
// their instructions array through a static path table, unknown shapes fall
// back to a depth-bounded search, and every per-entry failure is contained
// and counted rather than propagated. The package performs no I/O and keeps
// no state between calls.
package normalize
