// Package daemon ties the capture pipeline to its process-level concerns:
// the single-instance lock, the localhost ingest listener, and ordered
// startup and shutdown.
package daemon
