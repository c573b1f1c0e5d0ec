// Package pipeline runs the capture loop: normalize arriving payloads,
// drop duplicates, batch the survivors, and flush them downstream on a
// size threshold or a jittered timer. One goroutine owns all pipeline
// state; ingest and control requests cross into it over channels.
package pipeline
