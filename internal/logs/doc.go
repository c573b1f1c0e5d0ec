// Package logs reads daemon log files incrementally for the CLI's tail
// view.
package logs
