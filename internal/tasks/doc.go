// Package tasks owns task definitions and per-day completion marks.
//
// It is the single writer in front of the schedule engine: every mutation is
// validated here (bounds, parseable times, no dependency cycles) so the engine
// only ever has to degrade on data written by older versions or edited by hand.
package tasks
