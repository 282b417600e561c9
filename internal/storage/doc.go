// Package storage persists task definitions, completion marks and notifier
// dedup state.
//
// The schedule engine never touches it: callers load a snapshot, compute, and
// write mutations back through Store.
package storage
