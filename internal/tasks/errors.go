package tasks

import "errors"

var (
	ErrNotFound = errors.New("task not found")
	ErrInvalid  = errors.New("invalid task")
	ErrCycle    = errors.New("dependency would create a cycle")
	ErrExists   = errors.New("task id already exists")
)
