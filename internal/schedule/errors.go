package schedule

import "errors"

// ErrNilSnapshot is returned when the caller passes no task snapshot at all.
var ErrNilSnapshot = errors.New("schedule: nil snapshot")
