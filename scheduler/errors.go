package scheduler

import "errors"

// ErrNotFound is returned by Get/Update/Remove for an unknown schedule id.
var ErrNotFound = errors.New("scheduler: schedule not found")
