package scraper

import "errors"

// ErrNotFound is returned by stores when a job or record does not exist.
var ErrNotFound = errors.New("not found")

// ErrTerminalStatus is returned when a transition out of a terminal job
// status is attempted.
var ErrTerminalStatus = errors.New("job is in a terminal status")
