package session

import "errors"

// ErrPreconditionFailed is returned when a command's state precondition does
// not hold (e.g. Pause while already paused, any mutation after the session
// ended). Surfaced to the caller as a rejected command, never retried.
var ErrPreconditionFailed = errors.New("precondition failed")

// ErrUnauthorized is returned when the caller's role lacks permission for
// the requested command. Never retried.
var ErrUnauthorized = errors.New("unauthorized")

// ErrLeaseNotHeld is returned when a tick arrives from a client that is not
// the current authority lease holder. Callers drop it silently.
var ErrLeaseNotHeld = errors.New("authority lease not held")

// ErrBusy is returned when a command's CAS retry budget is exhausted; the
// caller should re-fetch and re-decide.
var ErrBusy = errors.New("session busy")

// ErrUnavailable is returned when the state store or the membership backend
// cannot be reached. Clients fall back to their last known state until the
// dependency recovers.
var ErrUnavailable = errors.New("store unavailable")
