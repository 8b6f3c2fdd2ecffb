package rate

import "errors"

// ErrLimited is returned when a (bucket, origin) pair has exhausted its
// window budget.
var ErrLimited = errors.New("rate limited")

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("rate limiter unavailable")
