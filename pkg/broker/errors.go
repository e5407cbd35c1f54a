package broker

import "errors"

// Not-found errors.
var (
	// ErrMissingKey indicates the key has no current value.
	ErrMissingKey = errors.New("missing key")

	// ErrUnknownChannel indicates a read-only lookup of a channel that
	// was never created.
	ErrUnknownChannel = errors.New("unknown channel")
)

// Conflict errors. The caller must re-read and retry.
var (
	// ErrKeyConflict indicates the key already has a current or pending value.
	ErrKeyConflict = errors.New("key already exists")

	// ErrInactiveVersion indicates the version given is not the current one.
	ErrInactiveVersion = errors.New("inactive version")
)

// Validation errors, returned before anything is mutated.
var (
	ErrBadSubscriptionType = errors.New("bad subscription type")
	ErrBadSubscriptionURL  = errors.New("bad subscription url")
	ErrBadChannelName      = errors.New("bad channel name")
	ErrBadVersion          = errors.New("new messages must have version 1")
	ErrEmptyKey            = errors.New("key must not be empty")
)

var (
	// ErrRateLimited is returned by write hooks that throttle a node.
	ErrRateLimited = errors.New("rate limited")

	// ErrClosed indicates the broker has been shut down.
	ErrClosed = errors.New("broker closed")
)
