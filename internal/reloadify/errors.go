package reloadify

import "errors"

var (
	// ErrNotFound is returned by Get and Remove for an unknown id.
	ErrNotFound = errors.New("reloadify: config not found")

	// ErrTypeMismatch is returned when the requested type differs from the
	// type the entry was registered with.
	ErrTypeMismatch = errors.New("reloadify: type mismatch")

	// ErrLoad wraps failures to read the backing file.
	ErrLoad = errors.New("reloadify: load failed")

	// ErrDecode wraps failures to decode the file into the target type.
	ErrDecode = errors.New("reloadify: decode failed")

	// ErrWatch wraps failures to start change detection.
	ErrWatch = errors.New("reloadify: watch failed")

	// ErrAlreadyRegistered is returned when an id is registered again with a
	// different path, format or backend.
	ErrAlreadyRegistered = errors.New("reloadify: id already registered with a different descriptor")

	// ErrInvalidDescriptor is returned by Add when a descriptor fails
	// validation.
	ErrInvalidDescriptor = errors.New("reloadify: invalid descriptor")

	// ErrClosed is returned by Add once the registry has been closed.
	ErrClosed = errors.New("reloadify: registry closed")

	// ErrSubscriptionClosed is returned by Next once the subscription is
	// closed and drained.
	ErrSubscriptionClosed = errors.New("reloadify: subscription closed")

	// ErrDelivery means a value had no receiver. It never leaves the package.
	ErrDelivery = errors.New("reloadify: delivery failed")
)
