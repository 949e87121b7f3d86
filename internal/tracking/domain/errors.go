package domain

import "errors"

var (
	// ErrEmptyDriverID marks a report without a driver identity; such reports are dropped.
	ErrEmptyDriverID = errors.New("driver id is required")
	// ErrInvalidTopic is returned for unknown topic kinds or missing topic ids.
	ErrInvalidTopic = errors.New("invalid topic")
	// ErrDriverNotFound is returned when no position record exists for a driver.
	ErrDriverNotFound = errors.New("driver not found")
	// ErrUnknownEvent is returned for wire events the service does not handle.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrInvalidPayload is returned when an event payload cannot be decoded.
	ErrInvalidPayload = errors.New("invalid payload")
)
