package scanner

import "fmt"

// UnknownAdapterError reports a configured adapter id that neither the
// caller overrides nor the registry could resolve.
type UnknownAdapterError struct {
	ID string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("scanner: unknown adapter %q", e.ID)
}

// AlreadySubscribedError reports a second subscription for the same adapter id.
type AlreadySubscribedError struct {
	ID string
}

func (e *AlreadySubscribedError) Error() string {
	return fmt.Sprintf("scanner: already subscribed to %q", e.ID)
}

// AdapterIDMismatchError reports a configured adapter whose own ID differs
// from the id it was configured under.
type AdapterIDMismatchError struct {
	ID        string
	AdapterID string
}

func (e *AdapterIDMismatchError) Error() string {
	return fmt.Sprintf("scanner: adapter configured as %q reports id %q", e.ID, e.AdapterID)
}
