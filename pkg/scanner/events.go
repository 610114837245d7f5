package scanner

import "github.com/httprunner/DeviceScan/pkg/adapter"

// Event is one of Results, Error, Start, Stop, Subscribe or Unsubscribe.
type Event interface {
	eventSealed()
}

// Results carries an adapter's results payload unchanged.
type Results struct {
	Payload any
}

// Error carries an adapter's operational error unchanged.
type Error struct {
	Err error
}

// Start is emitted once all subscribed adapters were asked to start.
type Start struct{}

// Stop is emitted once all started adapters were stopped and detached.
type Stop struct{}

// Subscribe is emitted when an adapter joins the subscription set.
type Subscribe struct {
	ID      string
	Adapter adapter.Adapter
}

// Unsubscribe is emitted when an adapter leaves the subscription set.
type Unsubscribe struct {
	ID string
}

func (Results) eventSealed()     {}
func (Error) eventSealed()       {}
func (Start) eventSealed()       {}
func (Stop) eventSealed()        {}
func (Subscribe) eventSealed()   {}
func (Unsubscribe) eventSealed() {}
