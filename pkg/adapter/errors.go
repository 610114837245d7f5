package adapter

// ScanError is the error a Poller emits when a scan pass fails. It keeps the
// message of the underlying error and records which adapter produced it.
type ScanError struct {
	Adapter string
	Err     error
}

func (e *ScanError) Error() string { return e.Err.Error() }

func (e *ScanError) Unwrap() error { return e.Err }
