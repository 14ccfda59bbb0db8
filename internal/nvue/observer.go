package nvue

// Observer follows the progress of transactions. The client calls it
// synchronously from the goroutine running the transaction, so implementations
// shared between concurrent transactions must do their own locking.
type Observer interface {
	RevisionCreated(revisionID string)
	RevisionPatched(revisionID string)
	ApplyRequested(revisionID string, force bool)
	// ApplyPolled is called after every poll; attempt starts at 1.
	ApplyPolled(revisionID string, attempt int, state string)
	// ApplyFinished is called once polling stops.
	ApplyFinished(revisionID string, state RevisionState, polls int)
	RequestFailed(op Operation, err error)
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) RevisionCreated(string) {}
func (NopObserver) RevisionPatched(string) {}
func (NopObserver) ApplyRequested(string, bool) {}
func (NopObserver) ApplyPolled(string, int, string) {}
func (NopObserver) ApplyFinished(string, RevisionState, int) {}
func (NopObserver) RequestFailed(Operation, error) {}

// MultiObserver fans events out to several observers in order
type MultiObserver []Observer

func (m MultiObserver) RevisionCreated(id string) {
	for _, o := range m {
		o.RevisionCreated(id)
	}
}

func (m MultiObserver) RevisionPatched(id string) {
	for _, o := range m {
		o.RevisionPatched(id)
	}
}

func (m MultiObserver) ApplyRequested(id string, force bool) {
	for _, o := range m {
		o.ApplyRequested(id, force)
	}
}

func (m MultiObserver) ApplyPolled(id string, attempt int, state string) {
	for _, o := range m {
		o.ApplyPolled(id, attempt, state)
	}
}

func (m MultiObserver) ApplyFinished(id string, state RevisionState, polls int) {
	for _, o := range m {
		o.ApplyFinished(id, state, polls)
	}
}

func (m MultiObserver) RequestFailed(op Operation, err error) {
	for _, o := range m {
		o.RequestFailed(op, err)
	}
}
