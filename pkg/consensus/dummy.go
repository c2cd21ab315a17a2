package consensus

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DummyService is a minimal Service used to exercise the composition
// root in tests and in the absence of a real HotStuff implementation:
// it accepts whatever initial state it is given and never commits on its
// own, leaving callers free to drive Decisions directly in tests.
type DummyService struct {
	mu        sync.Mutex
	started   bool
	initial   InitialState
	decisions chan Decision
	logger    *logrus.Entry
}

// NewDummyService constructs a DummyService.
func NewDummyService(logger *logrus.Entry) *DummyService {
	return &DummyService{
		decisions: make(chan Decision, 16),
		logger:    logger,
	}
}

// Start records the initial state and marks the service running.
func (d *DummyService) Start(initial InitialState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initial = initial
	d.started = true
	d.logger.WithField("viewNumber", initial.ViewNumber).Debug("consensus service started")
	return nil
}

// Decisions returns the channel of executed blocks.
func (d *DummyService) Decisions() <-chan Decision {
	return d.decisions
}

// Deliver injects a Decision, as a stand-in for a real commit. Intended
// for tests driving the composition root end to end.
func (d *DummyService) Deliver(dec Decision) {
	d.decisions <- dec
}

// Stop closes the decisions channel.
func (d *DummyService) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		close(d.decisions)
		d.started = false
	}
	return nil
}

// Initial returns the InitialState most recently passed to Start, for
// assertions in tests.
func (d *DummyService) Initial() InitialState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initial
}
