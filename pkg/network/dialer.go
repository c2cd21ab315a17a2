package network

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/robot/pkg/clock"
	"github.com/mosaicnetworks/robot/pkg/transport"
)

// RetryPolicy is the exponential backoff policy for dial attempts (the
// consensus.{minTimeout,maxTimeout,timeoutFactor} configuration reuses
// this same shape for view timeouts).
type RetryPolicy struct {
	Initial time.Duration
	Factor  float64
	Max     time.Duration
}

// DefaultRetryPolicy returns the standard dial backoff schedule.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Initial: 500 * time.Millisecond, Factor: 2, Max: 30 * time.Second}
}

// delay computes min(initial * factor^(failureCount+1), max).
func (p RetryPolicy) delay(failureCount int) time.Duration {
	d := float64(p.Initial)
	for i := 0; i <= failureCount; i++ {
		d *= p.Factor
	}
	if d > float64(p.Max) {
		return p.Max
	}
	return time.Duration(d)
}

// Dialer is the dialer loop: it pops connection requests off a queue
// and attempts to establish a connection, rescheduling with backoff on
// failure.
type Dialer struct {
	provider transport.Provider
	register *Register
	dialQ    *unboundedQueue[ConnectionRequest]
	offerCh  chan<- *transport.Connection
	policy   RetryPolicy
	clock    clock.Clock
	logger   *logrus.Entry

	attempts int64
}

// Attempts reports the total number of dial attempts made so far,
// successful or not, for Manager.Stats.
func (d *Dialer) Attempts() int64 {
	return atomic.LoadInt64(&d.attempts)
}

func newDialer(provider transport.Provider, register *Register, dialQ *unboundedQueue[ConnectionRequest], offerCh chan<- *transport.Connection, policy RetryPolicy, c clock.Clock, logger *logrus.Entry) *Dialer {
	return &Dialer{provider: provider, register: register, dialQ: dialQ, offerCh: offerCh, policy: policy, clock: c, logger: logger}
}

// run is the dialer's main loop. Dial attempts are serialized (a single
// concurrent dial at a time) but each failed attempt's retry timer runs in
// its own goroutine, so one unreachable peer never delays another's retry
// schedule.
func (d *Dialer) run(done <-chan struct{}) {
	for {
		req, ok := d.dialQ.Pop(done)
		if !ok {
			return
		}

		if _, live := d.register.Get(req.Key); live {
			continue
		}

		atomic.AddInt64(&d.attempts, 1)
		conn, err := d.provider.ConnectTo(req.Key, req.Address)
		if err != nil {
			d.logger.WithFields(logrus.Fields{"peer": req.Key.String(), "address": req.Address, "failures": req.FailureCount}).
				WithError(err).Debug("dial failed, scheduling retry")
			d.scheduleRetry(req, done)
			continue
		}

		if existing, inserted := d.register.RegisterIfAbsent(conn); !inserted {
			d.logger.WithField("peer", req.Key.String()).Debug("glare: incumbent connection wins, closing dialed connection")
			_ = existing
			conn.Close()
			continue
		}

		select {
		case d.offerCh <- conn:
		case <-done:
			return
		}
	}
}

func (d *Dialer) scheduleRetry(req ConnectionRequest, done <-chan struct{}) {
	delay := d.policy.delay(req.FailureCount)
	next := ConnectionRequest{Key: req.Key, Address: req.Address, FailureCount: req.FailureCount + 1}

	go func() {
		select {
		case <-d.clock.After(delay):
			d.dialQ.Push(next)
		case <-done:
		}
	}()
}
