package composition

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/robot/pkg/clock"
	"github.com/mosaicnetworks/robot/pkg/store"
)

// Pruner is the composition root's periodic background task: every
// pruneInterval it reads lastExecutedBlockHash, keeps the most recent
// blockHistorySize blocks on its path from the root plus the block just
// before them, which becomes the new root, and prunes everything older.
// The prune is one atomic Badger transaction; the root hash update that
// follows it is a second, separate transaction. It runs against an injectable
// Clock so tests can advance time deterministically, the way the
// dialer's retry scheduler does (pkg/network/dialer.go).
type Pruner struct {
	blocks *store.BlockStore
	views  *store.ViewStore
	keep   int

	clock    clock.Clock
	interval time.Duration
	logger   *logrus.Entry

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	runs int64
}

// Runs reports the number of prune cycles that completed without error.
func (p *Pruner) Runs() int64 {
	return atomic.LoadInt64(&p.runs)
}

// NewPruner constructs a Pruner keeping the last keep blocks on the path
// from root, ticking every interval (measured via c).
func NewPruner(blocks *store.BlockStore, views *store.ViewStore, keep int, interval time.Duration, c clock.Clock, logger *logrus.Entry) *Pruner {
	return &Pruner{
		blocks:   blocks,
		views:    views,
		keep:     keep,
		clock:    c,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the pruner's background loop.
func (p *Pruner) Start() {
	p.wg.Add(1)
	go p.run()
}

func (p *Pruner) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.clock.After(p.interval):
			if err := p.pruneOnce(); err != nil {
				// a failed cycle is simply retried next interval.
				p.logger.WithError(err).Warn("prune cycle failed, will retry")
			} else {
				atomic.AddInt64(&p.runs, 1)
			}
		case <-p.done:
			return
		}
	}
}

// pruneOnce runs a single pruning pass.
func (p *Pruner) pruneOnce() error {
	bundle, err := p.views.GetBundle()
	if err != nil {
		return err
	}

	path, err := p.blocks.PathFromRoot(bundle.LastExecutedBlockHash)
	if err != nil {
		return err
	}

	if len(path) <= p.keep {
		// blockHistorySize >= len(path): no deletions.
		return nil
	}

	pruneable := path[:len(path)-p.keep]
	newRoot := pruneable[len(pruneable)-1]

	if err := p.blocks.PruneNonDescendants(newRoot); err != nil {
		return err
	}
	return p.views.SetRootBlockHash(newRoot)
}

// Stop cancels the pruner's background loop and waits for it to exit.
func (p *Pruner) Stop() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
}
