// Package composition wires the transport, connection manager, and
// storage layers together into a running node and drives the
// background pruner: provider, then connection manager, then the three
// KV-backed stores seeded with genesis, then the consensus/application
// services fed a recovered initial state, then the pruner.
//
// It is a composition root that acquires its dependencies in sequence
// and tears them down in reverse on any failure.
package composition

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/robot/pkg/app"
	"github.com/mosaicnetworks/robot/pkg/clock"
	"github.com/mosaicnetworks/robot/pkg/config"
	"github.com/mosaicnetworks/robot/pkg/consensus"
	"github.com/mosaicnetworks/robot/pkg/network"
	"github.com/mosaicnetworks/robot/pkg/peers"
	"github.com/mosaicnetworks/robot/pkg/store"
	"github.com/mosaicnetworks/robot/pkg/transport"
)

// Node is the fully wired composition of a BFT consensus node.
type Node struct {
	cfg        *config.Config
	federation *peers.Federation
	logger     *logrus.Entry

	provider transport.Provider
	manager  *network.Manager

	db      *store.DB
	blocks  *store.BlockStore
	views   *store.ViewStore
	ring    *store.StateRing

	appProxy app.Proxy
	hotstuff consensus.Service
	pruner   *Pruner

	mu      sync.Mutex
	running bool
}

// New acquires every transport and storage resource in sequence and
// feeds the application/consensus services a recovered initial state.
// On any failure it tears down whatever it already acquired, in
// reverse order, and returns the error.
func New(cfg *config.Config, federation *peers.Federation, appProxy app.Proxy, hotstuff consensus.Service, c clock.Clock) (*Node, error) {
	logger := cfg.Logger()
	n := &Node{cfg: cfg, federation: federation, logger: logger, appProxy: appProxy, hotstuff: hotstuff}

	local := federation.Self()

	// step 1: encrypted provider bound to the local node's address
	provider, err := transport.NewTLSProvider(string(local.Address), local.Address, local.PrivateKey, logger.WithField("component", "provider"))
	if err != nil {
		return nil, fmt.Errorf("composition: provider: %w", err)
	}
	n.provider = provider

	// step 2: connection manager, dial queue seeded with every peer but self
	policy := network.DefaultRetryPolicy()
	n.manager = network.NewManager(provider, federation, policy, c, logger.WithField("component", "manager"))

	// step 3: open the KV store at <db.path>/<nodeIndex>/
	db, err := store.Open(cfg.NodeDataDir())
	if err != nil {
		n.teardown(failStepProvider)
		return nil, fmt.Errorf("composition: open store: %w", err)
	}
	n.db = db

	genesisBlock := store.NewGenesisBlock(store.Hash{})
	genesisHash, err := genesisBlock.Hash()
	if err != nil {
		n.teardown(failStepStore)
		return nil, fmt.Errorf("composition: hash genesis block: %w", err)
	}

	// step 4: block store, genesis inserted (idempotent)
	n.blocks = store.NewBlockStore(db)
	if err := n.blocks.Put(genesisBlock); err != nil {
		n.teardown(failStepStore)
		return nil, fmt.Errorf("composition: insert genesis block: %w", err)
	}

	// step 5: view state store, genesis bundle ensured
	n.views = store.NewViewStore(db)
	if err := n.views.EnsureGenesisBundle(genesisHash); err != nil {
		n.teardown(failStepStore)
		return nil, fmt.Errorf("composition: ensure genesis bundle: %w", err)
	}

	// step 6: bounded state ring, genesis snapshot bypassing the ring
	ring, err := store.NewStateRing(db, cfg.DB.StateHistorySize)
	if err != nil {
		n.teardown(failStepStore)
		return nil, fmt.Errorf("composition: open state ring: %w", err)
	}
	n.ring = ring

	genesisSnapshot, err := appProxy.GetSnapshot()
	if err != nil {
		n.teardown(failStepStore)
		return nil, fmt.Errorf("composition: get genesis snapshot: %w", err)
	}
	if err := n.ring.PutGenesis(genesisHash, genesisSnapshot); err != nil {
		n.teardown(failStepStore)
		return nil, fmt.Errorf("composition: insert genesis snapshot: %w", err)
	}

	// step 7: load the persisted bundle, fetch the prepared block
	bundle, err := n.views.GetBundle()
	if err != nil {
		n.teardown(failStepStore)
		return nil, fmt.Errorf("composition: load view bundle: %w", err)
	}
	preparedBlock, err := n.blocks.Get(bundle.PrepareQC.BlockHash)
	if err != nil {
		// a missing prepared block is unrecoverable storage corruption.
		n.teardown(failStepStore)
		return nil, fmt.Errorf("composition: missing prepared block %s: %w", bundle.PrepareQC.BlockHash, err)
	}

	// step 8: start application + consensus services with the recovered
	// initial state: view number advances past the persisted one, and
	// phase resets to Prepare.
	initial := consensus.InitialState{
		ViewNumber:    bundle.ViewNumber + 1,
		Phase:         store.PhasePrepare,
		PrepareQC:     bundle.PrepareQC,
		LockedQC:      bundle.LockedQC,
		CommitQC:      bundle.CommitQC,
		PreparedBlock: preparedBlock,
	}
	if err := n.hotstuff.Start(initial); err != nil {
		n.teardown(failStepStore)
		return nil, fmt.Errorf("composition: start consensus service: %w", err)
	}

	n.manager.Start()

	// step 9: pruner
	n.pruner = NewPruner(n.blocks, n.views, cfg.DB.BlockHistorySize, cfg.DB.PruneInterval, c, logger.WithField("component", "pruner"))
	n.pruner.Start()

	n.running = true

	return n, nil
}

type failStep int

const (
	failStepProvider failStep = iota
	failStepStore
)

// teardown releases whatever was acquired before a given step failed, in
// reverse order of acquisition.
func (n *Node) teardown(from failStep) {
	if from >= failStepStore && n.db != nil {
		n.db.Close()
	}
	if n.provider != nil {
		n.provider.Close()
	}
}

// Decisions returns the channel of executed blocks from the consensus
// service, for a driver loop to commit into the application and stores.
func (n *Node) Decisions() <-chan consensus.Decision {
	return n.hotstuff.Decisions()
}

// Commit applies an executed decision: stores the block, commits it to
// the application, records the resulting snapshot keyed by the block's
// own hash, and advances the view-state bookkeeping the pruner and
// recovery path depend on.
func (n *Node) Commit(d consensus.Decision) error {
	if err := n.blocks.Put(d.Block); err != nil {
		return err
	}

	snapshot, err := n.appProxy.CommitBlock(d.Block)
	if err != nil {
		return err
	}

	if err := n.ring.Put(d.Hash, snapshot); err != nil {
		return err
	}

	return n.views.SetLastExecutedBlockHash(d.Hash)
}

// Messages exposes the connection manager's inbound stream, for a
// protocol driver to consume.
func (n *Node) Messages() <-chan network.InboundMessage {
	return n.manager.Messages()
}

// Run drains executed decisions from the consensus service and commits
// each one, until done is closed. It is the glue between the
// composition root and the external HotStuff collaborator's Decisions
// channel.
func (n *Node) Run(done <-chan struct{}) {
	for {
		select {
		case d, ok := <-n.Decisions():
			if !ok {
				return
			}
			if err := n.Commit(d); err != nil {
				n.logger.WithError(err).Error("failed to commit executed decision")
			}
		case <-done:
			return
		}
	}
}

// Send frames v to key's live connection, if any.
func (n *Node) Send(key peers.PeerKey, v interface{}) error {
	return n.manager.Send(key, v)
}

// Stats is a point-in-time snapshot of the node's running counters, for
// an operator status surface. There is no HTTP/UI exposing it.
type Stats struct {
	DialAttempts      int64
	MessagesDelivered int64
	PruneRuns         int64
}

// Stats reports the node's connection manager and pruner counters.
func (n *Node) Stats() Stats {
	netStats := n.manager.Stats()
	return Stats{
		DialAttempts:      netStats.DialAttempts,
		MessagesDelivered: netStats.MessagesDelivered,
		PruneRuns:         n.pruner.Runs(),
	}
}

// Release tears down every acquired resource in reverse order: pruner,
// consensus service, connection manager, KV store, provider.
func (n *Node) Release() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return
	}
	n.running = false

	n.pruner.Stop()
	n.hotstuff.Stop()
	n.manager.Release()
	n.db.Close()
	n.provider.Close()
}
