package store

import (
	"sync"

	"github.com/dgraph-io/badger"

	"github.com/mosaicnetworks/robot/pkg/wire"
)

// Phase is a HotStuff protocol phase.
type Phase int

const (
	PhasePrepare Phase = iota
	PhasePreCommit
	PhaseCommit
)

// QuorumCertificate is (phase, viewNumber, blockHash, aggregateSignature).
type QuorumCertificate struct {
	Phase               Phase
	ViewNumber          uint64
	BlockHash           Hash
	AggregateSignature []byte
}

// EmptyAggregateSignature is used when seeding the genesis bundle, which
// has no real quorum behind it.
var EmptyAggregateSignature = []byte{}

// ViewStateBundle is the single persisted consensus checkpoint.
type ViewStateBundle struct {
	ViewNumber            uint64
	PrepareQC             QuorumCertificate
	LockedQC              QuorumCertificate
	CommitQC              QuorumCertificate
	RootBlockHash         Hash
	LastExecutedBlockHash Hash
}

const viewStateKey = "bundle"

// ViewStore is the persisted {viewNumber, prepareQC, lockedQC,
// commitQC, rootBlockHash, lastExecutedBlockHash} checkpoint.
type ViewStore struct {
	db *DB
	mu sync.Mutex // serializes the read-modify-write in mutate
}

// NewViewStore wraps db.
func NewViewStore(db *DB) *ViewStore {
	return &ViewStore{db: db}
}

// EnsureGenesisBundle seeds a genesis bundle if none is persisted yet:
// viewNumber=0, all three QCs = (Prepare, 0, genesis.hash, empty
// signature), rootBlockHash = lastExecutedBlockHash = genesis.hash.
func (s *ViewStore) EnsureGenesisBundle(genesisHash Hash) error {
	_, err := s.GetBundle()
	if err == nil {
		return nil
	}
	if !Is(err, KeyNotFound) {
		return err
	}

	qc := QuorumCertificate{Phase: PhasePrepare, ViewNumber: 0, BlockHash: genesisHash, AggregateSignature: EmptyAggregateSignature}
	bundle := ViewStateBundle{
		ViewNumber:            0,
		PrepareQC:             qc,
		LockedQC:              qc,
		CommitQC:              qc,
		RootBlockHash:         genesisHash,
		LastExecutedBlockHash: genesisHash,
	}
	return s.setBundle(bundle)
}

// GetBundle returns the persisted bundle.
func (s *ViewStore) GetBundle() (ViewStateBundle, error) {
	var bundle ViewStateBundle
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nsKey(nsViewState, []byte(viewStateKey)))
		if err != nil {
			return NewErr(KeyNotFound, viewStateKey)
		}
		var raw []byte
		if err := item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		return wire.Decode(raw, &bundle)
	})
	return bundle, err
}

func (s *ViewStore) setBundle(bundle ViewStateBundle) error {
	raw, err := wire.Encode(bundle)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nsKey(nsViewState, []byte(viewStateKey)), raw)
	})
}

// SetViewNumber atomically updates the persisted view number.
func (s *ViewStore) SetViewNumber(v uint64) error {
	return s.mutate(func(b *ViewStateBundle) { b.ViewNumber = v })
}

// SetRootBlockHash atomically updates the persisted root block hash.
func (s *ViewStore) SetRootBlockHash(h Hash) error {
	return s.mutate(func(b *ViewStateBundle) { b.RootBlockHash = h })
}

// SetLastExecutedBlockHash atomically updates the persisted last executed
// block hash.
func (s *ViewStore) SetLastExecutedBlockHash(h Hash) error {
	return s.mutate(func(b *ViewStateBundle) { b.LastExecutedBlockHash = h })
}

// SetPrepareQC atomically updates the persisted prepare QC.
func (s *ViewStore) SetPrepareQC(qc QuorumCertificate) error {
	return s.mutate(func(b *ViewStateBundle) { b.PrepareQC = qc })
}

// SetLockedQC atomically updates the persisted locked QC.
func (s *ViewStore) SetLockedQC(qc QuorumCertificate) error {
	return s.mutate(func(b *ViewStateBundle) { b.LockedQC = qc })
}

// SetCommitQC atomically updates the persisted commit QC.
func (s *ViewStore) SetCommitQC(qc QuorumCertificate) error {
	return s.mutate(func(b *ViewStateBundle) { b.CommitQC = qc })
}

func (s *ViewStore) mutate(fn func(*ViewStateBundle)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bundle, err := s.GetBundle()
	if err != nil {
		return err
	}
	fn(&bundle)
	return s.setBundle(bundle)
}
