// Package consensus describes the feeding contract between the
// composition root and the HotStuff protocol state machine. The state
// machine itself is an external collaborator (out of scope); this
// package only models what the composition hands it on startup and what
// it hands back as executed decisions.
package consensus

import (
	"github.com/mosaicnetworks/robot/pkg/store"
)

// InitialState is the protocol state fed to the HotStuff service on
// startup.
type InitialState struct {
	ViewNumber    uint64
	Phase         store.Phase
	PrepareQC     store.QuorumCertificate
	LockedQC      store.QuorumCertificate
	CommitQC      store.QuorumCertificate
	PreparedBlock store.Block
}

// Decision is an executed block handed back by the protocol state
// machine once it reaches a Commit quorum for it.
type Decision struct {
	Block store.Block
	Hash  store.Hash
}

// Service is the interface the composition root drives: feed it an
// InitialState at startup, and drain Decisions as the protocol commits
// blocks. A real implementation runs the three-phase HotStuff rounds;
// this package only names the boundary.
type Service interface {
	// Start begins driving rounds from the given initial state. It
	// must not block.
	Start(initial InitialState) error

	// Decisions returns the channel of executed blocks, in commit
	// order.
	Decisions() <-chan Decision

	// Stop releases any resources held by the service.
	Stop() error
}
