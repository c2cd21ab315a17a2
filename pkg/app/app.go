// Package app models the robot "application": a toy command/state model
// that sits on the other side of the composition root's SubmitCh/
// CommitBlock/GetSnapshot/Restore contract.
package app

import (
	"github.com/mosaicnetworks/robot/pkg/store"
)

// Proxy is the contract the composition root drives the application
// through, mirroring proxy.AppProxy generalized from hashgraph.Block to
// store.Block. The composition root, not the application, is
// responsible for keying snapshots by the hash of the block whose
// execution produced them, since only the composition root knows that
// hash.
type Proxy interface {
	// SubmitCh is the channel on which the application offers new
	// commands for the node to propose.
	SubmitCh() chan []byte

	// CommitBlock applies b's command and returns a snapshot of the
	// resulting state.
	CommitBlock(b store.Block) ([]byte, error)

	// GetSnapshot returns a snapshot of the application's current
	// state, for seeding the state ring's genesis entry.
	GetSnapshot() ([]byte, error)

	// Restore replaces application state from a previously taken
	// snapshot.
	Restore(snapshot []byte) error
}
