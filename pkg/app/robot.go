package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/robot/pkg/store"
	"github.com/mosaicnetworks/robot/pkg/wire"
)

// Command is a single instruction understood by Robot: one of the four
// directions, each moving the robot one cell within the grid.
type Command byte

const (
	CommandUp    Command = 'U'
	CommandDown  Command = 'D'
	CommandLeft  Command = 'L'
	CommandRight Command = 'R'
)

// Position is the robot's location on the grid.
type Position struct {
	Row int
	Col int
}

// robotWire is the serialized snapshot format.
type robotWire struct {
	Row int
	Col int
}

// Robot is a toy command/state model bounded by a maxRow x maxCol grid.
// Commands are reduced incrementally into a bounded 2D robot position
// whose snapshots are opaque byte blobs handed to the caller rather than
// kept in an app-owned map: the state ring is the sole place snapshots
// live.
type Robot struct {
	mu  sync.Mutex
	pos Position

	maxRow int
	maxCol int

	simulatedDecisionTime time.Duration

	submitCh chan []byte

	logger *logrus.Entry
}

// NewRobot constructs a Robot bounded by maxRow x maxCol, starting at the
// origin. simulatedDecisionTime models the time the application takes to
// decide on its next command before offering it on SubmitCh.
func NewRobot(maxRow, maxCol int, simulatedDecisionTime time.Duration, logger *logrus.Entry) *Robot {
	return &Robot{
		maxRow:                maxRow,
		maxCol:                maxCol,
		simulatedDecisionTime: simulatedDecisionTime,
		submitCh:              make(chan []byte),
		logger:                logger,
	}
}

// SubmitCh returns the channel the node drains to propose new commands.
func (r *Robot) SubmitCh() chan []byte {
	return r.submitCh
}

// Offer enqueues cmd on SubmitCh after simulating decision time, for use
// by a driver loop or by tests.
func (r *Robot) Offer(cmd Command) {
	if r.simulatedDecisionTime > 0 {
		time.Sleep(r.simulatedDecisionTime)
	}
	r.submitCh <- []byte{byte(cmd)}
}

// CommitBlock applies b.Command (a single Command byte, ignored if
// empty — the genesis block carries none) and returns a snapshot of the
// resulting state for the caller to persist.
func (r *Robot) CommitBlock(b store.Block) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(b.Command) > 0 {
		if err := r.apply(Command(b.Command[0])); err != nil {
			return nil, err
		}
	}

	r.logger.WithFields(logrus.Fields{"row": r.pos.Row, "col": r.pos.Col}).Debug("robot commit")

	return r.snapshot()
}

func (r *Robot) apply(cmd Command) error {
	next := r.pos
	switch cmd {
	case CommandUp:
		next.Row--
	case CommandDown:
		next.Row++
	case CommandLeft:
		next.Col--
	case CommandRight:
		next.Col++
	default:
		return fmt.Errorf("robot: unknown command %q", byte(cmd))
	}

	if next.Row < 0 || next.Row >= r.maxRow || next.Col < 0 || next.Col >= r.maxCol {
		// command would move the robot off the grid; ignored, state
		// unchanged.
		return nil
	}

	r.pos = next
	return nil
}

// GetSnapshot returns a snapshot of the robot's current state.
func (r *Robot) GetSnapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Restore installs snapshot as the current state.
func (r *Robot) Restore(snapshot []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var w robotWire
	if err := wire.Decode(snapshot, &w); err != nil {
		return err
	}
	r.pos = Position{Row: w.Row, Col: w.Col}
	return nil
}

// Position returns the robot's current location, for tests.
func (r *Robot) Position() Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

func (r *Robot) snapshot() ([]byte, error) {
	return wire.Encode(robotWire{Row: r.pos.Row, Col: r.pos.Col})
}
