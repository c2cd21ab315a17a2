package composition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mosaicnetworks/robot/pkg/app"
	"github.com/mosaicnetworks/robot/pkg/clock"
	"github.com/mosaicnetworks/robot/pkg/config"
	"github.com/mosaicnetworks/robot/pkg/consensus"
	"github.com/mosaicnetworks/robot/pkg/crypto"
	"github.com/mosaicnetworks/robot/pkg/peers"
	"github.com/mosaicnetworks/robot/pkg/store"
)

func buildSingleNodeConfig(t *testing.T) (*config.Config, *peers.Federation) {
	t.Helper()

	priv, err := crypto.GenerateKey()
	assert.Nil(t, err)

	cfg := config.NewDefaultConfig()
	cfg.DB.Path = t.TempDir()
	cfg.NodeIndex = 0
	cfg.Network.Nodes = []config.NodeEntry{{Address: "127.0.0.1:0"}}
	cfg.DB.StateHistorySize = 8
	cfg.DB.BlockHistorySize = 8

	key := peers.NewPeerKey(&priv.PublicKey)
	members := []peers.Member{{Key: key, Address: "127.0.0.1:0", PrivateKey: priv}}
	fed, err := peers.NewFederation(members, key)
	assert.Nil(t, err)

	return cfg, fed
}

func TestNewRecoversGenesisStateAndStartsConsensus(t *testing.T) {
	assert := assert.New(t)

	cfg, fed := buildSingleNodeConfig(t)
	dummy := consensus.NewDummyService(discardLogger())
	robot := app.NewRobot(5, 5, 0, discardLogger())

	n, err := New(cfg, fed, robot, dummy, clock.NewFake())
	assert.Nil(err)
	defer n.Release()

	genesis := store.NewGenesisBlock(store.Hash{})
	genesisHash, err := genesis.Hash()
	assert.Nil(err)

	initial := dummy.Initial()
	assert.Equal(uint64(1), initial.ViewNumber)
	assert.Equal(store.PhasePrepare, initial.Phase)
	assert.Equal(genesisHash, initial.PrepareQC.BlockHash)

	preparedHash, err := initial.PreparedBlock.Hash()
	assert.Nil(err)
	assert.Equal(genesisHash, preparedHash)
}

func TestNewIsRecoverableAcrossRestarts(t *testing.T) {
	assert := assert.New(t)

	cfg, fed := buildSingleNodeConfig(t)
	dummy1 := consensus.NewDummyService(discardLogger())
	robot1 := app.NewRobot(5, 5, 0, discardLogger())

	n1, err := New(cfg, fed, robot1, dummy1, clock.NewFake())
	assert.Nil(err)
	n1.Release()

	dummy2 := consensus.NewDummyService(discardLogger())
	robot2 := app.NewRobot(5, 5, 0, discardLogger())

	n2, err := New(cfg, fed, robot2, dummy2, clock.NewFake())
	assert.Nil(err)
	defer n2.Release()

	assert.Equal(uint64(1), dummy2.Initial().ViewNumber)
}

func TestCommitPersistsBlockAndAdvancesLastExecuted(t *testing.T) {
	assert := assert.New(t)

	cfg, fed := buildSingleNodeConfig(t)
	dummy := consensus.NewDummyService(discardLogger())
	robot := app.NewRobot(5, 5, 0, discardLogger())

	n, err := New(cfg, fed, robot, dummy, clock.NewFake())
	assert.Nil(err)

	genesis := store.NewGenesisBlock(store.Hash{})
	genesisHash, err := genesis.Hash()
	assert.Nil(err)

	b := store.Block{ParentHash: genesisHash, Command: []byte{byte(app.CommandDown)}}
	h, err := b.Hash()
	assert.Nil(err)

	assert.Nil(n.Commit(consensus.Decision{Block: b, Hash: h}))
	n.Release()

	db, err := store.Open(cfg.NodeDataDir())
	assert.Nil(err)
	defer db.Close()

	views := store.NewViewStore(db)
	bundle, err := views.GetBundle()
	assert.Nil(err)
	assert.Equal(h, bundle.LastExecutedBlockHash)

	blocks := store.NewBlockStore(db)
	assert.True(blocks.Contains(h))
}

func TestRunDrainsDecisionsAndCommitsThemInOrder(t *testing.T) {
	assert := assert.New(t)

	cfg, fed := buildSingleNodeConfig(t)
	dummy := consensus.NewDummyService(discardLogger())
	robot := app.NewRobot(5, 5, 0, discardLogger())

	n, err := New(cfg, fed, robot, dummy, clock.NewFake())
	assert.Nil(err)

	done := make(chan struct{})
	go n.Run(done)

	genesis := store.NewGenesisBlock(store.Hash{})
	genesisHash, err := genesis.Hash()
	assert.Nil(err)

	b := store.Block{ParentHash: genesisHash, Command: []byte{byte(app.CommandRight)}}
	h, err := b.Hash()
	assert.Nil(err)

	dummy.Deliver(consensus.Decision{Block: b, Hash: h})

	assert.Eventually(func() bool {
		return robot.Position() == app.Position{Row: 0, Col: 1}
	}, 2*time.Second, 10*time.Millisecond)

	close(done)
	n.Release()
}

func TestStatsReportsPruneRuns(t *testing.T) {
	assert := assert.New(t)

	cfg, fed := buildSingleNodeConfig(t)
	cfg.DB.PruneInterval = time.Minute
	dummy := consensus.NewDummyService(discardLogger())
	robot := app.NewRobot(5, 5, 0, discardLogger())

	fc := clock.NewFake()
	n, err := New(cfg, fed, robot, dummy, fc)
	assert.Nil(err)
	defer n.Release()

	fc.Advance(time.Minute)

	assert.Eventually(func() bool {
		return n.Stats().PruneRuns >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewFailsAndTearsDownOnBadAddress(t *testing.T) {
	assert := assert.New(t)

	cfg, fed := buildSingleNodeConfig(t)
	self := fed.Self()
	fed, err := peers.NewFederation([]peers.Member{{Key: self.Key, Address: "not-a-valid-address", PrivateKey: self.PrivateKey}}, self.Key)
	assert.Nil(err)

	dummy := consensus.NewDummyService(discardLogger())
	robot := app.NewRobot(5, 5, 0, discardLogger())

	_, err = New(cfg, fed, robot, dummy, clock.NewFake())
	assert.Error(err)
}
