// Package config defines the node's configuration surface: a flat
// mapstructure-tagged struct populated by viper from flags, a config
// file, and defaults, in that precedence order.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mosaicnetworks/robot/pkg/peers"
)

// Default configuration values.
const (
	DefaultLogLevel              = "debug"
	DefaultNetworkTimeout        = 2 * time.Second
	DefaultMinTimeout            = 1 * time.Second
	DefaultMaxTimeout            = 30 * time.Second
	DefaultTimeoutFactor         = 2.0
	DefaultStateHistorySize      = 256
	DefaultBlockHistorySize      = 64
	DefaultPruneInterval         = 10 * time.Second
	DefaultMaxRow                = 10
	DefaultMaxCol                = 10
	DefaultSimulatedDecisionTime = 0
)

// NodeEntry is one entry of network.nodes: an address and public key for
// every federation member, plus the private key when it is the local
// node (selected by NodeIndex).
type NodeEntry struct {
	Address    string `mapstructure:"address"`
	PublicKey  string `mapstructure:"publicKey"`
	PrivateKey string `mapstructure:"privateKey"`
}

// NetworkConfig is the network.* configuration section.
type NetworkConfig struct {
	Nodes   []NodeEntry   `mapstructure:"nodes"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ConsensusConfig is the consensus.* configuration section.
type ConsensusConfig struct {
	MinTimeout    time.Duration `mapstructure:"minTimeout"`
	MaxTimeout    time.Duration `mapstructure:"maxTimeout"`
	TimeoutFactor float64       `mapstructure:"timeoutFactor"`
}

// DBConfig is the db.* configuration section.
type DBConfig struct {
	Path             string        `mapstructure:"path"`
	StateHistorySize int           `mapstructure:"stateHistorySize"`
	BlockHistorySize int           `mapstructure:"blockHistorySize"`
	PruneInterval    time.Duration `mapstructure:"pruneInterval"`
}

// ModelConfig is the model.* configuration section, specific to the
// robot application.
type ModelConfig struct {
	MaxRow                int           `mapstructure:"maxRow"`
	MaxCol                int           `mapstructure:"maxCol"`
	SimulatedDecisionTime time.Duration `mapstructure:"simulatedDecisionTime"`
}

// Config is the top-level node configuration.
type Config struct {
	DataDir   string          `mapstructure:"datadir"`
	LogLevel  string          `mapstructure:"log"`
	NodeIndex int             `mapstructure:"node-index"`
	Network   NetworkConfig   `mapstructure:"network"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	DB        DBConfig        `mapstructure:"db"`
	Model     ModelConfig     `mapstructure:"model"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a Config with every default value set.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:  DefaultDataDir(),
		LogLevel: DefaultLogLevel,
		NodeIndex: -1,
		Network: NetworkConfig{
			Timeout: DefaultNetworkTimeout,
		},
		Consensus: ConsensusConfig{
			MinTimeout:    DefaultMinTimeout,
			MaxTimeout:    DefaultMaxTimeout,
			TimeoutFactor: DefaultTimeoutFactor,
		},
		DB: DBConfig{
			Path:             DefaultDatabaseDir(),
			StateHistorySize: DefaultStateHistorySize,
			BlockHistorySize: DefaultBlockHistorySize,
			PruneInterval:    DefaultPruneInterval,
		},
		Model: ModelConfig{
			MaxRow:                DefaultMaxRow,
			MaxCol:                DefaultMaxCol,
			SimulatedDecisionTime: DefaultSimulatedDecisionTime,
		},
	}
}

// Validate checks the command-line/config invariants: a node index in
// range, and at least one federation node.
func (c *Config) Validate() error {
	if len(c.Network.Nodes) == 0 {
		return fmt.Errorf("config: network.nodes must not be empty")
	}
	if c.NodeIndex < 0 || c.NodeIndex >= len(c.Network.Nodes) {
		return fmt.Errorf("config: node-index %d out of range [0,%d)", c.NodeIndex, len(c.Network.Nodes))
	}
	return nil
}

// NodeDataDir returns the per-node database directory, <db.path>/<nodeIndex>/.
func (c *Config) NodeDataDir() string {
	return filepath.Join(c.DB.Path, fmt.Sprintf("%d", c.NodeIndex))
}

// LocalAddress returns the bind address of the local node.
func (c *Config) LocalAddress() peers.PeerAddress {
	return peers.PeerAddress(c.Network.Nodes[c.NodeIndex].Address)
}

// Logger returns a formatted logrus Entry, with prefix set to "robot".
// In addition to the console, debug and info lines are duplicated to
// per-level log files under the node's data directory.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		c.addFileHooks()
	}
	return c.logger.WithField("prefix", "robot")
}

func (c *Config) addFileHooks() {
	pathMap := lfshook.PathMap{}

	debugPath := filepath.Join(c.NodeDataDir(), "robot_debug.log")
	if err := os.MkdirAll(filepath.Dir(debugPath), 0755); err == nil {
		if _, err := os.OpenFile(debugPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err == nil {
			pathMap[logrus.DebugLevel] = debugPath
		}
	}

	infoPath := filepath.Join(c.NodeDataDir(), "robot_info.log")
	if _, err := os.OpenFile(infoPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err == nil {
		pathMap[logrus.InfoLevel] = infoPath
	}

	if len(pathMap) > 0 {
		c.logger.Hooks.Add(lfshook.NewHook(pathMap, &logrus.TextFormatter{}))
	}
}

// DefaultDatabaseDir returns the default base directory for the Badger
// database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), "badger_db")
}

// DefaultDataDir returns the default top-level data directory, following
// standard OS conventions for a per-user application data path.
func DefaultDataDir() string {
	home := HomeDir()
	if home != "" {
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, ".Robot")
		case "windows":
			return filepath.Join(home, "AppData", "Roaming", "Robot")
		default:
			return filepath.Join(home, ".robot")
		}
	}
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a logrus level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
