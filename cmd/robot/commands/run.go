package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mosaicnetworks/robot/pkg/app"
	"github.com/mosaicnetworks/robot/pkg/clock"
	"github.com/mosaicnetworks/robot/pkg/composition"
	"github.com/mosaicnetworks/robot/pkg/consensus"
)

// NewRunCmd returns the command that starts a robot node.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runNode,
	}
	AddRunFlags(cmd)
	return cmd
}

// AddRunFlags registers the run command's flags.
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().Int("node-index", _config.NodeIndex, "0-based index of this node within network.nodes (required)")

	cmd.Flags().Duration("network.timeout", _config.Network.Timeout, "Application-level RPC timeout")

	cmd.Flags().Duration("consensus.minTimeout", _config.Consensus.MinTimeout, "Minimum view-timeout")
	cmd.Flags().Duration("consensus.maxTimeout", _config.Consensus.MaxTimeout, "Maximum view-timeout")
	cmd.Flags().Float64("consensus.timeoutFactor", _config.Consensus.TimeoutFactor, "View-timeout backoff factor")

	cmd.Flags().String("db.path", _config.DB.Path, "Base directory for per-node databases")
	cmd.Flags().Int("db.stateHistorySize", _config.DB.StateHistorySize, "Ring capacity for application snapshots")
	cmd.Flags().Int("db.blockHistorySize", _config.DB.BlockHistorySize, "Number of most recent executed blocks kept unpruned")
	cmd.Flags().Duration("db.pruneInterval", _config.DB.PruneInterval, "Pruning cadence")

	cmd.Flags().Int("model.maxRow", _config.Model.MaxRow, "Grid row count for the robot application")
	cmd.Flags().Int("model.maxCol", _config.Model.MaxCol, "Grid column count for the robot application")
	cmd.Flags().Duration("model.simulatedDecisionTime", _config.Model.SimulatedDecisionTime, "Simulated application decision latency")

	_ = cmd.MarkFlagRequired("node-index")
}

func runNode(cmd *cobra.Command, args []string) error {
	if err := _config.Validate(); err != nil {
		return err
	}

	federation, err := _config.BuildFederation()
	if err != nil {
		return fmt.Errorf("building federation: %w", err)
	}

	logger := _config.Logger()

	robot := app.NewRobot(_config.Model.MaxRow, _config.Model.MaxCol, _config.Model.SimulatedDecisionTime, logger.WithField("component", "app"))
	hotstuff := consensus.NewDummyService(logger.WithField("component", "consensus"))

	node, err := composition.New(_config, federation, robot, hotstuff, clock.Real{})
	if err != nil {
		return fmt.Errorf("composition: %w", err)
	}

	done := make(chan struct{})
	go node.Run(done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	close(done)
	node.Release()

	return nil
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := bindFlagsLoadViper(cmd); err != nil {
		return err
	}

	_config.Logger().WithField("node-index", _config.NodeIndex).Debug("RUN")

	return nil
}

// bindFlagsLoadViper registers flags with viper, then layers in a config
// file (<datadir>/robot.toml, .json, .yaml also accepted).
func bindFlagsLoadViper(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	viper.SetConfigName("robot")
	viper.AddConfigPath(_config.DataDir)

	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	return viper.Unmarshal(_config)
}
