package main

import (
	"os"

	"github.com/mosaicnetworks/robot/cmd/robot/commands"
)

func main() {
	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
