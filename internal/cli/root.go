// Package cli wires the peerbeam subcommands.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/LittleBoy9/peerbeam/internal/ui"
	"github.com/LittleBoy9/peerbeam/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "peerbeam",
	Short: "Peer-to-peer mesh text chat over WebRTC data channels",
	Long: `Peerbeam is a terminal chat where every participant talks to every other
one directly over encrypted WebRTC data channels. A rendezvous path is only
used to find each other: a relay server, an in-process bus, or copy-paste
tokens for two peers with no server at all. Once the mesh is up, messages
never touch anything but the wire between the peers.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
