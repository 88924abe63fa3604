package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LittleBoy9/peerbeam/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the peerbeam version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("peerbeam %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
