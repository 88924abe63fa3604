package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/LittleBoy9/peerbeam/internal/config"
	"github.com/LittleBoy9/peerbeam/internal/identity"
	"github.com/LittleBoy9/peerbeam/internal/logging"
	"github.com/LittleBoy9/peerbeam/internal/mesh"
	"github.com/LittleBoy9/peerbeam/internal/rtc"
	"github.com/LittleBoy9/peerbeam/internal/signaling"
	"github.com/LittleBoy9/peerbeam/internal/ui"
)

var (
	flagRoomsServer  string
	flagRoomsTimeout time.Duration
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the active rooms on the relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(slog.LevelWarn)
		return runRooms()
	},
}

func runRooms() error {
	cfg, err := config.Load(config.Options{ServerURL: flagRoomsServer})
	if err != nil {
		return err
	}

	coord := mesh.New(identity.New(""), signaling.NewWS(cfg.ServerURL), rtc.NewPionDialer(cfg))
	defer coord.Leave()

	ctx, cancel := context.WithTimeout(context.Background(), flagRoomsTimeout)
	defer cancel()

	stop := ui.RunSpinner("Fetching rooms from " + cfg.ServerURL + "...")
	rooms, err := coord.Rooms(ctx)
	stop()
	if err != nil {
		return err
	}

	ui.RenderRoomsTable(rooms)
	return nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)

	roomsCmd.Flags().StringVarP(&flagRoomsServer, "server", "s", "", "Relay websocket URL")
	roomsCmd.Flags().DurationVar(&flagRoomsTimeout, "timeout", 5*time.Second, "How long to wait for the listing")
}
