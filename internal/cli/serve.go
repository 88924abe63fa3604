package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LittleBoy9/peerbeam/internal/config"
	"github.com/LittleBoy9/peerbeam/internal/logging"
	"github.com/LittleBoy9/peerbeam/internal/relay"
	"github.com/LittleBoy9/peerbeam/internal/version"
)

var flagServeListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rendezvous relay",
	Long: `Run the relay that server-transport chats use to find each other and
negotiate connections. The relay only ever sees signaling traffic; messages
travel peer to peer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(slog.LevelInfo)
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load(config.Options{ListenAddr: flagServeListen})
	if err != nil {
		return err
	}

	registry := relay.NewRegistry()
	go registry.Run()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: relay.NewRouter(registry),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("relay listening", "addr", cfg.ListenAddr, "version", version.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		registry.Stop()
		return err
	case <-quit:
	}

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		registry.Stop()
		return fmt.Errorf("shutdown: %w", err)
	}
	registry.Stop()
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagServeListen, "listen", "l", "", "Listen address (default :8080)")
}
