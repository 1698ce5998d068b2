package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fetchrelay/internal/daemon"
	"fetchrelay/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transfer daemon",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	srv := daemon.NewServer(d)
	srv.Start()
	d.Start()

	logger.Log.Info("fetchrelay daemon started",
		zap.Int("port", cfg.Port),
		zap.String("public_dir", cfg.PublicDir),
		zap.String("sink", cfg.Sink))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
