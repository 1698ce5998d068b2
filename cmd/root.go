package cmd

import (
	"fmt"
	"os"

	"fetchrelay/internal/config"
	"fetchrelay/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "fetchrelay",
	Short: "Fetch remote files and persist or relay them",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		logger.Init(debug)

		var err error
		cfg, err = config.Load(cfgPath)
		return err
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", cfg.Port, path)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.fetchrelay/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
}
