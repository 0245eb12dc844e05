package cli

import (
	"github.com/spf13/cobra"

	"github.com/sesm/sesm/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "sesm",
	Short: "Short-term episodic memory that hardens into knowledge",
	Long: "sesm keeps an in-process memory of events. Events fade after their ttl " +
		"unless mentioned again soon enough, in which case they become knowledge.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig loads configuration and applies the --url flag if given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("url"); f != nil && f.Changed {
		cfg.Client.URL = f.Value.String()
	}
	return cfg, nil
}
