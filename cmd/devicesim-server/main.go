package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "devicesim-server",
	Short: "Simulated security-device transaction generator",
	Long: `devicesim-server runs one worker per active device, each emitting a
simulated transaction every few seconds. Devices are toggled over HTTP and
active devices are resumed automatically on restart.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), rootConfigPath)
	},
}

var rootConfigPath string

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", os.Getenv("DEVICESIM_CONFIG"), "path to YAML config file (env DEVICESIM_CONFIG)")
	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("devicesim-server failed")
	}
}
