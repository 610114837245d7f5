package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/httprunner/DeviceScan/internal/env"
)

var rootCmd = &cobra.Command{
	Use:   "devicescan",
	Short: "Discover removable drives, USB boot devices and Android devices",
	Long: `devicescan runs the built-in discovery adapters (standard, usbboot, adb) behind one
scanner, logs every device event and optionally records device state to SQLite or a
Feishu bitable table.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(rootLogLevel, rootJSONLog)
	},
}

var (
	rootLogLevel string
	rootJSONLog  bool
)

func init() {
	_ = env.Ensure()
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", env.String(env.LogLevel, "info"), "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&rootJSONLog, "json-log", false, "write JSON logs instead of console output")
	rootCmd.AddCommand(
		newAdaptersCmd(),
		newScanCmd(),
		newDevicesCmd(),
	)
}

func setupLogger(level string, jsonLog bool) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	if jsonLog {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("devicescan command failed")
	}
}
