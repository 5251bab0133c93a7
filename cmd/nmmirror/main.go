package main

import (
	"github.com/AvengeMedia/nmmirror/internal/log"
)

var Version = "dev"

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("socket-dir", "", "Directory for the API socket")

	activateCmd.Flags().StringP("device", "d", "", "Interface to activate on")

	radioCmd.AddCommand(radioWifiCmd, radioWwanCmd)

	rootCmd.AddCommand(versionCmd, serveCmd, statusCmd, watchCmd, checkCmd, radioCmd, activateCmd, deactivateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
