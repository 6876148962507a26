package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "autoportal",
		Short:         "Keep a machine online behind an HTTP captive portal",
		Long:          "autoportal detects the campus captive portal, logs in with stored credentials and verifies that real internet access follows. Without a subcommand it runs the daemon in the foreground.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(false)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to configuration file (YAML)")

	root.AddCommand(
		newRunCmd(),
		newSetupCmd(),
		newUpdateCredentialsCmd(),
		newStatusCmd(),
		newHealthCmd(),
		newLogoutCmd(),
		newServiceCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "run",
		Short:  "Run the daemon (used by the OS service)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(true)
		},
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "autoportal.yaml"
	}
	return home + "/.config/autoportal/config.yaml"
}
