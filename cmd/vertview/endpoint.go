package main

import (
	"fmt"

	"github.com/aditya/vertview/pkg/rendezvous"
	"github.com/spf13/cobra"
)

var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Show the instance endpoint for this user",
	Long:  `Print the endpoint name, its socket path, and whether a primary instance is listening on it.`,
	Args:  cobra.NoArgs,
	RunE:  runEndpoint,
}

func init() {
	rootCmd.AddCommand(endpointCmd)
}

func runEndpoint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	state := "not running"
	if rendezvous.Alive(cfg.SocketPath()) {
		state = "running"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "name:    %s\n", cfg.EndpointName)
	fmt.Fprintf(out, "socket:  %s\n", cfg.SocketPath())
	fmt.Fprintf(out, "primary: %s\n", state)
	return nil
}
