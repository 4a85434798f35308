package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lcaswell/driftwood/internal/control"
)

// NewStopCmd creates the stop subcommand.
func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running server",
		Long:  `Ask the running driftwood server to shut down gracefully.`,
		RunE:  runStop,
	}
}

func runStop(cmd *cobra.Command, _ []string) error {
	socketPath := control.SocketPath()
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return fmt.Errorf("could not issue command, the server may not be running")
	}

	client := createUnixHTTPClient(socketPath)

	resp, err := client.Post("http://localhost/shutdown", "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to request shutdown: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var shutdown control.ShutdownResponse
	if err := json.NewDecoder(resp.Body).Decode(&shutdown); err != nil {
		return fmt.Errorf("failed to decode shutdown response: %w", err)
	}

	cmd.Println(shutdown.Message)
	return nil
}
