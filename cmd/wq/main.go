// Command wq is the workq CLI: it runs the server and queries it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/workq/internal/client"
	"github.com/alfredjeanlab/workq/internal/ui"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL  string
	token      string
	jsonOutput bool

	api client.Client
)

func defaultServer() string {
	if s := os.Getenv("WORKQ_SERVER"); s != "" {
		return s
	}
	if u := loadActiveRemote().URL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	if s := os.Getenv("WORKQ_TOKEN"); s != "" {
		return s
	}
	return loadActiveRemote().Token
}

var rootCmd = &cobra.Command{
	Use:           "wq <command>",
	Short:         "Query work packages on a workq server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		api = client.NewHTTPClient(serverURL, token)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if api != nil {
			api.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer(), "workq HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaultToken(), "bearer token (default: $WORKQ_TOKEN or the active remote's token)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "work", Title: "Work packages:"},
		&cobra.Group{ID: "queries", Title: "Queries:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Work packages
	rootCmd.AddCommand(wpCmd)
	rootCmd.AddCommand(projectCmd)

	// Queries
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(watchCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(meCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		style := ui.Style{Color: ui.ShouldUseColor(os.Stderr)}
		fmt.Fprintln(os.Stderr, style.Error("Error:"), err)
		os.Exit(1)
	}
}
