package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/workq/internal/authz"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check server health",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := api.Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status)
		return nil
	},
}

var meCmd = &cobra.Command{
	Use:     "me",
	Short:   "Show the user the server authenticates you as",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		me, err := api.Me(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), me)
		}
		if me.Anonymous {
			fmt.Fprintln(cmd.OutOrStdout(), "anonymous")
			return nil
		}
		role := ""
		if me.Admin {
			role = " (admin)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> id=%d%s\n", me.Name(), me.Login, me.ID, role)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:     "token",
	Short:   "Mint a bearer token signed with the server secret",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// Minting is local; it needs the secret, not the server.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			secret = os.Getenv("WORKQ_JWT_SECRET")
		}
		if secret == "" {
			return fmt.Errorf("no secret (use --secret or WORKQ_JWT_SECRET)")
		}
		user, _ := cmd.Flags().GetInt64("user")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		tok, err := authz.IssueToken([]byte(secret), user, ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print the wq version",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// No server needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "wq", version)
	},
}

func init() {
	tokenCmd.Flags().String("secret", "", "signing secret (default: $WORKQ_JWT_SECRET)")
	tokenCmd.Flags().Int64("user", 0, "user id to issue the token for")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}
