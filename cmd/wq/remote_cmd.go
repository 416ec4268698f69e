package main

import (
	"fmt"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/workq/internal/ui"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named server remotes",
	GroupID: "system",
	// Remote subcommands only touch the local state file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or update a named remote; the first one added becomes active",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		serverURL, err := normalizeServerURL(args[1])
		if err != nil {
			return err
		}
		r := Remote{URL: serverURL}
		r.Token, _ = cmd.Flags().GetString("token")
		r.NATSURL, _ = cmd.Flags().GetString("nats")
		r.Project, _ = cmd.Flags().GetInt64("project")

		err = updateRemotes(func(cfg *RemotesConfig) error {
			cfg.Remotes[name] = r
			if cfg.Active == "" {
				cfg.Active = name
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q added (%s)\n", name, serverURL)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := updateRemotes(func(cfg *RemotesConfig) error {
			if _, ok := cfg.Remotes[name]; !ok {
				return fmt.Errorf("remote %q not found", name)
			}
			delete(cfg.Remotes, name)
			if cfg.Active == name {
				cfg.Active = ""
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", name)
		return nil
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := updateRemotes(func(cfg *RemotesConfig) error {
			if _, ok := cfg.Remotes[name]; !ok {
				return fmt.Errorf("remote %q not found", name)
			}
			cfg.Active = name
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "active remote set to %q\n", name)
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		if len(cfg.Remotes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no remotes configured")
			return nil
		}
		names := make([]string, 0, len(cfg.Remotes))
		for name := range cfg.Remotes {
			names = append(names, name)
		}
		slices.Sort(names)

		t := &ui.Table{Headers: []string{"name", "url", "token", "project"}}
		for _, name := range names {
			r := cfg.Remotes[name]
			label := "  " + name
			if name == cfg.Active {
				label = "* " + name
			}
			project := ""
			if r.Project > 0 {
				project = strconv.FormatInt(r.Project, 10)
			}
			t.Append(label, r.URL, maskToken(r.Token), project)
		}
		return t.Render(cmd.OutOrStdout(), outputStyle())
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show details for a remote (defaults to active)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		name := cfg.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no active remote; specify a name or run 'wq remote use <name>'")
		}
		r, ok := cfg.Remotes[name]
		if !ok {
			return fmt.Errorf("remote %q not found", name)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		active := ""
		if name == cfg.Active {
			active = " (active)"
		}
		fmt.Fprintf(w, "name:\t%s%s\n", name, active)
		fmt.Fprintf(w, "url:\t%s\n", r.URL)
		if r.Token != "" {
			fmt.Fprintf(w, "token:\t%s\n", maskToken(r.Token))
		}
		if r.NATSURL != "" {
			fmt.Fprintf(w, "nats_url:\t%s\n", r.NATSURL)
		}
		if r.Project > 0 {
			fmt.Fprintf(w, "project:\t%d\n", r.Project)
		}
		return w.Flush()
	},
}

func init() {
	remoteAddCmd.Flags().String("token", "", "bearer token for authentication")
	remoteAddCmd.Flags().String("nats", "", "NATS URL for change events")
	remoteAddCmd.Flags().Int64("project", 0, "default project id for this remote")

	remoteCmd.AddCommand(remoteAddCmd)
	remoteCmd.AddCommand(remoteRemoveCmd)
	remoteCmd.AddCommand(remoteListCmd)
	remoteCmd.AddCommand(remoteUseCmd)
	remoteCmd.AddCommand(remoteShowCmd)
}
