package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/workq/internal/client"
	"github.com/alfredjeanlab/workq/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Short:   "List and create projects",
	GroupID: "work",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects visible to you",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := api.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), projects)
		}
		if len(projects) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no projects")
			return nil
		}
		t := &ui.Table{Headers: []string{"id", "identifier", "name", "public", "parent"}, MaxCell: maxCell()}
		for _, p := range projects {
			public, parent := "", ""
			if p.Public {
				public = "yes"
			}
			if p.ParentID != nil {
				parent = strconv.FormatInt(*p.ParentID, 10)
			}
			t.Append(strconv.FormatInt(p.ID, 10), p.Identifier, p.Name, public, parent)
		}
		return t.Render(cmd.OutOrStdout(), outputStyle())
	},
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <identifier> <name>",
	Short: "Create a project (admin only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.CreateProjectRequest{Identifier: args[0], Name: args[1]}
		req.Description, _ = cmd.Flags().GetString("description")
		req.Public, _ = cmd.Flags().GetBool("public")
		if cmd.Flags().Changed("parent") {
			v, _ := cmd.Flags().GetInt64("parent")
			req.ParentID = &v
		}
		p, err := api.CreateProject(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), p)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created project %d (%s)\n", p.ID, p.Identifier)
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().StringP("description", "d", "", "description")
	projectCreateCmd.Flags().Bool("public", false, "visible to non-members")
	projectCreateCmd.Flags().Int64("parent", 0, "parent project id")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectCreateCmd)
}
