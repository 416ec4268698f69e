package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/workq/internal/client"
)

var wpCmd = &cobra.Command{
	Use:     "wp",
	Aliases: []string{"work-package"},
	Short:   "List, show, and create work packages",
	GroupID: "work",
}

var wpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List work packages matching ad hoc filters",
	Long: `List work packages using the default query with the given overrides.

Filters take the form "<field> <operator> [values...]":

  wq wp list --where "status o" --where "assignee = me"
  wq wp list --where "dueDate <>d 2024-03-01 2024-03-31" --sort dueDate:asc
  wq wp list --where "dueDate t-7" --group-by status --sums
  wq wp list --filter 'priority = "3"' --order-by "updatedAt desc"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := runRequestFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		if req.ProjectID == nil {
			if p := projectOrDefault(0); p > 0 {
				req.ProjectID = &p
			}
		}
		res, err := api.ListWorkPackages(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		return printCollection(cmd.OutOrStdout(), res)
	},
}

var wpShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a work package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		wp, err := api.GetWorkPackage(cmd.Context(), id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), wp)
		}
		printWorkPackage(cmd.OutOrStdout(), wp)
		return nil
	},
}

var wpCreateCmd = &cobra.Command{
	Use:   "create <subject>",
	Short: "Create a work package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.CreateWorkPackageRequest{Subject: args[0]}
		project, _ := cmd.Flags().GetInt64("project")
		if req.ProjectID = projectOrDefault(project); req.ProjectID <= 0 {
			return fmt.Errorf("--project is required when the active remote has no default project")
		}
		req.TypeID, _ = cmd.Flags().GetInt64("type")
		req.StatusID, _ = cmd.Flags().GetInt64("status")
		req.Description, _ = cmd.Flags().GetString("description")
		req.StartDate, _ = cmd.Flags().GetString("start")
		req.DueDate, _ = cmd.Flags().GetString("due")
		req.DoneRatio, _ = cmd.Flags().GetInt("done")

		if cmd.Flags().Changed("priority") {
			v, _ := cmd.Flags().GetInt64("priority")
			req.PriorityID = &v
		}
		if cmd.Flags().Changed("assignee") {
			v, _ := cmd.Flags().GetInt64("assignee")
			req.AssignedToID = &v
		}
		if cmd.Flags().Changed("parent") {
			v, _ := cmd.Flags().GetInt64("parent")
			req.ParentID = &v
		}
		if cmd.Flags().Changed("estimate") {
			v, _ := cmd.Flags().GetFloat64("estimate")
			req.EstimatedHours = &v
		}

		cfs, _ := cmd.Flags().GetStringArray("custom")
		for _, kv := range cfs {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return fmt.Errorf("invalid custom field %q (expected cf_<id>=value)", kv)
			}
			if req.CustomFields == nil {
				req.CustomFields = make(map[string]string)
			}
			req.CustomFields[k] = v
		}

		wp, err := api.CreateWorkPackage(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), wp)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created work package %d\n", wp.ID)
		return nil
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func init() {
	addRunFlags(wpListCmd.Flags())

	wpCreateCmd.Flags().Int64("project", 0, "project id (default: the active remote's project)")
	wpCreateCmd.Flags().Int64("type", 1, "type id")
	wpCreateCmd.Flags().Int64("status", 1, "status id")
	wpCreateCmd.Flags().Int64("priority", 0, "priority id")
	wpCreateCmd.Flags().Int64("assignee", 0, "assignee user id")
	wpCreateCmd.Flags().Int64("parent", 0, "parent work package id")
	wpCreateCmd.Flags().StringP("description", "d", "", "description")
	wpCreateCmd.Flags().String("start", "", "start date (YYYY-MM-DD)")
	wpCreateCmd.Flags().String("due", "", "due date (YYYY-MM-DD)")
	wpCreateCmd.Flags().Float64("estimate", 0, "estimated hours")
	wpCreateCmd.Flags().Int("done", 0, "percentage done")
	wpCreateCmd.Flags().StringArray("custom", nil, "custom field value cf_<id>=value (repeatable)")

	wpCmd.AddCommand(wpListCmd)
	wpCmd.AddCommand(wpShowCmd)
	wpCmd.AddCommand(wpCreateCmd)
}
