package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/workq/internal/client"
	"github.com/alfredjeanlab/workq/internal/query"
	"github.com/alfredjeanlab/workq/internal/ui"
)

var queryCmd = &cobra.Command{
	Use:     "query",
	Aliases: []string{"q"},
	Short:   "Manage and run saved queries",
	GroupID: "queries",
}

var queryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved queries visible to you",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		queries, err := api.ListQueries(cmd.Context(), projectFlag(cmd))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), queries)
		}
		return printQueryList(cmd.OutOrStdout(), queries)
	},
}

var queryShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved query definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		q, err := api.GetQuery(cmd.Context(), id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), q)
		}
		printQuery(cmd.OutOrStdout(), q)
		return nil
	},
}

var queryDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Show the default query",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := api.DefaultQuery(cmd.Context(), projectFlag(cmd))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), q)
		}
		printQuery(cmd.OutOrStdout(), q)
		return nil
	},
}

var queryRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run a saved query, optionally with overrides",
	Long: `Run a saved query. Override flags replace the stored definition for
this run only; use "wq query update" to change the saved query.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		req, err := runRequestFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		res, err := api.RunQuery(cmd.Context(), id, req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		return printCollection(cmd.OutOrStdout(), res)
	},
}

var querySaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a new query",
	Long: `Save a query built from the same flags "wq wp list" accepts.

  wq query save "My open work" --open --mine --sort dueDate:asc
  wq query save "Team board" --project 3 --group-by status --public`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := transportFromFlags(cmd, args[0])
		if err != nil {
			return err
		}
		saved, err := api.CreateQuery(cmd.Context(), t)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), saved)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved query %d (%s)\n", saved.ID, saved.Name)
		return nil
	},
}

var queryUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Rename, publish, star, or redisplay a saved query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		patch := map[string]any{}
		if cmd.Flags().Changed("name") {
			patch["name"], _ = cmd.Flags().GetString("name")
		}
		if cmd.Flags().Changed("public") {
			patch["public"], _ = cmd.Flags().GetBool("public")
		}
		if cmd.Flags().Changed("starred") {
			patch["starred"], _ = cmd.Flags().GetBool("starred")
		}
		if cmd.Flags().Changed("display") {
			patch["displayRepresentation"], _ = cmd.Flags().GetString("display")
		}
		if len(patch) == 0 {
			return fmt.Errorf("nothing to update (use --name, --public, --starred, or --display)")
		}
		updated, err := api.UpdateQuery(cmd.Context(), id, patch)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), updated)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated query %d\n", updated.ID)
		return nil
	},
}

var queryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := api.DeleteQuery(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted query %d\n", id)
		return nil
	},
}

var querySchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "List queryable fields and their operators",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := api.QuerySchema(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), schema)
		}
		return printSchema(cmd, schema)
	},
}

func printSchema(cmd *cobra.Command, schema *client.Schema) error {
	t := &ui.Table{Headers: []string{"field", "name", "type", "operators", "sort", "group", "sum"}, MaxCell: maxCell()}
	mark := func(b bool) string {
		if b {
			return "yes"
		}
		return ""
	}
	for _, f := range schema.Fields {
		t.Append(f.ID, f.Name, f.Type, strings.Join(f.Operators, " "), mark(f.Sortable), mark(f.Groupable), mark(f.Summable))
	}
	if err := t.Render(cmd.OutOrStdout(), outputStyle()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "page size: default %d, max %d\n", schema.DefaultPageSize, schema.MaxPageSize)
	return nil
}

// transportFromFlags builds a query definition from the run flags plus
// --public and --starred.
func transportFromFlags(cmd *cobra.Command, name string) (*query.Transport, error) {
	req, err := runRequestFromFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if req.Filter != "" || req.OrderBy != "" {
		return nil, fmt.Errorf("--filter and --order-by apply to runs only; use --where and --sort when saving")
	}
	t := &query.Transport{
		Name:               name,
		ProjectID:          req.ProjectID,
		Filters:            query.NewFilterSet(req.Filters...),
		SortBy:             req.SortBy,
		DisplaySums:        req.ShowSums,
		IncludeSubprojects: req.IncludeSubprojects,
	}
	for _, c := range req.Columns {
		ref, err := query.ParseFieldRef(c)
		if err != nil {
			return nil, fmt.Errorf("invalid column %q: %w", c, err)
		}
		t.Columns = append(t.Columns, ref)
	}
	if req.GroupBy != "" {
		ref, err := query.ParseFieldRef(req.GroupBy)
		if err != nil {
			return nil, fmt.Errorf("invalid group-by %q: %w", req.GroupBy, err)
		}
		t.GroupBy = &ref
	}
	t.Public, _ = cmd.Flags().GetBool("public")
	t.Starred, _ = cmd.Flags().GetBool("starred")
	if display, _ := cmd.Flags().GetString("display"); display != "" {
		t.DisplayRepresentation = query.Representation(display)
	}
	return t, nil
}

const displayUsage = "how clients show results: list, board, gantt, calendar, or team_planner"

func projectFlag(cmd *cobra.Command) *int64 {
	flag, _ := cmd.Flags().GetInt64("project")
	project := projectOrDefault(flag)
	if project <= 0 {
		return nil
	}
	return &project
}

func init() {
	queryListCmd.Flags().Int64("project", 0, "list queries of a project (default: the active remote's project, else global queries)")
	queryDefaultCmd.Flags().Int64("project", 0, "project id")

	addRunFlags(queryRunCmd.Flags())

	addRunFlags(querySaveCmd.Flags())
	querySaveCmd.Flags().Bool("public", false, "share with everyone who can see the project")
	querySaveCmd.Flags().Bool("starred", false, "star the query")
	querySaveCmd.Flags().String("display", "", displayUsage)

	queryUpdateCmd.Flags().String("name", "", "new name")
	queryUpdateCmd.Flags().Bool("public", false, "share with everyone who can see the project")
	queryUpdateCmd.Flags().Bool("starred", false, "star the query")
	queryUpdateCmd.Flags().String("display", "", displayUsage)

	queryCmd.AddCommand(queryListCmd)
	queryCmd.AddCommand(queryShowCmd)
	queryCmd.AddCommand(queryDefaultCmd)
	queryCmd.AddCommand(queryRunCmd)
	queryCmd.AddCommand(querySaveCmd)
	queryCmd.AddCommand(queryUpdateCmd)
	queryCmd.AddCommand(queryDeleteCmd)
	queryCmd.AddCommand(querySchemaCmd)
}
