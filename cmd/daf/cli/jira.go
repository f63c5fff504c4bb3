package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devaiflow/cli/cmd/daf/cli/config"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

func newJiraCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jira",
		Short: "Work with tracker issues directly",
	}
	cmd.AddCommand(newJiraViewCmd(flags))
	cmd.AddCommand(newJiraCreateCmd(flags))
	cmd.AddCommand(newJiraUpdateCmd(flags))
	cmd.AddCommand(newJiraFieldsCmd(flags))
	cmd.AddCommand(newJiraNewCmd(flags))
	return cmd
}

func newJiraViewCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "view <issue-key>",
		Short: "Show an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			trk, err := m.RequireTracker()
			if err != nil {
				return err
			}
			detail, err := trk.GetTicketDetailed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(cmd, flags, detail, func() {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %s\n", detail.Key, detail.Summary)
				fmt.Fprintf(out, "Type: %s | Status: %s", detail.Type, detail.Status)
				if detail.Assignee != "" {
					fmt.Fprintf(out, " | Assignee: %s", detail.Assignee)
				}
				fmt.Fprintln(out)
				if detail.Description != "" {
					fmt.Fprintf(out, "\n%s\n", detail.Description)
				}
				for _, c := range detail.Comments {
					fmt.Fprintf(out, "\n-- %s (%s)\n%s\n", c.Author, c.Created.Format("2006-01-02"), c.Body)
				}
			})
		},
	}
}

// parseFieldArgs turns repeated --field name=value pairs into a map.
func parseFieldArgs(pairs []string) (map[string]string, error) {
	fields := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q: expected name=value", pair)
		}
		fields[name] = value
	}
	return fields, nil
}

func newJiraCreateCmd(flags *rootFlags) *cobra.Command {
	var (
		kind       string
		fieldPairs []string
	)

	cmd := &cobra.Command{
		Use:   "create <summary>",
		Short: "Create an issue",
		Long: "Field names may be catalog ids, display names, or configured aliases.\n" +
			"System and custom fields cannot be mixed in one call.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			fields, err := parseFieldArgs(fieldPairs)
			if err != nil {
				return err
			}
			fields["summary"] = args[0]
			ticket, err := m.CreateIssue(cmd.Context(), kind, fields)
			if err != nil {
				return err
			}
			return emit(cmd, flags, ticket, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s: %s\n", ticket.Key, ticket.Summary)
			})
		},
	}

	cmd.Flags().StringVarP(&kind, "type", "t", "Task", "issue type")
	cmd.Flags().StringArrayVarP(&fieldPairs, "field", "F", nil, "field as name=value (repeatable)")
	return cmd
}

func newJiraUpdateCmd(flags *rootFlags) *cobra.Command {
	var fieldPairs []string

	cmd := &cobra.Command{
		Use:   "update <issue-key>",
		Short: "Update issue fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			fields, err := parseFieldArgs(fieldPairs)
			if err != nil {
				return err
			}
			if len(fields) == 0 {
				return fmt.Errorf("nothing to update: pass at least one --field")
			}
			if err := m.UpdateIssue(cmd.Context(), args[0], fields); err != nil {
				return err
			}
			return emit(cmd, flags, map[string]any{"key": args[0], "fields": fields}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
			})
		},
	}

	cmd.Flags().StringArrayVarP(&fieldPairs, "field", "F", nil, "field as name=value (repeatable)")
	return cmd
}

func newJiraFieldsCmd(flags *rootFlags) *cobra.Command {
	var (
		refresh bool
		kind    string
	)

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Show the cached field catalog",
		Long:  "The catalog is cached per backend and only refetched with --refresh;\ntracker schemas change rarely and the fetch is expensive.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			root := m.Store.Root()
			name := m.BackendName()

			var bc *config.BackendCache
			if refresh {
				trk, err := m.RequireTracker()
				if err != nil {
					return err
				}
				bc, err = config.RefreshCatalog(cmd.Context(), root, name, trk, m.Config.Project, kind)
				if err != nil {
					return err
				}
			} else {
				bc, err = config.LoadBackend(root, name)
				if err != nil {
					return err
				}
			}

			if bc.Catalog == nil {
				return fmt.Errorf("no cached field catalog for backend %q: run with --refresh", name)
			}
			return emit(cmd, flags, bc, func() {
				system, custom := bc.Catalog.Partition()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Backend %s (fetched %s)\n\nSystem fields:\n", name, bc.FetchedAt.Format("2006-01-02 15:04"))
				printFields(cmd, system)
				fmt.Fprintln(out, "\nCustom fields:")
				printFields(cmd, custom)
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "refetch the catalog from the tracker")
	cmd.Flags().StringVarP(&kind, "type", "t", "Task", "issue type to fetch creatable fields for")
	return cmd
}

func printFields(cmd *cobra.Command, fields []tracker.Field) {
	for _, f := range fields {
		required := ""
		if f.Required {
			required = " (required)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %s%s\n", f.ID, f.DisplayName, required)
	}
}

func newJiraNewCmd(flags *rootFlags) *cobra.Command {
	var (
		name string
		goal string
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Draft a new issue with the agent",
		Long: "Starts a ticket-creation session in a throwaway directory. The agent\n" +
			"runs with a read-only analysis prompt; create the issue with\n" +
			"'daf jira create' and the session renames itself to creation-<KEY>.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			if goal == "" {
				return fmt.Errorf("--goal is required")
			}
			code, err := m.TicketNew(cmd.Context(), name, goal)
			if err != nil {
				return err
			}
			if code != 0 {
				return NewSilentError(fmt.Errorf("agent exited with code %d", code))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "session name (default: creation-draft-<timestamp>)")
	cmd.Flags().StringVarP(&goal, "goal", "g", "", "what the issue should cover")
	return cmd
}
