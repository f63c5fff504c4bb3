package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

func newSyncCmd(flags *rootFlags) *cobra.Command {
	var filter tracker.ListFilter

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Create or update sessions from tracker issues",
		Long: "Sync queries the tracker and mints one session per matching issue,\n" +
			"named by the issue key. Re-running is idempotent; local-only fields are\n" +
			"never overwritten.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			results, err := m.Sync(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return emit(cmd, flags, results, func() {
				created, updated := 0, 0
				for _, r := range results {
					switch {
					case r.Created:
						created++
						fmt.Fprintf(cmd.OutOrStdout(), "created  %s\n", r.Key)
					case r.Updated:
						updated++
						fmt.Fprintf(cmd.OutOrStdout(), "updated  %s\n", r.Key)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d issues: %d created, %d updated\n", len(results), created, updated)
			})
		},
	}

	cmd.Flags().StringVar(&filter.Project, "project", "", "project key (default: configured project)")
	cmd.Flags().StringVar(&filter.Sprint, "sprint", "", "sprint filter")
	cmd.Flags().StringVar(&filter.Type, "type", "", "issue type filter")
	cmd.Flags().StringVar(&filter.Parent, "parent", "", "parent issue filter")
	cmd.Flags().StringVar(&filter.Assignee, "assignee", "", "assignee filter")
	return cmd
}

func newLinkCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "link <name> <issue-key>",
		Short: "Bind a session to a tracker issue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			if err := m.Link(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			return emit(cmd, flags, map[string]string{"session": args[0], "issue": args[1]}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to %s\n", args[0], args[1])
			})
		},
	}
}

func newUnlinkCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <name>",
		Short: "Detach a session from its issue",
		Long:  "Clears only the tracker-derived fields. Goal, notes, conversations, and\ntracked time stay.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			if err := m.Unlink(cmd.Context(), args[0]); err != nil {
				return err
			}
			return emit(cmd, flags, map[string]string{"session": args[0]}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Unlinked %s\n", args[0])
			})
		},
	}
}
