package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devaiflow/cli/cmd/daf/cli/timetracker"
)

func newTimeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "time [name]",
		Short: "Report tracked time per session",
		Long:  "Time prints tracked time per session, most time first. With a name it\nreports that one session only.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			entries, err := m.TimeReport(name)
			if err != nil {
				return err
			}
			return emit(cmd, flags, entries, func() {
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No sessions")
					return
				}
				for _, e := range entries {
					marker := " "
					if e.Running {
						marker = "*"
					}
					line := fmt.Sprintf("%s %-24s %10s", marker, e.Name, timetracker.FormatDuration(e.Elapsed))
					if e.IssueKey != "" {
						line += "  " + e.IssueKey
					}
					fmt.Fprintln(out, line)
				}
			})
		},
	}
}
