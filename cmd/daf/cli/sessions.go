package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/devaiflow/cli/cmd/daf/cli/manager"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
	"github.com/devaiflow/cli/cmd/daf/cli/timetracker"
)

func newNewCmd(flags *rootFlags) *cobra.Command {
	var opts manager.NewOptions

	cmd := &cobra.Command{
		Use:   "new <name-or-issue-key>",
		Short: "Create a session",
		Long: "Create a session bound to the current directory. When the name is an\n" +
			"issue key (PROJ-123) the issue is fetched and linked; tracker failures\n" +
			"degrade to warnings.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			opts.Name = args[0]
			if opts.Goal == "" {
				opts.Goal = opts.Name
			}
			s, err := m.NewSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if !flags.jsonMode {
				fmt.Fprintf(cmd.OutOrStdout(), "Created session %s\n", s.Name)
				if s.IssueKey != "" && s.IssueSummary != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Linked to %s: %s\n", s.IssueKey, s.IssueSummary)
				}
			}

			code, err := m.Open(cmd.Context(), manager.OpenOptions{Name: s.Name})
			if err != nil {
				return err
			}
			if s, err = m.Get(s.Name); err != nil {
				return err
			}
			if err := emit(cmd, flags, s, func() {}); err != nil {
				return err
			}
			if code != 0 {
				return NewSilentError(fmt.Errorf("agent exited with code %d", code))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Goal, "goal", "g", "", "what this session is for")
	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "git branch to create and check out")
	cmd.Flags().StringVarP(&opts.WorkDir, "workdir", "w", "", "work directory (default: current directory)")
	cmd.Flags().StringVar(&opts.Workspace, "workspace", "", "workspace the session belongs to")
	cmd.Flags().StringVar(&opts.Template, "template", "", "session template")
	return cmd
}

func newOpenCmd(flags *rootFlags) *cobra.Command {
	var opts manager.OpenOptions

	cmd := &cobra.Command{
		Use:   "open [name-or-issue-key]",
		Short: "Open a session and launch or resume its agent",
		Long: "Open resolves the argument by session name, then issue key; with no\n" +
			"argument it opens the most recently active session. The agent's exit\n" +
			"code becomes daf's exit code.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				opts.Name = args[0]
			}
			code, err := m.Open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if code != 0 {
				return NewSilentError(fmt.Errorf("agent exited with code %d", code))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.WorkDir, "workdir", "w", "", "switch the active conversation to this repo")
	cmd.Flags().BoolVar(&opts.NewConversation, "new-conversation", false, "archive the current conversation and start fresh")
	return cmd
}

func newCompleteCmd(flags *rootFlags) *cobra.Command {
	var opts manager.CompleteOptions

	cmd := &cobra.Command{
		Use:   "complete [name-or-issue-key]",
		Short: "Finish a session",
		Long: "Complete stops time tracking, marks the session complete, posts a\n" +
			"conversation summary to the linked issue, and applies the configured\n" +
			"tracker transition. Remote failures warn; the session completes locally.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			s, err := m.ResolveSession(name)
			if err != nil {
				return err
			}
			opts.Name = s.Name
			res, err := m.Complete(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return emit(cmd, flags, res, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Completed session %s (time spent: %s)\n", s.Name, res.TimeSpent)
				if res.Committed {
					fmt.Fprintln(cmd.OutOrStdout(), "Pending changes committed")
				}
				if res.PullRequest != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Recorded pull request %s\n", res.PullRequest)
				}
				if res.Commented {
					fmt.Fprintln(cmd.OutOrStdout(), "Summary posted to the issue")
				}
				if res.Transitioned {
					fmt.Fprintln(cmd.OutOrStdout(), "Issue transitioned")
				}
			})
		},
	}

	cmd.Flags().BoolVar(&opts.NoSummary, "no-summary", false, "skip summary generation")
	cmd.Flags().BoolVar(&opts.NoComment, "no-comment", false, "keep the summary local")
	return cmd
}

func newListCmd(flags *rootFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			sessions, broken, err := m.List()
			if err != nil {
				return err
			}
			if !all {
				open := sessions[:0]
				for _, s := range sessions {
					if s.Status != session.StatusComplete {
						open = append(open, s)
					}
				}
				sessions = open
			}
			return emit(cmd, flags, sessions, func() {
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions")
					return
				}
				for _, s := range sessions {
					line := fmt.Sprintf("%-24s %-12s", s.Name, s.Status)
					if s.IssueKey != "" {
						line += " " + s.IssueKey
					}
					if s.IssueSummary != "" {
						line += ": " + s.IssueSummary
					}
					fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(line, " "))
				}
				for _, b := range broken {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: session %s is corrupt (quarantined at %s)\n", b.Name, b.QuarantinePath)
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed sessions")
	return cmd
}

func newInfoCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info [name-or-issue-key]",
		Short: "Show a session in detail",
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
			s, err := m.ResolveSession(name)
			if err != nil {
				return err
			}
			return emit(cmd, flags, s, func() {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Session:  %s\n", s.Name)
				fmt.Fprintf(out, "Status:   %s\n", s.Status)
				fmt.Fprintf(out, "Type:     %s\n", s.Type)
				fmt.Fprintf(out, "Goal:     %s\n", s.Goal)
				if s.IssueKey != "" {
					fmt.Fprintf(out, "Issue:    %s (%s) %s\n", s.IssueKey, s.IssueStatus, s.IssueSummary)
				}
				fmt.Fprintf(out, "Tracked:  %s\n", timetracker.FormatDuration(timetracker.Elapsed(s, time.Now())))
				for key, conv := range s.Conversations {
					marker := " "
					if key == s.ActiveWorkDir {
						marker = "*"
					}
					fmt.Fprintf(out, "%s %s: %s", marker, key, conv.Active.ProjectPath)
					if conv.Active.Branch != "" {
						fmt.Fprintf(out, " [%s]", conv.Active.Branch)
					}
					if conv.Active.MessageCount > 0 {
						fmt.Fprintf(out, " (%d messages)", conv.Active.MessageCount)
					}
					fmt.Fprintln(out)
				}
			})
		},
	}
}

func newActiveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the session bound to the current agent invocation",
		Long: "Active reads AI_AGENT_SESSION_ID from the environment, so it only\n" +
			"reports a session when run from inside a spawned agent.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			s, err := m.Active()
			if err != nil {
				return err
			}
			return emit(cmd, flags, s, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", s.Name, s.Status)
			})
		},
	}
}

func newPauseCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <name>",
		Short: "Pause time tracking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			if err := m.Pause(cmd.Context(), args[0]); err != nil {
				return err
			}
			return emit(cmd, flags, map[string]string{"session": args[0], "state": "paused"}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Paused %s\n", args[0])
			})
		},
	}
}

func newResumeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <name>",
		Short: "Resume time tracking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			if err := m.Resume(cmd.Context(), args[0]); err != nil {
				return err
			}
			return emit(cmd, flags, map[string]string{"session": args[0], "state": "running"}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Resumed %s\n", args[0])
			})
		},
	}
}

func newDeleteCmd(flags *rootFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a session and its notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			if err := m.Delete(cmd.Context(), args[0], force); err != nil {
				return err
			}
			return emit(cmd, flags, map[string]string{"session": args[0], "state": "deleted"}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")
	return cmd
}

func newUpdateCmd(flags *rootFlags) *cobra.Command {
	var opts manager.UpdateOptions

	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Edit a session's goal, workspace, template, or tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			opts.Name = args[0]
			s, err := m.Update(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return emit(cmd, flags, s, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", s.Name)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Goal, "goal", "g", "", "new goal")
	cmd.Flags().StringVar(&opts.Workspace, "workspace", "", "new workspace")
	cmd.Flags().StringVar(&opts.Template, "template", "", "new template")
	cmd.Flags().StringSliceVar(&opts.Tags, "tags", nil, "replace the tag list")
	return cmd
}

func newInvestigateCmd(flags *rootFlags) *cobra.Command {
	var opts manager.NewOptions

	cmd := &cobra.Command{
		Use:   "investigate <name>",
		Short: "Create an investigation session",
		Long:  "Investigation sessions track notes and time like development but have\nno branch and skip git/PR steps on completion.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			opts.Name = args[0]
			if opts.Goal == "" {
				opts.Goal = opts.Name
			}
			s, err := m.Investigate(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return emit(cmd, flags, s, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Created investigation %s\n", s.Name)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Goal, "goal", "g", "", "what to investigate")
	cmd.Flags().StringVarP(&opts.WorkDir, "workdir", "w", "", "work directory (default: current directory)")
	return cmd
}
