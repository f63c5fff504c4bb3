package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newNoteCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Session notes",
	}
	cmd.AddCommand(newNoteAddCmd(flags))
	cmd.AddCommand(newNoteListCmd(flags))
	return cmd
}

func newNoteAddCmd(flags *rootFlags) *cobra.Command {
	var (
		sessionName string
		push        bool
	)

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Append a note to the session log",
		Long:  "The local note log is authoritative. With --push the note is also posted\nto the linked issue; a failed push keeps the local note and warns.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			s, err := m.ResolveSession(sessionName)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			if err := m.AddNote(cmd.Context(), s.Name, text, push); err != nil {
				return err
			}
			return emit(cmd, flags, map[string]string{"session": s.Name, "note": text}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Noted on %s\n", s.Name)
			})
		},
	}

	cmd.Flags().StringVarP(&sessionName, "session", "s", "", "session name (default: latest active)")
	cmd.Flags().BoolVarP(&push, "push", "p", false, "also post the note to the linked issue")
	return cmd
}

func newNoteListCmd(flags *rootFlags) *cobra.Command {
	var sessionName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the session's notes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(flags)
			if err != nil {
				return err
			}
			s, err := m.ResolveSession(sessionName)
			if err != nil {
				return err
			}
			notes, err := m.Notes(s.Name)
			if err != nil {
				return err
			}
			return emit(cmd, flags, notes, func() {
				if len(notes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No notes")
					return
				}
				for _, n := range notes {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n\n", n.CreatedAt.Format("2006-01-02 15:04"), n.Text)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&sessionName, "session", "s", "", "session name (default: latest active)")
	return cmd
}
