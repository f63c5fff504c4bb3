// Package cli is the cobra command surface. Commands stay thin: they parse
// flags, build a manager, delegate, and render. All orchestration logic lives
// in the manager package.
package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/devaiflow/cli/cmd/daf/cli/config"
	"github.com/devaiflow/cli/cmd/daf/cli/manager"
	"github.com/devaiflow/cli/cmd/daf/cli/paths"
	"github.com/devaiflow/cli/cmd/daf/cli/telemetry"
	"github.com/devaiflow/cli/cmd/daf/cli/versioncheck"
)

const accessibilityHelp = `
Environment Variables:
  ACCESSIBLE    Set to any value (e.g., ACCESSIBLE=1) to enable accessibility
                mode. This uses simpler text prompts instead of interactive
                TUI elements, which works better with screen readers.
`

// Version information (can be set at build time)
var (
	Version = "dev"
	Commit  = "unknown"
)

// rootFlags are the persistent flags shared by every command.
type rootFlags struct {
	jsonMode bool
	agent    string
}

func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "daf",
		Short: "Developer workflow orchestrator",
		Long: "daf binds an issue tracker, a local git checkout, and an AI coding agent\n" +
			"into resumable work sessions." + accessibilityHelp,
		// Let main.go handle error printing to avoid duplication
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			var telemetryEnabled *bool
			if root, err := paths.Root(); err == nil {
				if cfg, err := config.Load(root, nil); err == nil {
					telemetryEnabled = cfg.TelemetryEnabled
				}
			}
			telemetryClient := telemetry.NewClient(Version, telemetryEnabled)
			defer telemetryClient.Close()
			telemetryClient.TrackCommand(cmd, flags.agent, flags.jsonMode)

			versioncheck.CheckAndNotify(cmd, Version)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "machine-readable output; prompts fail instead of asking")
	cmd.PersistentFlags().StringVar(&flags.agent, "agent", "", "agent to launch (claude, cursor, windsurf, vscode)")

	cmd.AddCommand(newNewCmd(flags))
	cmd.AddCommand(newOpenCmd(flags))
	cmd.AddCommand(newCompleteCmd(flags))
	cmd.AddCommand(newListCmd(flags))
	cmd.AddCommand(newInfoCmd(flags))
	cmd.AddCommand(newActiveCmd(flags))
	cmd.AddCommand(newNoteCmd(flags))
	cmd.AddCommand(newSyncCmd(flags))
	cmd.AddCommand(newLinkCmd(flags))
	cmd.AddCommand(newUnlinkCmd(flags))
	cmd.AddCommand(newPauseCmd(flags))
	cmd.AddCommand(newResumeCmd(flags))
	cmd.AddCommand(newDeleteCmd(flags))
	cmd.AddCommand(newUpdateCmd(flags))
	cmd.AddCommand(newInvestigateCmd(flags))
	cmd.AddCommand(newJiraCmd(flags))
	cmd.AddCommand(newTimeCmd(flags))
	cmd.AddCommand(newConfigCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// newManager builds the production manager with the prompter matching the
// output mode: interactive prompts on a TTY, deterministic refusal under
// --json or a pipe.
func newManager(flags *rootFlags) (*manager.Manager, error) {
	var prompter manager.Prompter
	if flags.jsonMode || !stdinIsTerminal() {
		prompter = manager.NonInteractivePrompter{}
	} else {
		prompter = &HuhPrompter{}
	}
	m, err := manager.New(prompter)
	if err != nil {
		return nil, err
	}
	m.AgentName = flags.agent
	return m, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("daf %s (%s)\n", Version, Commit)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
