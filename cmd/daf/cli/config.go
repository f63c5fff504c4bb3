package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/devaiflow/cli/cmd/daf/cli/config"
	"github.com/devaiflow/cli/cmd/daf/cli/paths"
)

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
	}
	cmd.AddCommand(newConfigShowCmd(flags))
	cmd.AddCommand(newConfigSetCmd(flags))
	return cmd
}

func newConfigShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the merged configuration",
		Long:  "Show prints the effective configuration after merging the user, team,\norganization, and enterprise layers.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := paths.Root()
			if err != nil {
				return err
			}
			cfg, err := config.Load(root, nil)
			if err != nil {
				return err
			}
			return emit(cmd, flags, cfg, func() {
				out := cmd.OutOrStdout()
				printIfSet(out, "tracker_url", cfg.TrackerURL)
				printIfSet(out, "auth_type", cfg.AuthType)
				printIfSet(out, "project", cfg.Project)
				printIfSet(out, "workstream", cfg.Workstream)
				printIfSet(out, "backend", cfg.Backend)
				printIfSet(out, "agent", cfg.Agent)
				printIfSet(out, "summary_mode", string(cfg.Summary()))
				if cfg.TelemetryEnabled != nil {
					fmt.Fprintf(out, "%-16s %t\n", "telemetry", *cfg.TelemetryEnabled)
				}
				for alias, id := range cfg.FieldAliases {
					fmt.Fprintf(out, "%-16s %s -> %s\n", "field_alias", alias, id)
				}
			})
		},
	}
}

func newConfigSetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a key in the user configuration layer",
		Long: "Set writes a single key into the user layer (config.json). Team and\n" +
			"organization layers are managed out of band and still override lower\n" +
			"layers on merge.\n\n" +
			"Keys: tracker_url, auth_type, project, workstream, backend, agent,\n" +
			"summary_mode, telemetry",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := paths.EnsureRoot()
			if err != nil {
				return err
			}
			user, err := config.LoadUser(root)
			if err != nil {
				return err
			}

			key, value := args[0], args[1]
			switch key {
			case "tracker_url":
				user.TrackerURL = value
			case "auth_type":
				user.AuthType = value
			case "project":
				user.Project = value
			case "workstream":
				user.Workstream = value
			case "backend":
				user.Backend = value
			case "agent":
				user.Agent = value
			case "summary_mode":
				mode := config.SummaryMode(value)
				switch mode {
				case config.SummaryAI, config.SummaryLocal, config.SummaryBoth, config.SummaryNone:
					user.SummaryMode = mode
				default:
					return fmt.Errorf("invalid summary_mode %q (want ai, local, both, or none)", value)
				}
			case "telemetry":
				enabled, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("invalid telemetry value %q (want true or false)", value)
				}
				user.TelemetryEnabled = &enabled
			default:
				return fmt.Errorf("unknown config key %q", key)
			}

			if err := config.SaveUser(root, user); err != nil {
				return err
			}
			return emit(cmd, flags, map[string]string{"key": key, "value": value}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			})
		},
	}
}

func printIfSet(out io.Writer, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(out, "%-16s %s\n", key, value)
}
