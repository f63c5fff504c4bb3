package cli

import (
	"github.com/spf13/cobra"

	"github.com/devaiflow/cli/cmd/daf/cli/jsonutil"
)

// emit writes data as a success envelope under --json; otherwise render is
// called for the human view. Under --json nothing but the envelope may reach
// stdout.
func emit(cmd *cobra.Command, flags *rootFlags, data any, render func()) error {
	if flags.jsonMode {
		return jsonutil.WriteSuccess(cmd.OutOrStdout(), data)
	}
	render()
	return nil
}
