package cmds

import (
	"github.com/spf13/cobra"
)

func AddCommands(root *cobra.Command) error {
	root.AddCommand(newTuiCmd())
	root.AddCommand(newRunsCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newPropagationCmd())
	return nil
}
