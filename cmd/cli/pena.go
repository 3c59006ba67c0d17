package cli

// -----------------------------------------------------------------------------
// pena.go - CLI wrapper for the Pena source-to-bytecode compiler
// -----------------------------------------------------------------------------
// Public command (after RegisterPena):
//   pena run <file>   - compile and execute a Pena source file
// -----------------------------------------------------------------------------

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alibertay/san-network/core"
)

func handlePenaRun(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	bc, err := core.NewPenaParser().Parse(string(src))
	if err != nil {
		return err
	}
	vm := core.NewVM(nil)
	vm.SetOutput(cmd.OutOrStdout())
	return vm.Run(bc)
}

var penaRootCmd = &cobra.Command{Use: "pena", Short: "Compile and run Pena source programs"}

var penaRunCmd = &cobra.Command{
	Use:   "run <file.pena>",
	Short: "Compile a Pena source file and execute it",
	Args:  cobra.ExactArgs(1),
	RunE:  handlePenaRun,
}

func init() { penaRootCmd.AddCommand(penaRunCmd) }

// PenaCmd is the consolidated export for this module's command tree.
var PenaCmd = penaRootCmd

// RegisterPena attaches PenaCmd to root.
func RegisterPena(root *cobra.Command) { root.AddCommand(PenaCmd) }
