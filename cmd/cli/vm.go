package cli

// -----------------------------------------------------------------------------
// vm.go - CLI wrapper for the bare SANVM bytecode interpreter
// -----------------------------------------------------------------------------
// Public command (after RegisterVM):
//   vm run <file> [--step-cap N]   - parse a textual instruction-list
//                                    program and execute it, printing the
//                                    final data stack
// -----------------------------------------------------------------------------

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alibertay/san-network/core"
)

func vmEnvOrInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func handleVMRun(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	bc, err := core.NewInstructionListParser().Parse(string(src))
	if err != nil {
		return err
	}

	stepCap, _ := cmd.Flags().GetInt("step-cap")
	if stepCap == 0 {
		stepCap = vmEnvOrInt("SANVM_STEP_CAP", 0)
	}

	vm := core.NewVM(nil)
	vm.SetOutput(cmd.OutOrStdout())
	vm.SetBudget(core.NewStepBudget(int64(stepCap)))
	if err := vm.Run(bc); err != nil {
		return err
	}

	for _, v := range vm.Stack() {
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	}
	return nil
}

var vmRootCmd = &cobra.Command{Use: "vm", Short: "Run raw instruction-list bytecode programs"}

var vmRunCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Parse and execute a textual instruction-list program",
	Args:  cobra.ExactArgs(1),
	RunE:  handleVMRun,
}

func init() {
	vmRunCmd.Flags().Int("step-cap", 0, "maximum opcode steps before aborting (0 = unbounded, falls back to SANVM_STEP_CAP)")
	vmRootCmd.AddCommand(vmRunCmd)
}

// VMCmd is the consolidated export for this module's command tree.
var VMCmd = vmRootCmd

// RegisterVM attaches VMCmd to root.
func RegisterVM(root *cobra.Command) { root.AddCommand(VMCmd) }
