package cli

// -----------------------------------------------------------------------------
// contracts.go - CLI wrapper for ContractManager
// -----------------------------------------------------------------------------
// Public commands (after RegisterContracts):
//   contracts deploy <id> <file> [--lang pena|bytecode]  - compile and deploy,
//                                                          report bytecode size
//   contracts run <id> <file> <function> [args...]       - deploy then call
//                                                          in one shot
//
// ContractManager keeps state only for the lifetime of the process that
// owns it (matching the reference implementation: it never persisted to
// disk either), so a standalone "deploy" followed by a separate "call"
// invocation of this binary would find nothing - each invocation gets its
// own empty manager. "run" exists precisely because it is the only
// multi-step workflow this CLI can support without a long-lived process;
// sharing one contract's state across many separate calls requires the
// serve daemon (serve.go), which keeps a single ContractManager alive for
// as long as it runs.
// -----------------------------------------------------------------------------

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alibertay/san-network/core"
)

var (
	contractsLogger = logrus.StandardLogger()
	contractsOnce   sync.Once
)

func initContractsMiddleware(cmd *cobra.Command, _ []string) error {
	var err error
	contractsOnce.Do(func() {
		_ = godotenv.Load()
		lvlStr := os.Getenv("LOG_LEVEL")
		if lvlStr == "" {
			lvlStr = "info"
		}
		lvl, e := logrus.ParseLevel(lvlStr)
		if e != nil {
			err = e
			return
		}
		contractsLogger.SetLevel(lvl)
	})
	return err
}

func compileContractSource(lang, path string) (core.Bytecode, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch lang {
	case "", "pena":
		return core.NewPenaParser().Parse(string(src))
	case "bytecode":
		return core.NewInstructionListParser().Parse(string(src))
	default:
		return nil, fmt.Errorf("unknown --lang %q (want pena or bytecode)", lang)
	}
}

// parseCallArg mirrors InstructionListParser's own operand convention: a
// token that parses as a base-10 integer becomes an int, everything else
// is passed through as a string.
func parseCallArg(s string) core.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return core.IntValue(n)
	}
	return core.StrValue(s)
}

func handleContractsDeploy(cmd *cobra.Command, args []string) error {
	lang, _ := cmd.Flags().GetString("lang")
	bc, err := compileContractSource(lang, args[1])
	if err != nil {
		return err
	}
	cm := core.NewContractManager()
	if err := cm.Deploy(args[0], bc); err != nil {
		return err
	}
	_, size := cm.Info(args[0])
	contractsLogger.WithField("contract", args[0]).Info("contract deployed")
	fmt.Fprintf(cmd.OutOrStdout(), "deployed %s (%d bytecode slots)\n", args[0], size)
	return nil
}

func handleContractsRun(cmd *cobra.Command, args []string) error {
	id, path, function := args[0], args[1], args[2]
	lang, _ := cmd.Flags().GetString("lang")
	bc, err := compileContractSource(lang, path)
	if err != nil {
		return err
	}
	cm := core.NewContractManager()
	if err := cm.Deploy(id, bc); err != nil {
		return err
	}
	callArgs := make([]core.Value, len(args[3:]))
	for i, a := range args[3:] {
		callArgs[i] = parseCallArg(a)
	}
	result, err := cm.Call(id, function, callArgs)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.String())
	return nil
}

var contractsRootCmd = &cobra.Command{
	Use:               "contracts",
	Short:             "Deploy and invoke SANVM contracts",
	PersistentPreRunE: initContractsMiddleware,
}

var contractsDeployCmd = &cobra.Command{
	Use:   "deploy <id> <file>",
	Short: "Compile a source file and deploy it under id",
	Args:  cobra.ExactArgs(2),
	RunE:  handleContractsDeploy,
}

var contractsRunCmd = &cobra.Command{
	Use:   "run <id> <file> <function> [args...]",
	Short: "Deploy a source file and immediately call one of its functions",
	Args:  cobra.MinimumNArgs(3),
	RunE:  handleContractsRun,
}

func init() {
	contractsDeployCmd.Flags().String("lang", "pena", "source language: pena or bytecode")
	contractsRunCmd.Flags().String("lang", "pena", "source language: pena or bytecode")
	contractsRootCmd.AddCommand(contractsDeployCmd, contractsRunCmd)
}

// ContractsCmd is the consolidated export for this module's command tree.
var ContractsCmd = contractsRootCmd

// RegisterContracts attaches ContractsCmd to root.
func RegisterContracts(root *cobra.Command) { root.AddCommand(ContractsCmd) }
