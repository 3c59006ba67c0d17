package cli

import "github.com/spf13/cobra"

// RegisterRoutes attaches every command group defined in the cli package
// to the provided root command. Each module exposes its own root command
// (e.g. PenaCmd) which aggregates all of that module's routes. Calling
// RegisterRoutes(root) makes all commands available from the main binary
// so they can be invoked like `sanvm pena run ./contract.pena`.
func RegisterRoutes(root *cobra.Command) {
	root.AddCommand(
		PenaCmd,
		VMCmd,
		ContractsCmd,
		ServeCmd,
	)
}
