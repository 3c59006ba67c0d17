package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alibertay/san-network/cmd/cli"
)

func main() {
	rootCmd := &cobra.Command{Use: "sanvm", Short: "Stack-based bytecode VM for SANVM smart contracts"}
	cli.RegisterRoutes(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
