package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "reconcile",
		Short:   "Operator tools for orphaned subscriptions and billing links",
		Version: Version,
	}

	rootCmd.AddCommand(orphansCmd())
	rootCmd.AddCommand(matchesCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(syncCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
