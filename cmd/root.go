package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "isir",
		Short: "Tracks auction notices published in the Czech insolvency registry",
		Long: `isir scans the public ISIR registry for auction notices inside a date window,
looks up insolvency subjects and serves both over an HTTP API.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newScanCommand())
	cmd.AddCommand(newSubjectCommand())
	cmd.AddCommand(newHealthcheckCommand())

	return cmd
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main().
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
