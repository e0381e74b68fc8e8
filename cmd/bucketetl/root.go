package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bucketetl",
		Short:         "Load CSV objects from a bucket into a database table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newBackendsCmd())
	root.AddCommand(newProbeCmd())
	return root
}
