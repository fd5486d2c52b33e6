package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/conductor"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of conductor",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "conductor version %s\n", strings.TrimSpace(conductor.Version))
		},
	}
}
