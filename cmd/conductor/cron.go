package main

import (
	"fmt"
	"time"

	"github.com/aretw0/conductor/pkg/schedule"
	"github.com/spf13/cobra"
)

func newCronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Validate, describe and preview cron schedules",
	}

	validate := &cobra.Command{
		Use:   "validate <expr>",
		Short: "Check a 5-field cron expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := schedule.Validate(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid:", schedule.Describe(args[0]))
			return nil
		},
	}

	describe := &cobra.Command{
		Use:   "describe <expr>",
		Short: "Describe a cron expression in words",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), schedule.Describe(args[0]))
		},
	}

	var (
		count int
		from  string
	)
	next := &cobra.Command{
		Use:   "next <expr>",
		Short: "List the next fire times of a cron expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			after := time.Now()
			if from != "" {
				t, err := time.Parse(time.RFC3339, from)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				after = t
			}
			times, err := schedule.NextN(args[0], after, count)
			if err != nil {
				return err
			}
			for _, t := range times {
				fmt.Fprintln(cmd.OutOrStdout(), t.Format(time.RFC3339))
			}
			return nil
		},
	}
	next.Flags().IntVarP(&count, "count", "n", 5, "How many fire times to list")
	next.Flags().StringVar(&from, "from", "", "Start after this RFC 3339 time (default now)")

	presets := &cobra.Command{
		Use:   "presets",
		Short: "List the built-in schedule presets",
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range schedule.Presets {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-14s %s\n", p.ID, p.Expr, p.Label)
			}
		},
	}

	cmd.AddCommand(validate, describe, next, presets)
	return cmd
}
