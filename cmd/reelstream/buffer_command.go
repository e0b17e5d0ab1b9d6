package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelstream/internal/ipc"
)

func newBufferCommand(ctx *commandContext) *cobra.Command {
	bufferCmd := &cobra.Command{
		Use:   "buffer",
		Short: "Inspect streaming session buffer state",
	}

	bufferCmd.AddCommand(newBufferStatusCommand(ctx))
	bufferCmd.AddCommand(newBufferSessionsCommand(ctx))

	return bufferCmd
}

func newBufferStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <sessionKey>",
		Short: "Show one session's adaptive buffer report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BufferStatus(key)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !resp.Found {
					fmt.Fprintf(out, "No buffer session %q\n", key)
					return nil
				}
				report := resp.Report
				fmt.Fprintf(out, "Session: %s\n", key)
				fmt.Fprintf(out, "Average speed: %s\n", report.AverageSpeed)
				fmt.Fprintf(out, "Buffer available: %d segments\n", report.BufferAvailable)
				fmt.Fprintf(out, "Tier: %s\n", report.Strategy.Tier)
				fmt.Fprintf(out, "Segments (min/target/max): %d/%d/%d\n",
					report.Strategy.MinSegments,
					report.Strategy.TargetSegments,
					report.Strategy.MaxSegments,
				)
				fmt.Fprintf(out, "Rationale: %s\n", report.Strategy.Rationale)
				fmt.Fprintf(out, "Critical: %s\n", yesNo(report.IsCritical))
				fmt.Fprintf(out, "Recommended action: %s\n", report.RecommendedAction)
				fmt.Fprintf(out, "Samples: %d\n", report.SampleCount)
				return nil
			})
		},
	}
}

func newBufferSessionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List active streaming sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BufferSessions()
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, resp)
				}
				if len(resp.Keys) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No active sessions")
					return nil
				}
				for _, key := range resp.Keys {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return nil
			})
		},
	}
}
