package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelstream/internal/ipc"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <jobID>",
		Short: "Display one queue job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueDescribe(ids[0])
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, resp)
				}
				item := resp.Item
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job #%d: %s\n", item.ID, item.DisplayName)
				fmt.Fprintf(out, "Source: %s\n", item.SourcePath)
				if item.OutputDir != "" {
					fmt.Fprintf(out, "Output: %s\n", item.OutputDir)
				}
				fmt.Fprintf(out, "Status: %s\n", formatStatusLabel(item.Status))
				fmt.Fprintf(out, "Priority: %s\n", item.Priority)
				fmt.Fprintf(out, "Progress: %.1f%%\n", item.Progress)
				if item.EncodeSpeed > 0 {
					fmt.Fprintf(out, "Speed: %.2fx\n", item.EncodeSpeed)
				}
				if item.ETASeconds > 0 {
					fmt.Fprintf(out, "ETA: %ds\n", item.ETASeconds)
				}
				if item.ErrorMessage != "" {
					fmt.Fprintf(out, "Error: %s\n", item.ErrorMessage)
				}
				if item.CreatedAt != "" {
					fmt.Fprintf(out, "Created: %s\n", item.CreatedAt)
				}
				if item.StartedAt != "" {
					fmt.Fprintf(out, "Started: %s\n", item.StartedAt)
				}
				if item.CompletedAt != "" {
					fmt.Fprintf(out, "Completed: %s\n", item.CompletedAt)
				}
				return nil
			})
		},
	}
}
