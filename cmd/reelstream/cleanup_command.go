package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelstream/internal/ipc"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <sourcePath>",
		Short: "Remove a source file's transcoded artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cleanup(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed transcoded output at %s\n", resp.OutputDir)
				return nil
			})
		},
	}
}
