package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelstream/internal/ipc"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the library for new source files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueScan(mode)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scan %s started (mode: %s)\n", resp.Task.ID, resp.Task.Mode)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "alphabetical", "Scan enqueue order (alphabetical, size, date)")

	cmd.AddCommand(newScanStatusCommand(ctx))
	return cmd
}

func newScanStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [scanID]",
		Short: "Show background scan progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ScanStatus(id)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, resp)
				}
				if len(resp.Tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No scans recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Tasks))
				for _, task := range resp.Tasks {
					detail := ""
					if task.Error != "" {
						detail = task.Error
					}
					rows = append(rows, []string{
						task.ID,
						task.Mode,
						task.State,
						fmt.Sprintf("%d", task.Added),
						detail,
					})
				}
				table := renderTable(
					[]string{"ID", "Mode", "State", "Added", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}
