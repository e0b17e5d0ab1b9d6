package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"reelstream/internal/api"
	"reelstream/internal/ipc"
)

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the transcode scheduler (running jobs finish)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Pause()
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("missing pause response")
				}
				return printActionResult(cmd, ctx, resp.Result)
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume the transcode scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resume()
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("missing resume response")
				}
				return printActionResult(cmd, ctx, resp.Result)
			})
		},
	}
}

func printActionResult(cmd *cobra.Command, ctx *commandContext, result api.ActionResult) error {
	if ctx.jsonMode() {
		return writeJSON(cmd, result)
	}
	out := cmd.OutOrStdout()
	message := result.Message
	if message == "" {
		if result.Success {
			message = "OK"
		} else {
			message = "Request failed"
		}
	}
	fmt.Fprintln(out, message)
	if result.Snapshot != nil {
		fmt.Fprintf(out, "Paused: %s  Active: %d/%d  Pending: %d\n",
			yesNo(result.Snapshot.IsPaused),
			result.Snapshot.ActiveCount,
			result.Snapshot.MaxConcurrent,
			result.Snapshot.TotalPending,
		)
	}
	return nil
}
