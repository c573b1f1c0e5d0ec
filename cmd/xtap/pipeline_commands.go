package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"xtap/internal/ipc"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Toggle payload capture",
	}

	onCmd := &cobra.Command{
		Use:   "on",
		Short: "Enable payload capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setCapture(ctx, cmd, true)
		},
	}
	offCmd := &cobra.Command{
		Use:   "off",
		Short: "Disable payload capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setCapture(ctx, cmd, false)
		},
	}

	captureCmd.AddCommand(onCmd, offCmd)
	return captureCmd
}

func setCapture(ctx *commandContext, cmd *cobra.Command, enabled bool) error {
	return ctx.withClient(func(client *ipc.Client) error {
		resp, err := client.SetCapture(enabled)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Capture enabled: %s\n", yesNo(resp.Enabled))
		return nil
	})
}

func newOutputDirCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "output-dir <path>",
		Short: "Set the delivery destination directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetOutputDir(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Output directory set to %s\n", resp.Dir)
				return nil
			})
		},
	}
}

func newFlushCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Force an immediate batch delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Flush()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Flushed {
					fmt.Fprintln(stdout, "Flush complete")
					return nil
				}
				fmt.Fprintf(stdout, "Flush failed: %s\n", resp.Message)
				return nil
			})
		},
	}
}

func newCountersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "counters",
		Short: "Show pipeline counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Counters()
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Session accepted", strconv.FormatInt(resp.SessionAccepted, 10)},
					{"Session duplicates", strconv.FormatInt(resp.SessionDuplicates, 10)},
					{"All-time accepted", strconv.FormatInt(resp.AllTime, 10)},
					{"Tracked identifiers", strconv.Itoa(resp.TrackedIDs)},
					{"Flushes", strconv.FormatInt(resp.Flushes, 10)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Counter", "Value"}, rows, 1))
				return nil
			})
		},
	}
}

func newDumpCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <filename> <content>",
		Short: "Ship a raw payload snapshot downstream for inspection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Dump(args[0], args[1])
				if err != nil {
					return err
				}
				if resp.OK {
					fmt.Fprintf(cmd.OutOrStdout(), "Dump %s accepted\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Dump %s rejected\n", args[0])
				}
				return nil
			})
		},
	}
}

func newVideoCommand(ctx *commandContext) *cobra.Command {
	videoCmd := &cobra.Command{
		Use:   "video",
		Short: "Video download passthrough",
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check downstream video downloader availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CheckYtdlp()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Available {
					fmt.Fprintln(stdout, "Downloader available")
				} else {
					detail := resp.Detail
					if detail == "" {
						detail = "not available"
					}
					fmt.Fprintf(stdout, "Downloader unavailable: %s\n", detail)
				}
				return nil
			})
		},
	}

	var directURL string
	var postDate string
	downloadCmd := &cobra.Command{
		Use:   "download <tweet-url>",
		Short: "Request a video download downstream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.DownloadVideo(args[0], directURL, postDate)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Download started: %s\n", resp.DownloadID)
				return nil
			})
		},
	}
	downloadCmd.Flags().StringVar(&directURL, "direct-url", "", "Direct media URL to download instead of resolving the tweet")
	downloadCmd.Flags().StringVar(&postDate, "post-date", "", "Post date used for the destination filename")

	statusCmd := &cobra.Command{
		Use:   "status <download-id>",
		Short: "Poll a previously started download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.DownloadStatus(args[0])
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.OK {
					fmt.Fprintln(stdout, "Download complete")
				} else {
					detail := resp.Detail
					if detail == "" {
						detail = "in progress"
					}
					fmt.Fprintf(stdout, "Download: %s\n", detail)
				}
				return nil
			})
		},
	}

	videoCmd.AddCommand(checkCmd, downloadCmd, statusCmd)
	return videoCmd
}
