package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"xtap/internal/daemonctl"
	"xtap/internal/ipc"
)

func runStatus(ctx *commandContext, cmd *cobra.Command) error {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	reachable, _, err := daemonctl.ProcessInfo(ctx.socketPath())
	if err != nil {
		return err
	}

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if !reachable {
		fmt.Fprintln(stdout, renderStatusLine("xtap", statusWarn, "Not running (run `xtap start`)", colorize))
		return nil
	}

	var status *ipc.StatusResponse
	if err := ctx.withClient(func(client *ipc.Client) error {
		resp, statusErr := client.Status()
		if statusErr != nil {
			return statusErr
		}
		status = resp
		return nil
	}); err != nil {
		return err
	}

	fmt.Fprintln(stdout, renderStatusLine("xtap", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Capture", captureKind(status.CaptureEnabled), captureDetail(status.CaptureEnabled), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Channel", channelKind(status.Channel), channelDetail(status), colorize))
	if status.OutputDir != "" {
		fmt.Fprintln(stdout, renderStatusLine("Output", statusInfo, status.OutputDir, colorize))
	} else {
		fmt.Fprintln(stdout, renderStatusLine("Output", statusWarn, "Not configured (run `xtap output-dir <path>`)", colorize))
	}
	if status.LastError != "" {
		fmt.Fprintln(stdout, renderStatusLine("Last error", statusError, status.LastError, colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Pipeline", colorize) {
		fmt.Fprintln(stdout, line)
	}
	rows := [][]string{
		{"Buffered", strconv.Itoa(status.Buffered)},
		{"Session accepted", strconv.FormatInt(status.SessionAccepted, 10)},
		{"Session duplicates", strconv.FormatInt(status.SessionDuplicates, 10)},
		{"All-time accepted", strconv.FormatInt(status.AllTime, 10)},
		{"Tracked identifiers", strconv.Itoa(status.TrackedIDs)},
		{"Flushes", strconv.FormatInt(status.Flushes, 10)},
	}
	if status.PendingLogLines > 0 {
		rows = append(rows, []string{"Pending log lines", strconv.Itoa(status.PendingLogLines)})
	}
	if status.LastFlush != "" {
		rows = append(rows, []string{"Last flush", status.LastFlush})
	}
	fmt.Fprintln(stdout, renderTable([]string{"Metric", "Value"}, rows, 1))
	return nil
}

func captureKind(enabled bool) statusKind {
	if enabled {
		return statusOK
	}
	return statusWarn
}

func captureDetail(enabled bool) string {
	if enabled {
		return "Enabled"
	}
	return "Disabled"
}

func channelKind(channel string) statusKind {
	switch channel {
	case "http", "host":
		return statusOK
	default:
		return statusWarn
	}
}

func channelDetail(status *ipc.StatusResponse) string {
	caser := cases.Title(language.English)
	switch status.Channel {
	case "http":
		return "HTTP daemon"
	case "host":
		detail := "Host socket"
		if status.RapidDisconnects > 0 {
			detail = fmt.Sprintf("%s (%d rapid disconnects)", detail, status.RapidDisconnects)
		}
		return detail
	default:
		return caser.String(status.Channel) + " (deliveries deferred)"
	}
}
