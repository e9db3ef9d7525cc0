package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fmueller/vidscribe/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmd := cli.NewRootCmd()
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if shouldPrintUsageHint(err) {
			fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", helpHintTarget(cmd, os.Args[1:]))
		}
		os.Exit(1)
	}
}

var usageErrorPatterns = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
	"accepts ",
	"requires at least",
	"requires at most",
	"requires between",
	"required flag",
	"missing required",
	"invalid argument",
}

func shouldPrintUsageHint(err error) bool {
	if err == nil {
		return false
	}

	message := strings.ToLower(strings.TrimSpace(err.Error()))
	for _, pattern := range usageErrorPatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

// helpHintTarget names the deepest command the user was trying to run.
func helpHintTarget(root *cobra.Command, args []string) string {
	if root == nil {
		return "vidscribe"
	}

	target := root.CommandPath()
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return target
	}

	if found, _, err := root.Find(args); err == nil && found != nil {
		return found.CommandPath()
	}
	return target
}
