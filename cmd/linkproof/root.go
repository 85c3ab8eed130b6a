package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitFailures = 1
	exitError    = 2
)

// errChecksFailed is returned by the check command when the report does
// not pass. The report itself has already been written.
var errChecksFailed = errors.New("link check failed")

// NewRootCmd creates the root command for linkproof.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linkproof",
		Short: "Integrity checker for static HTML sites",
		Long: `linkproof validates a directory of rendered HTML before it is published.

It reports links to missing files and anchors, external URLs that no longer
resolve, images without alt text and other markup problems, and exits
non-zero so CI can block a broken deploy.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewRenderCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCacheCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits with 1 when checks fail and 2
// on any other error.
func Execute() {
	err := NewRootCmd().Execute()
	if err == nil {
		return
	}
	code := exitCode(err)
	if code == exitError {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}

func exitCode(err error) int {
	if errors.Is(err, errChecksFailed) {
		return exitFailures
	}
	return exitError
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}
