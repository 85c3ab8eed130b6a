package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/nao1215/linkproof/internal/config"
	"github.com/nao1215/linkproof/internal/database"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [dir]",
		Short: "List past check runs",
		Long: `History lists previous runs recorded in the cache database, newest first.
Give a site directory to list only the runs over that directory.

Examples:
  linkproof history
  linkproof history public --limit 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list (0 = all)")
	cmd.Flags().String("cache-dir", "", "Directory of the cache database (default: XDG cache directory)")
	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	store, err := openExistingStore(cmd)
	if err != nil {
		return err
	}
	if store == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
		return nil
	}
	defer store.Close()

	root := ""
	if len(args) > 0 {
		root = args[0]
	}
	runs, err := store.ListRuns(cmd.Context(), root, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSITE\tDOCS\tOK\tBROKEN\tSKIPPED\tIGNORED\tDURATION\tRESULT\tID")
	for _, r := range runs {
		result := "pass"
		switch {
		case r.Interrupted:
			result = "interrupted"
		case !r.Pass:
			result = "fail"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Root,
			r.DocumentsChecked,
			r.Counts.OK, r.Counts.Broken, r.Counts.Skipped, r.Counts.Ignored,
			r.Duration.Round(time.Millisecond),
			result,
			r.ID,
		)
	}
	return tw.Flush()
}

// openExistingStore opens the cache database without creating it. It
// returns nil when no database exists yet.
func openExistingStore(cmd *cobra.Command) (*database.Store, error) {
	dir, err := cmd.Flags().GetString("cache-dir")
	if err != nil {
		return nil, err
	}
	if dir == "" {
		dir = config.XDGCacheDir()
	}
	if _, err := os.Stat(filepath.Join(dir, database.FileName)); os.IsNotExist(err) {
		return nil, nil //nolint:nilnil // no database is not an error here
	}
	return database.Open(dir, database.DefaultOptions())
}
