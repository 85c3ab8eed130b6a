package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/linkproof/internal/config"
	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clean the external check cache",
		Long: `Cache prints how many external checks are stored and how many are still
fresh. --prune deletes entries older than the TTL; --clear deletes all of
them so the next run checks every URL again.

Examples:
  linkproof cache
  linkproof cache --prune --cache-ttl 1h
  linkproof cache --clear`,
		Args: cobra.NoArgs,
		RunE: runCacheCmd,
	}

	cmd.Flags().Bool("clear", false, "Delete every cached check")
	cmd.Flags().Bool("prune", false, "Delete cached checks older than --cache-ttl")
	cmd.Flags().Duration("cache-ttl", config.DefaultCacheTTL, "Freshness window used for counting and pruning")
	cmd.Flags().String("cache-dir", "", "Directory of the cache database (default: XDG cache directory)")
	return cmd
}

// runCacheCmd executes the cache command.
func runCacheCmd(cmd *cobra.Command, _ []string) error {
	clearAll, err := cmd.Flags().GetBool("clear")
	if err != nil {
		return err
	}
	prune, err := cmd.Flags().GetBool("prune")
	if err != nil {
		return err
	}
	ttl, err := cmd.Flags().GetDuration("cache-ttl")
	if err != nil {
		return err
	}
	if clearAll && prune {
		return errors.New("--clear and --prune cannot be used together")
	}

	store, err := openExistingStore(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if store == nil {
		fmt.Fprintln(out, "Cache is empty.")
		return nil
	}
	defer store.Close()

	ctx := cmd.Context()
	switch {
	case clearAll:
		n, err := store.ClearChecks(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d cached checks.\n", n)
	case prune:
		n, err := store.PruneChecks(ctx, time.Now().Add(-ttl))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pruned %d stale checks.\n", n)
	default:
		total, err := store.CountChecks(ctx)
		if err != nil {
			return err
		}
		fresh, err := store.LoadChecks(ctx, time.Now().Add(-ttl))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Cache: %s\n", store.Path())
		fmt.Fprintf(out, "  entries: %d\n", total)
		fmt.Fprintf(out, "  fresh:   %d (within %s)\n", len(fresh), ttl)
	}
	return nil
}
