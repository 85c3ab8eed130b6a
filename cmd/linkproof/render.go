package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/linkproof/internal/log"
	"github.com/nao1215/linkproof/internal/render"
	"github.com/spf13/cobra"
)

// NewRenderCmd creates the render command.
func NewRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render [src] [out]",
		Short: "Render Markdown to HTML, optionally checking the result",
		Long: `Render converts every Markdown file under src (default "docs") into an
HTML page under out (default "out"), keeping the directory structure.
Headings get GitHub-style ids and relative links to .md files are pointed
at the rendered .html pages. Other files are copied as they are.

With --check the output directory is then checked as by "linkproof check",
using the same configuration file and exit status.

Examples:
  # Render docs/ into out/
  linkproof render

  # Render and check without network access
  linkproof render docs site --check --offline`,
		Args: cobra.MaximumNArgs(2),
		RunE: runRenderCmd,
	}

	cmd.Flags().Bool("check", false, "Check the rendered site")
	addCheckFlags(cmd)
	return cmd
}

// runRenderCmd executes the render command.
func runRenderCmd(cmd *cobra.Command, args []string) error {
	src, out := "docs", "out"
	if len(args) > 0 {
		src = args[0]
	}
	if len(args) > 1 {
		out = args[1]
	}

	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return fmt.Errorf("source directory not found: %s", src)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := render.New(render.WithLogger(logger)).RenderDir(ctx, src, out)
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Rendered %d pages and copied %d files to %s\n", result.Rendered, result.Copied, out)

	check, err := cmd.Flags().GetBool("check")
	if err != nil {
		return err
	}
	if !check {
		return nil
	}
	return runCheckCmd(cmd, []string{out})
}
