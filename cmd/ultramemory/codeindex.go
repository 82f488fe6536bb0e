package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"dev.vasic.ultramemory/internal/repoingest"
)

func runCodeIndex(a *app, args []string) {
	fs := flag.NewFlagSet("code-index", flag.ExitOnError)
	category := fs.String("c", "", "organisational category (fixed set)")
	force := fs.Bool("f", false, "reindex every file, ignoring the incremental skip")
	limit := fs.Int("l", 0, "cap the number of files indexed (0 = no cap)")
	var excludes multiFlag
	fs.Var(&excludes, "e", "extra directory to exclude, repeatable")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: ultramemory code-index <owner/repo|url> [-c category] [-f] [-l N] [-e pattern ...]")
		os.Exit(1)
	}

	if err := a.connectCore(context.Background()); err != nil {
		fatal(a, err)
	}
	defer a.close()

	result, err := a.ingestor.Ingest(context.Background(), fs.Arg(0), repoingest.Options{
		Category:        *category,
		Force:           *force,
		Limit:           *limit,
		ExcludePatterns: excludes,
	})
	if err != nil {
		fatal(a, fmt.Errorf("code-index failed: %w", err))
	}

	fmt.Printf("%s (%s, %s) — head %s\n", result.Repo, result.Category, result.Visibility, result.HeadSHA)
	fmt.Printf("total=%d indexed=%d updated=%d skipped=%d\n", result.TotalFiles, result.FilesIndexed, result.FilesUpdated, result.FilesSkipped)
	for _, e := range result.Errors {
		fmt.Printf("  error: %s: %s\n", e.File, e.Error)
	}
}
