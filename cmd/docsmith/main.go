// Package main implements the docsmith CLI: fetching or crawling a
// project's documentation, processing it into embeddable documents,
// embedding it into the vector store, and querying it.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:           "docsmith",
		Short:         "Docsmith indexes project documentation and answers questions about it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newFetchCmd(logger),
		newCrawlCmd(logger),
		newProcessCmd(logger),
		newEmbedCmd(logger),
		newQueryCmd(logger),
		newAskCmd(logger),
		newProjectCmd(logger),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
