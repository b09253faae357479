package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/docsmith-ai/docsmith/engine/domain"
	"github.com/docsmith-ai/docsmith/engine/rag"
)

func newQueryCmd(logger *slog.Logger) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "query <slug> <question>",
		Short: "Search a project's documentation and print the matching passages",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, query := args[0], args[1]
			if err := domain.ValidateSlug(slug); err != nil {
				return err
			}
			if err := domain.ValidateQuery(query); err != nil {
				return err
			}

			svc, cleanup, err := newRAG(logger)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := svc.Search(cmd.Context(), domain.CollectionName(slug), query, topK)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of passages to return (default: service default)")
	return cmd
}

func newAskCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <slug> <question>",
		Short: "Ask a question about a project's documentation and stream the answer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, query := args[0], args[1]
			if err := domain.ValidateSlug(slug); err != nil {
				return err
			}
			if err := domain.ValidateQuery(query); err != nil {
				return err
			}

			svc, cleanup, err := newRAG(logger)
			if err != nil {
				return err
			}
			defer cleanup()

			for ev := range svc.Ask(cmd.Context(), domain.CollectionName(slug), query) {
				switch e := ev.(type) {
				case rag.References:
					fmt.Println("Sources:")
					for _, p := range e {
						fmt.Printf("  %s — %s\n", p.Path, p.PageTitle)
					}
					fmt.Println()
				case rag.PartialAnswer:
					fmt.Print(string(e))
				case rag.Failure:
					fmt.Println()
					return fmt.Errorf("%s", string(e))
				}
			}
			fmt.Println()
			return nil
		},
	}
}
