package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docsmith-ai/docsmith/engine/domain"
)

func newProjectCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage the project registry",
	}
	cmd.AddCommand(
		newProjectCreateCmd(logger),
		newProjectListCmd(logger),
		newProjectDeleteCmd(logger),
	)
	return cmd
}

func newProjectCreateCmd(logger *slog.Logger) *cobra.Command {
	var origins []string
	var name string

	cmd := &cobra.Command{
		Use:   "create <slug>",
		Short: "Register a project and its allowed origins",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug := args[0]
			if err := domain.ValidateSlug(slug); err != nil {
				return err
			}
			if name == "" {
				name = slug
			}

			projects, cleanup, err := newProjects(logger)
			if err != nil {
				return err
			}
			defer cleanup()

			p := domain.Project{
				ID:        uuid.NewString(),
				Name:      name,
				Origins:   origins,
				Status:    domain.ProjectStatusCreated,
				IndexName: domain.CollectionName(slug),
			}
			if err := projects.Save(cmd.Context(), p); err != nil {
				return err
			}

			logger.Info("project created", "id", p.ID, "slug", slug)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (default: the slug)")
	cmd.Flags().StringSliceVar(&origins, "origin", nil, "origin allowed to embed the widget (repeatable)")
	return cmd
}

func newProjectListCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, cleanup, err := newProjects(logger)
			if err != nil {
				return err
			}
			defer cleanup()

			all, err := projects.List(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(all)
		},
	}
}

func newProjectDeleteCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project and its vector collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			projects, cleanup, err := newProjects(logger)
			if err != nil {
				return err
			}
			defer cleanup()

			p, err := projects.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			if p.IndexName != "" {
				store, err := newStore(logger)
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.DeleteCollection(cmd.Context(), p.IndexName); err != nil {
					return fmt.Errorf("delete collection: %w", err)
				}
			}

			if err := projects.Delete(cmd.Context(), id); err != nil {
				return err
			}
			logger.Info("project deleted", "id", id)
			return nil
		},
	}
}
