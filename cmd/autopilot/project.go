package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joss/autopilot/internal/domain"
	"github.com/joss/autopilot/internal/render"
)

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project registry",
		Long:  "Register and list projects runs can target",
	}

	cmd.AddCommand(projectRegisterCmd(), projectListCmd())
	return cmd
}

func projectRegisterCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "register <path>",
		Short: "Register a project directory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path, err := filepath.Abs(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if info, err := os.Stat(path); err != nil || !info.IsDir() {
				fmt.Fprintf(os.Stderr, "Error: not a directory: %s\n", path)
				os.Exit(1)
			}

			if name == "" {
				name = filepath.Base(path)
			}

			p := &domain.Project{
				ID:        uuid.NewString(),
				Name:      name,
				Path:      path,
				CreatedAt: time.Now().UTC(),
			}
			if err := store.CreateProject(context.Background(), p); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("✓ Registered %s (%s)\n", p.Name, p.ID)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Project name (defaults to directory name)")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		Run: func(cmd *cobra.Command, args []string) {
			projects, err := store.ListProjects(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			r := render.New(pretty)
			fmt.Print(r.Projects(projects))
		},
	}
}
