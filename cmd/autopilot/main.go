// Package main provides the autopilot CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joss/autopilot/internal/activity"
	"github.com/joss/autopilot/internal/config"
	"github.com/joss/autopilot/internal/exec"
	"github.com/joss/autopilot/internal/orchestrator"
	"github.com/joss/autopilot/internal/skills"
	"github.com/joss/autopilot/internal/storage"
	"github.com/joss/autopilot/internal/workflow"
)

var (
	version = "0.1.0"
	pretty  = true

	store      *storage.Storage
	supervisor *workflow.Supervisor
	engine     *orchestrator.Engine
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "autopilot",
		Short: "Multi-phase agent orchestration",
		Long: `Autopilot: multi-phase orchestration of external compute agents.

A run walks a project through design, analyze, implement (in batches),
verify, and merge, invoking an external agent per phase, healing failed
batches, and enforcing cost ceilings.

Use 'autopilot project register' first, then 'autopilot orchestrate start'.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				pretty = false
			}

			var err error
			store, err = storage.New(config.Env().DataDir)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}

			supervisor = workflow.NewSupervisor(store, exec.NewOSRunner(), workflow.ConfigFromEnv())
			engine = orchestrator.NewEngine(store, supervisor, skills.Default(), orchestrator.EngineConfig{
				StaleAfter: config.Env().StaleAfter,
				Probe:      activity.NewProbe(),
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if store != nil {
				store.Close()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "runs", Title: "Orchestration:"},
		&cobra.Group{ID: "infra", Title: "Infrastructure:"},
	)

	orchestrate := orchestrateCmd()
	orchestrate.GroupID = "runs"
	rootCmd.AddCommand(orchestrate)

	wf := workflowCmd()
	wf.GroupID = "runs"
	rootCmd.AddCommand(wf)

	project := projectCmd()
	project.GroupID = "infra"
	rootCmd.AddCommand(project)

	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show autopilot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("autopilot version %s\n", version)
		},
	}
}
