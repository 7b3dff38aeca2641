package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joss/autopilot/internal/config"
	"github.com/joss/autopilot/internal/domain"
	"github.com/joss/autopilot/internal/render"
	"github.com/joss/autopilot/internal/tui"
)

func orchestrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orchestrate",
		Short: "Multi-phase orchestration runs",
		Long:  "Start, observe, and steer multi-phase orchestration runs",
	}

	cmd.AddCommand(
		orchestrateStartCmd(),
		orchestrateStatusCmd(),
		orchestrateListCmd(),
		orchestratePauseCmd(),
		orchestrateResumeCmd(),
		orchestrateCancelCmd(),
		orchestrateRecoverCmd(),
		orchestrateMergeCmd(),
		orchestrateDecisionsCmd(),
		orchestrateWatchCmd(),
	)
	return cmd
}

func orchestrateStartCmd() *cobra.Command {
	var (
		projectID string
		tasks     string
		sections  []string
		extraCtx  string

		skipDesign  bool
		skipAnalyze bool
		skipVerify  bool
		skipMerge   bool

		autoMerge    bool
		autoHeal     bool
		maxHeal      int
		batchSize    int
		pauseBetween bool

		maxTotal     float64
		maxBatch     float64
		maxHealing   float64
		maxDecisions int
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an orchestration run",
		Long: `Start a multi-phase run for a registered project.

Task grouping:
  --section "auth=t1,t2" --section "api=t3"   one batch per section
  --tasks t1,t2,t3                            flat list, split by --batch-size

Examples:
  autopilot orchestrate start -p myproj --tasks t1,t2,t3
  autopilot orchestrate start -p myproj --section "core=t1,t2" --skip-design
  autopilot orchestrate start -p myproj --tasks t1 --max-total 50 --auto-merge`,
		Run: func(cmd *cobra.Command, args []string) {
			if projectID == "" {
				projectID = config.Env().Project
			}
			if projectID == "" {
				fmt.Fprintln(os.Stderr, "Error: --project required (or set AUTOPILOT_PROJECT)")
				os.Exit(1)
			}

			taskSections, err := parseSections(sections)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			var taskIDs []string
			if tasks != "" {
				taskIDs = splitCSV(tasks)
			}
			if len(taskSections) == 0 && len(taskIDs) == 0 {
				fmt.Fprintln(os.Stderr, "Error: no tasks given (use --tasks or --section)")
				os.Exit(1)
			}

			cfg := domain.OrchestrationConfig{
				SkipDesign:          skipDesign,
				SkipAnalyze:         skipAnalyze,
				SkipVerify:          skipVerify,
				SkipMerge:           skipMerge,
				AutoMerge:           autoMerge,
				AutoHeal:            autoHeal,
				MaxHealAttempts:     maxHeal,
				FallbackBatchSize:   batchSize,
				PauseBetweenBatches: pauseBetween,
				AdditionalContext:   extraCtx,
				Budget: domain.Budget{
					MaxTotalUSD:    maxTotal,
					MaxPerBatchUSD: maxBatch,
					HealingUSD:     maxHealing,
					MaxDecisions:   maxDecisions,
				},
			}

			o, err := engine.StartRun(context.Background(), projectID, cfg, taskSections, taskIDs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			r := render.New(pretty)
			fmt.Print(r.Orchestration(o))
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project id")
	cmd.Flags().StringVar(&tasks, "tasks", "", "Comma-separated task ids")
	cmd.Flags().StringArrayVar(&sections, "section", nil, "Task section as name=id1,id2 (repeatable)")
	cmd.Flags().StringVar(&extraCtx, "context", "", "Additional context forwarded to every agent invocation")

	cmd.Flags().BoolVar(&skipDesign, "skip-design", false, "Skip the design phase")
	cmd.Flags().BoolVar(&skipAnalyze, "skip-analyze", false, "Skip the analyze phase")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Skip the verify phase")
	cmd.Flags().BoolVar(&skipMerge, "skip-merge", false, "Skip the merge phase")

	cmd.Flags().BoolVar(&autoMerge, "auto-merge", false, "Run merge without waiting for approval")
	cmd.Flags().BoolVar(&autoHeal, "auto-heal", true, "Heal failed batches automatically")
	cmd.Flags().IntVar(&maxHeal, "max-heal", 2, "Heal attempts per batch")
	cmd.Flags().IntVar(&batchSize, "batch-size", 5, "Fallback batch size for flat task lists")
	cmd.Flags().BoolVar(&pauseBetween, "pause-between", false, "Pause after each completed batch")

	cmd.Flags().Float64Var(&maxTotal, "max-total", 0, "Total cost ceiling in USD (0 = unlimited)")
	cmd.Flags().Float64Var(&maxBatch, "max-batch", 0, "Per-batch cost ceiling in USD (0 = unlimited)")
	cmd.Flags().Float64Var(&maxHealing, "max-healing", 0, "Healing cost ceiling in USD (0 = unlimited)")
	cmd.Flags().IntVar(&maxDecisions, "max-decisions", 0, "Oracle decision ceiling (0 = unlimited)")

	return cmd
}

func orchestrateStatusCmd() *cobra.Command {
	var poll bool

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show run state",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			var o *domain.OrchestrationExecution
			var err error
			if poll {
				// Poll advances the state machine before reporting.
				o, err = engine.Poll(ctx, args[0])
			} else {
				o, err = engine.GetRun(ctx, args[0])
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			r := render.New(pretty)
			fmt.Print(r.Orchestration(o))
		},
	}

	cmd.Flags().BoolVar(&poll, "poll", false, "Advance the run before reporting")
	return cmd
}

func orchestrateListCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			runs, err := engine.ListRuns(context.Background(), projectID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			r := render.New(pretty)
			fmt.Print(r.Orchestrations(runs))
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Filter by project")
	return cmd
}

func orchestratePauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <run-id>",
		Short: "Pause a running orchestration",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			o, err := engine.Pause(context.Background(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✓ Paused %s (phase %s)\n", o.ID, o.Phase)
		},
	}
}

func orchestrateResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume a paused orchestration",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			o, err := engine.ResumeRun(context.Background(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✓ Resumed %s (phase %s)\n", o.ID, o.Phase)
		},
	}
}

func orchestrateCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel an orchestration (irreversible)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			o, err := engine.CancelRun(context.Background(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✓ Cancelled %s\n", o.ID)
		},
	}
}

func orchestrateRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover <run-id> <retry|skip|abort>",
		Short: "Resolve a needs_attention run",
		Long: `Resolve a run stuck in needs_attention.

  retry   re-run the failed unit of work
  skip    mark the failed unit completed and move on
  abort   terminate the run as failed`,
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			o, err := engine.Recover(context.Background(), args[0], args[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			r := render.New(pretty)
			fmt.Print(r.Orchestration(o))
		},
	}
}

func orchestrateMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <run-id>",
		Short: "Approve and start the merge phase",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			o, err := engine.TriggerMerge(context.Background(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✓ Merge started for %s\n", o.ID)
		},
	}
}

func orchestrateDecisionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decisions <run-id>",
		Short: "Show the decision log of a run",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			o, err := engine.GetRun(context.Background(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			r := render.New(pretty)
			fmt.Print(r.Decisions(o.Decisions))
		},
	}
}

func orchestrateWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <run-id>",
		Short: "Watch a run live in the terminal",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := tui.Run(engine, args[0], config.Env().PollInterval); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
}

// parseSections turns repeated name=id1,id2 flags into task sections.
func parseSections(raw []string) ([]domain.TaskSection, error) {
	var sections []domain.TaskSection
	for _, s := range raw {
		name, ids, found := strings.Cut(s, "=")
		if !found || name == "" || ids == "" {
			return nil, fmt.Errorf("invalid section %q (want name=id1,id2)", s)
		}
		sections = append(sections, domain.TaskSection{
			Section: name,
			TaskIDs: splitCSV(ids),
		})
	}
	return sections, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
