package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joss/autopilot/internal/render"
	"github.com/joss/autopilot/internal/workflow"
)

func workflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Individual agent executions",
		Long:  "Start, inspect, and manage individual agent workflow executions",
	}

	cmd.AddCommand(
		workflowRunCmd(),
		workflowListCmd(),
		workflowGetCmd(),
		workflowAnswerCmd(),
		workflowCancelCmd(),
		workflowReconcileCmd(),
	)
	return cmd
}

func workflowRunCmd() *cobra.Command {
	var (
		projectID string
		skill     string
		tasks     string
		extraCtx  string
		wait      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single skill invocation",
		Long: `Invoke the agent once for a skill, outside any orchestration.

Examples:
  autopilot workflow run -p myproj --skill analyze
  autopilot workflow run -p myproj --skill implement --tasks t1,t2 --wait`,
		Run: func(cmd *cobra.Command, args []string) {
			if projectID == "" || skill == "" {
				fmt.Fprintln(os.Stderr, "Error: --project and --skill required")
				os.Exit(1)
			}

			ctx := context.Background()
			e, err := supervisor.Start(ctx, workflow.StartOptions{
				ProjectID: projectID,
				Skill:     skill,
				TaskIDs:   splitCSV(tasks),
				Context:   extraCtx,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			if wait {
				if err := supervisor.Wait(ctx, e.ID); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					os.Exit(1)
				}
				e, err = supervisor.Get(ctx, e.ID)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					os.Exit(1)
				}
			}

			r := render.New(pretty)
			fmt.Print(r.Execution(e))
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project id")
	cmd.Flags().StringVar(&skill, "skill", "", "Skill identifier")
	cmd.Flags().StringVar(&tasks, "tasks", "", "Comma-separated task ids")
	cmd.Flags().StringVar(&extraCtx, "context", "", "Additional context for the agent")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the execution settles")
	return cmd
}

func workflowListCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			execs, err := supervisor.List(context.Background(), projectID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			r := render.New(pretty)
			fmt.Print(r.Executions(execs))
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Filter by project")
	return cmd
}

func workflowGetCmd() *cobra.Command {
	var showOutput bool

	cmd := &cobra.Command{
		Use:   "get <execution-id>",
		Short: "Show one execution",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			e, err := supervisor.Get(context.Background(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			r := render.New(pretty)
			fmt.Print(r.Execution(e))
			if showOutput && e.Output != "" {
				fmt.Println()
				fmt.Println(e.Output)
			}
		},
	}

	cmd.Flags().BoolVarP(&showOutput, "output", "o", false, "Include raw agent output")
	return cmd
}

func workflowAnswerCmd() *cobra.Command {
	var (
		answersJSON string
		answerPairs []string
	)

	cmd := &cobra.Command{
		Use:   "answer <execution-id>",
		Short: "Answer a waiting execution and resume it",
		Long: `Resume an execution that stopped with questions.

Answers merge into any previously supplied set; on conflicting keys the
new value wins.

Examples:
  autopilot workflow answer 01H... --answer db=postgres --answer region=eu
  autopilot workflow answer 01H... --answers '{"db":"postgres"}'`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var answers map[string]string
			if answersJSON != "" {
				if err := json.Unmarshal([]byte(answersJSON), &answers); err != nil {
					fmt.Fprintf(os.Stderr, "Error: invalid --answers: %v\n", err)
					os.Exit(1)
				}
			}
			for _, pair := range answerPairs {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					fmt.Fprintf(os.Stderr, "Error: invalid --answer %q, want key=value\n", pair)
					os.Exit(1)
				}
				if answers == nil {
					answers = make(map[string]string)
				}
				answers[k] = v
			}

			e, err := supervisor.Resume(context.Background(), args[0], answers)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			r := render.New(pretty)
			fmt.Print(r.Execution(e))
		},
	}

	cmd.Flags().StringVar(&answersJSON, "answers", "", "Answers as a JSON object")
	cmd.Flags().StringArrayVar(&answerPairs, "answer", nil, "Single answer as key=value (repeatable)")
	return cmd
}

func workflowCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <execution-id>",
		Short: "Cancel a running or waiting execution",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			e, err := supervisor.Cancel(context.Background(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✓ Cancelled %s\n", e.ID)
		},
	}
}

func workflowReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Fail running executions whose process is gone",
		Long: `Scan running executions and mark those whose backing process no
longer exists as failed. Run after an unclean shutdown.`,
		Run: func(cmd *cobra.Command, args []string) {
			reclassified, err := supervisor.Reconcile(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			if len(reclassified) == 0 {
				fmt.Println("Nothing to reconcile")
				return
			}
			for _, e := range reclassified {
				fmt.Printf("✗ %s marked failed (%s)\n", e.ID, e.FailureReason)
			}
		},
	}
}
