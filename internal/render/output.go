// Package render provides output formatting for terminal consumption.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/joss/autopilot/internal/domain"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Orchestrations formats a run list, newest first.
func (r *Renderer) Orchestrations(runs []*domain.OrchestrationExecution) string {
	if len(runs) == 0 {
		return "No orchestrations found"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Orchestrations\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, o := range runs {
		if r.pretty {
			fmt.Fprintf(&sb, "%s %s  %s/%s  $%.2f\n",
				statusMark(string(o.Status)), shortID(o.ID), o.Phase, o.Status, o.TotalCostUSD)
		} else {
			fmt.Fprintf(&sb, "%s phase=%s status=%s cost=%.2f\n",
				o.ID, o.Phase, o.Status, o.TotalCostUSD)
		}
	}
	return sb.String()
}

// Orchestration formats the full state of one run.
func (r *Renderer) Orchestration(o *domain.OrchestrationExecution) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Orchestration %s\n", o.ID))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
		fmt.Fprintf(&sb, "  Status:   %s\n", coloredStatus(string(o.Status)))
		fmt.Fprintf(&sb, "  Phase:    %s\n", o.Phase)
		fmt.Fprintf(&sb, "  Project:  %s\n", o.ProjectID)
		fmt.Fprintf(&sb, "  Cost:     $%.2f total, $%.2f healing\n", o.TotalCostUSD, o.HealingCostUSD)
		fmt.Fprintf(&sb, "  Oracle:   %d decisions used\n", o.DecisionsUsed)
		if o.AttentionReason != "" {
			fmt.Fprintf(&sb, "  Attention: %s\n", color.RedString(o.AttentionReason))
		}
	} else {
		fmt.Fprintf(&sb, "id=%s status=%s phase=%s project=%s cost=%.2f healing=%.2f decisions=%d\n",
			o.ID, o.Status, o.Phase, o.ProjectID, o.TotalCostUSD, o.HealingCostUSD, o.DecisionsUsed)
		if o.AttentionReason != "" {
			fmt.Fprintf(&sb, "attention=%s\n", o.AttentionReason)
		}
	}

	if o.Batches != nil {
		if r.pretty {
			fmt.Fprintf(&sb, "\n  Batches (%d/%d):\n", o.Batches.Current, o.Batches.Total)
			for _, b := range o.Batches.Items {
				heal := ""
				if b.HealAttempts > 0 {
					heal = fmt.Sprintf(" heals=%d", b.HealAttempts)
				}
				fmt.Fprintf(&sb, "    %s %d. %s  %s  $%.2f%s\n",
					statusMark(string(b.Status)), b.Index+1, b.Section, b.Status, b.CostUSD, heal)
			}
		} else {
			for _, b := range o.Batches.Items {
				fmt.Fprintf(&sb, "batch=%d section=%s status=%s heals=%d cost=%.2f\n",
					b.Index, b.Section, b.Status, b.HealAttempts, b.CostUSD)
			}
		}
	}

	if o.ActiveExecutionID != "" {
		kind := "execution"
		if o.ActiveIsHealer {
			kind = "healer"
		}
		if r.pretty {
			fmt.Fprintf(&sb, "\n  Active %s: %s\n", kind, o.ActiveExecutionID)
		} else {
			fmt.Fprintf(&sb, "active_%s=%s\n", kind, o.ActiveExecutionID)
		}
	}

	return sb.String()
}

// Decisions formats the append-only decision log of a run.
func (r *Renderer) Decisions(entries []domain.DecisionEntry) string {
	if len(entries) == 0 {
		return "No decisions recorded"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Decision Log\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, d := range entries {
		timeStr := d.At.Format("15:04:05")
		if r.pretty {
			fmt.Fprintf(&sb, "%s [%s] %s", color.HiBlackString(timeStr), d.Phase, d.Action)
			if d.Detail != "" {
				fmt.Fprintf(&sb, ": %s", d.Detail)
			}
			sb.WriteString("\n")
		} else {
			fmt.Fprintf(&sb, "[%s] phase=%s action=%s detail=%s\n", timeStr, d.Phase, d.Action, d.Detail)
		}
	}
	return sb.String()
}

// Executions formats a workflow execution list, newest first.
func (r *Renderer) Executions(execs []*domain.WorkflowExecution) string {
	if len(execs) == 0 {
		return "No executions found"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Workflow Executions\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, e := range execs {
		if r.pretty {
			fmt.Fprintf(&sb, "%s %s  %s  %s  $%.2f\n",
				statusMark(string(e.Status)), shortID(e.ID), e.Skill, e.Status, e.CostUSD)
		} else {
			fmt.Fprintf(&sb, "%s skill=%s status=%s cost=%.2f\n", e.ID, e.Skill, e.Status, e.CostUSD)
		}
	}
	return sb.String()
}

// Execution formats one workflow execution in full.
func (r *Renderer) Execution(e *domain.WorkflowExecution) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Execution %s\n", e.ID))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
		fmt.Fprintf(&sb, "  Skill:    %s\n", e.Skill)
		fmt.Fprintf(&sb, "  Status:   %s\n", coloredStatus(string(e.Status)))
		fmt.Fprintf(&sb, "  Project:  %s\n", e.ProjectID)
		fmt.Fprintf(&sb, "  Cost:     $%.2f\n", e.CostUSD)
		if e.SessionID != "" {
			fmt.Fprintf(&sb, "  Session:  %s\n", e.SessionID)
		}
		if !e.StartedAt.IsZero() && e.Status.Terminal() {
			fmt.Fprintf(&sb, "  Took:     %s\n", FormatDuration(e.UpdatedAt.Sub(e.StartedAt)))
		}
		if e.FailureReason != "" {
			fmt.Fprintf(&sb, "  Failure:  %s\n", color.RedString(e.FailureReason))
		}
		if len(e.Result) > 0 {
			fmt.Fprintf(&sb, "  Result:   %s\n", truncate(string(e.Result), 120))
		}
	} else {
		fmt.Fprintf(&sb, "id=%s skill=%s status=%s project=%s cost=%.2f session=%s\n",
			e.ID, e.Skill, e.Status, e.ProjectID, e.CostUSD, e.SessionID)
		if e.FailureReason != "" {
			fmt.Fprintf(&sb, "failure=%s\n", e.FailureReason)
		}
	}

	if len(e.Questions) > 0 {
		if r.pretty {
			sb.WriteString("\n  Questions:\n")
			for _, q := range e.Questions {
				fmt.Fprintf(&sb, "    %s %s\n", color.YellowString("?"), q)
			}
		} else {
			for _, q := range e.Questions {
				fmt.Fprintf(&sb, "question=%s\n", q)
			}
		}
	}

	return sb.String()
}

// Projects formats the project registry.
func (r *Renderer) Projects(projects []*domain.Project) string {
	if len(projects) == 0 {
		return "No projects registered"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Projects\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, p := range projects {
		if r.pretty {
			fmt.Fprintf(&sb, "  %s  %s  %s\n", shortID(p.ID), p.Name, color.HiBlackString(p.Path))
		} else {
			fmt.Fprintf(&sb, "%s name=%s path=%s\n", p.ID, p.Name, p.Path)
		}
	}
	return sb.String()
}

func statusMark(status string) string {
	switch status {
	case "completed", "complete":
		return color.GreenString("✓")
	case "failed":
		return color.RedString("✗")
	case "running", "healing":
		return color.YellowString("▸")
	case "waiting_for_input", "waiting_merge", "needs_attention":
		return color.YellowString("?")
	case "paused":
		return color.HiBlackString("‖")
	default:
		return "•"
	}
}

func coloredStatus(status string) string {
	switch status {
	case "completed", "complete":
		return color.GreenString(status)
	case "failed", "cancelled", "needs_attention":
		return color.RedString(status)
	case "running":
		return color.YellowString(status)
	default:
		return status
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
