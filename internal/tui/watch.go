// Package tui provides a live terminal view of a running orchestration
// using Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joss/autopilot/internal/domain"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginLeft(2)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// Controller is the slice of the orchestration engine the watch view
// drives: polling plus the operator actions bound to keys.
type Controller interface {
	Poll(ctx context.Context, id string) (*domain.OrchestrationExecution, error)
	Pause(ctx context.Context, id string) (*domain.OrchestrationExecution, error)
	ResumeRun(ctx context.Context, id string) (*domain.OrchestrationExecution, error)
	TriggerMerge(ctx context.Context, id string) (*domain.OrchestrationExecution, error)
}

// Run starts the watch view and blocks until it exits.
func Run(engine Controller, runID string, poll time.Duration) error {
	p := tea.NewProgram(New(engine, runID, poll))
	_, err := p.Run()
	return err
}

// Message types
type runMsg *domain.OrchestrationExecution
type errMsg error
type tickMsg time.Time

// Model is the watch TUI model.
type Model struct {
	engine Controller
	runID  string
	poll   time.Duration

	run      *domain.OrchestrationExecution
	err      error
	quitting bool

	spinner spinner.Model
	width   int
}

// New creates a watch model for one orchestration.
func New(engine Controller, runID string, poll time.Duration) Model {
	if poll <= 0 {
		poll = 3 * time.Second
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		engine:  engine,
		runID:   runID,
		poll:    poll,
		spinner: s,
	}
}

// Init initializes the TUI
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.pollCmd(),
		m.tickCmd(),
	)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "p":
			if m.run != nil && m.run.Status == domain.OrchRunning {
				return m, m.actionCmd(m.engine.Pause)
			}
		case "r":
			if m.run != nil && m.run.Status == domain.OrchPaused {
				return m, m.actionCmd(m.engine.ResumeRun)
			}
		case "m":
			if m.run != nil && m.run.Status == domain.OrchWaitingMerge {
				return m, m.actionCmd(m.engine.TriggerMerge)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case runMsg:
		m.run = msg
		m.err = nil

	case errMsg:
		m.err = msg

	case tickMsg:
		cmds = append(cmds, m.pollCmd(), m.tickCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Autopilot  "+shortID(m.runID)) + "\n\n")

	if m.run == nil {
		b.WriteString(fmt.Sprintf("  %s loading...\n", m.spinner.View()))
		return b.String()
	}

	o := m.run
	var body strings.Builder

	statusLine := string(o.Status)
	switch o.Status {
	case domain.OrchRunning:
		statusLine = activeStyle.Render(statusLine) + " " + m.spinner.View()
	case domain.OrchFailed, domain.OrchNeedsAttention:
		statusLine = errorStyle.Render(statusLine)
	}
	fmt.Fprintf(&body, "Status  %s\n", statusLine)
	fmt.Fprintf(&body, "Phase   %s\n", o.Phase)
	fmt.Fprintf(&body, "Cost    $%.2f total  $%.2f healing\n", o.TotalCostUSD, o.HealingCostUSD)
	if o.AttentionReason != "" {
		fmt.Fprintf(&body, "Reason  %s\n", errorStyle.Render(o.AttentionReason))
	}

	if o.Batches != nil {
		fmt.Fprintf(&body, "\nBatches %d/%d\n", o.Batches.Current, o.Batches.Total)
		for _, item := range o.Batches.Items {
			mark := "·"
			switch item.Status {
			case domain.BatchCompleted:
				mark = activeStyle.Render("✓")
			case domain.BatchFailed:
				mark = errorStyle.Render("✗")
			case domain.BatchRunning, domain.BatchHealing:
				mark = m.spinner.View()
			}
			fmt.Fprintf(&body, "  %s %s (%s)\n", mark, item.Section, item.Status)
		}
	}

	if o.ActiveExecutionID != "" {
		kind := "exec"
		if o.ActiveIsHealer {
			kind = "healer"
		}
		fmt.Fprintf(&body, "\n%s %s\n", infoStyle.Render(kind), shortID(o.ActiveExecutionID))
	}

	b.WriteString(boxStyle.Render(body.String()) + "\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	}

	b.WriteString(helpStyle.Render("p pause · r resume · m merge · q quit"))
	return b.String()
}

func (m Model) pollCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		o, err := m.engine.Poll(ctx, m.runID)
		if err != nil {
			return errMsg(err)
		}
		return runMsg(o)
	}
}

func (m Model) actionCmd(fn func(context.Context, string) (*domain.OrchestrationExecution, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		o, err := fn(ctx, m.runID)
		if err != nil {
			return errMsg(err)
		}
		return runMsg(o)
	}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.poll, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
