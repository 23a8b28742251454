package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/raphaelgruber/serpcluster/internal/service"
)

const pollInterval = 500 * time.Millisecond

// runSource returns the current state of a run. Local runs read the
// in-process RunManager; remote runs ask the server.
type runSource func(ctx context.Context) (*service.RunSnapshot, error)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

type tickMsg time.Time

type runUpdateMsg struct {
	run *service.RunSnapshot
	err error
}

// progressModel is the bubbletea model for run progress.
type progressModel struct {
	source   runSource
	runID    string
	detached bool // Ctrl+C leaves the run going instead of cancelling it
	run      *service.RunSnapshot
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(source runSource, run *service.RunSnapshot, detached bool) progressModel {
	return progressModel{
		source:   source,
		runID:    run.ID,
		detached: detached,
		run:      run,
		progress: progress.New(progress.WithDefaultBlend(), progress.WithWidth(40)),
		theme:    defaultTheme,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.progress.Init())
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchRun()

	case runUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch run status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.run = msg.run
		if m.run.Done() {
			m.done = true
			if m.run.Status == service.RunStatusFailed {
				m.err = fmt.Errorf("%s", m.run.Error)
			}
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}
	if m.run == nil {
		return "Loading run status...\n"
	}

	var pct float64
	if m.run.Total > 0 {
		pct = float64(m.run.Progress) / float64(m.run.Total)
	}

	label := string(m.run.Status)
	if m.run.Kind != "" {
		label = fmt.Sprintf("%s %s", m.run.Kind, m.run.Phase)
	}
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", label))
	counts := fmt.Sprintf("%d/%d keywords", m.run.Progress, m.run.Total)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", status, m.progress.ViewAs(pct), counts)
	if m.run.Message != "" {
		b.WriteString(m.theme.hintStyle().Render(m.run.Message) + "\n")
	}
	if m.detached {
		b.WriteString(m.theme.hintStyle().Render("Press Ctrl+C to continue in background") + "\n")
	} else {
		b.WriteString(m.theme.hintStyle().Render("Press Ctrl+C to cancel") + "\n")
	}
	return b.String()
}

func (m progressModel) finalView() string {
	if m.quitting {
		if m.detached {
			return m.theme.hintStyle().Render(fmt.Sprintf(
				"\nRun %s continues in background.\nUse 'serpcluster runs %s' to check status.\n", m.runID, m.runID))
		}
		return m.theme.hintStyle().Render("\nCancelled.\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Run failed: %s\n", m.err))
	}
	return m.theme.completedStyle().Render("✓ Completed") + "\n\n"
}

// fetchRun runs in a command so Update never blocks.
func (m progressModel) fetchRun() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		run, err := m.source(ctx)
		return runUpdateMsg{run: run, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// interactive reports whether progress can be drawn on the terminal.
func interactive() bool {
	return outputFormat == formatTable && term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// errInterrupted is returned when the user leaves the progress view early.
var errInterrupted = errors.New("interrupted")

// followRun shows progress until the run finishes and returns its final
// snapshot. On a terminal it draws a progress bar; otherwise it logs phase
// changes to stderr.
func followRun(ctx context.Context, source runSource, run *service.RunSnapshot, detached bool) (*service.RunSnapshot, error) {
	if !interactive() {
		return pollRun(ctx, source)
	}

	p := tea.NewProgram(newProgressModel(source, run, detached))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("progress UI error: %w", err)
	}

	m, ok := final.(progressModel)
	if !ok {
		return nil, fmt.Errorf("unexpected progress model %T", final)
	}
	if m.quitting {
		return m.run, errInterrupted
	}
	if m.err != nil {
		return m.run, m.err
	}
	return m.run, nil
}

func pollRun(ctx context.Context, source runSource) (*service.RunSnapshot, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastPhase string
	for {
		run, err := source(ctx)
		if err != nil {
			return nil, err
		}

		phase := fmt.Sprintf("%s %s", run.Kind, run.Phase)
		if run.Kind != "" && phase != lastPhase {
			fmt.Fprintf(os.Stderr, "%s: %d/%d\n", phase, run.Progress, run.Total)
			lastPhase = phase
		}

		if run.Done() {
			if run.Status == service.RunStatusFailed {
				return run, fmt.Errorf("run failed: %s", run.Error)
			}
			return run, nil
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}
