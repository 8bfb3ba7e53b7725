// Package tui contains the Bubble Tea views used by the CLI.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rshade/phonelookup/internal/engine"
	"github.com/rshade/phonelookup/internal/engine/batch"
	"github.com/rshade/phonelookup/internal/usage"
)

// Layout defaults.
const (
	defaultWidth   = 80
	minBarWidth    = 20
	barPadding     = 4
	maxNumberWidth = 24
)

// EventMsg carries a runner event into the program.
type EventMsg struct {
	Event batch.Event
}

// UsageMsg reports the counter after an increment.
type UsageMsg struct {
	Record usage.Record
}

// DoneMsg is sent when a call to Runner.Run returns.
type DoneMsg struct {
	Result batch.Result
	Err    error
}

// Controller is the part of batch.Control the view drives.
type Controller interface {
	Pause()
	Resume()
	Stop()
	Paused() bool
}

// RunModel shows the progress of a batch run. Keys: p pauses or resumes,
// s stops (also from a pause), q quits once the run has ended.
type RunModel struct {
	title   string
	control Controller
	start   func() tea.Cmd
	limit   int

	bar     progress.Model
	spinner spinner.Model
	width   int

	state    batch.State
	reason   batch.Reason
	snapshot batch.ProgressSnapshot
	usage    usage.Record
	lastRow  string
	stopping bool
	result   *batch.Result
	err      error
	quitting bool
}

// NewRunModel builds the view. start launches one call to Runner.Run and
// must deliver its outcome as a DoneMsg; it is called again on resume.
func NewRunModel(title string, total, limit int, control Controller, start func() tea.Cmd) *RunModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = okStyle
	return &RunModel{
		title:    title,
		control:  control,
		start:    start,
		limit:    limit,
		bar:      progress.New(progress.WithDefaultGradient()),
		spinner:  sp,
		width:    defaultWidth,
		state:    batch.StateIdle,
		snapshot: batch.ProgressSnapshot{TotalItems: total},
	}
}

// Init starts the spinner and the run.
func (m *RunModel) Init() tea.Cmd {
	m.state = batch.StateRunning
	return tea.Batch(m.spinner.Tick, m.start())
}

// Result returns the outcome of the last run, once it has ended.
func (m *RunModel) Result() (*batch.Result, error) {
	return m.result, m.err
}

// Update handles messages.
func (m *RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(minBarWidth, msg.Width-barPadding)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		model, cmd := m.bar.Update(msg)
		if bar, ok := model.(progress.Model); ok {
			m.bar = bar
		}
		return m, cmd

	case EventMsg:
		return m.handleEvent(msg.Event)

	case UsageMsg:
		m.usage = msg.Record
		return m, nil

	case DoneMsg:
		return m.handleDone(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *RunModel) handleEvent(ev batch.Event) (tea.Model, tea.Cmd) {
	m.snapshot = ev.Progress
	if ev.Kind == batch.EventRow && ev.Row != nil {
		m.lastRow = describeRow(ev.Index, *ev.Row)
	}
	if ev.Kind == batch.EventCheckpointFailed && ev.Err != nil {
		m.lastRow = "checkpoint failed: " + ev.Err.Error()
	}
	return m, m.bar.SetPercent(ev.Progress.PercentComplete / 100)
}

func (m *RunModel) handleDone(msg DoneMsg) (tea.Model, tea.Cmd) {
	res := msg.Result
	m.state = res.State
	m.reason = res.Reason
	m.err = msg.Err
	m.result = &res
	return m, nil
}

func (m *RunModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch {
	case msg.Type == tea.KeyCtrlC:
		if m.running() {
			m.stopping = true
			m.control.Stop()
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case key == "p":
		switch {
		case m.running() && !m.stopping:
			m.control.Pause()
		case m.state == batch.StatePaused && m.reason == batch.ReasonUser:
			m.control.Resume()
			m.state = batch.StateRunning
			m.reason = batch.ReasonNone
			m.result, m.err = nil, nil
			return m, m.start()
		}
		return m, nil

	case key == "s":
		switch {
		case m.running():
			m.stopping = true
			m.control.Stop()
		case m.state == batch.StatePaused:
			// The runner has returned; run it once more so it records
			// the stop in the checkpoint.
			m.stopping = true
			m.control.Stop()
			m.state = batch.StateRunning
			m.result, m.err = nil, nil
			return m, m.start()
		}
		return m, nil

	case key == "q":
		if !m.running() {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *RunModel) running() bool {
	return m.state == batch.StateRunning
}

// View renders the model.
func (m *RunModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.stateLine())
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(m.snapshot.PercentComplete / 100))
	b.WriteString("\n\n")
	b.WriteString(m.countersLine())
	b.WriteString("\n")
	if line := m.usageLine(); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.lastRow != "" {
		b.WriteString(mutedStyle.Render(m.lastRow))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(m.helpLine()))
	return boxStyle.Render(b.String())
}

func (m *RunModel) stateLine() string {
	s := m.snapshot
	progressText := fmt.Sprintf("%s / %s rows", formatCount(s.ProcessedItems), formatCount(s.TotalItems))
	switch {
	case m.running() && m.stopping:
		return warningStyle.Render("Stopping after the current row… ") + progressText
	case m.running() && m.control.Paused():
		return warningStyle.Render("Pausing after the current row… ") + progressText
	case m.running():
		eta := ""
		if s.Remaining > 0 {
			eta = mutedStyle.Render(fmt.Sprintf("  ~%s left", s.Remaining.Round(time.Second)))
		}
		return m.spinner.View() + " Running  " + progressText + eta
	case m.state == batch.StateCompleted:
		return okStyle.Render("Completed  ") + progressText
	case m.state == batch.StatePaused && m.reason == batch.ReasonQuota:
		return warningStyle.Render("Paused: monthly limit reached  ") + progressText
	case m.state == batch.StatePaused && m.reason == batch.ReasonPersistFailed:
		return errorStyle.Render("Paused: results could not be saved  ") + progressText
	case m.state == batch.StatePaused:
		return warningStyle.Render("Paused  ") + progressText
	case m.state == batch.StateStopped:
		return warningStyle.Render("Stopped  ") + progressText
	case m.err != nil:
		return errorStyle.Render("Failed: " + m.err.Error())
	default:
		return mutedStyle.Render("Starting…")
	}
}

func (m *RunModel) countersLine() string {
	s := m.snapshot
	return fmt.Sprintf("%s  %s  %s",
		okStyle.Render("✓ "+formatCount(s.Success)+" found"),
		errorStyle.Render("✗ "+formatCount(s.Errors)+" failed"),
		mutedStyle.Render("- "+formatCount(s.Skipped)+" skipped"),
	)
}

func (m *RunModel) usageLine() string {
	if m.usage.Month == "" {
		return ""
	}
	line := fmt.Sprintf("API usage %s: %s", m.usage.Month, formatCount(m.usage.Count))
	if m.limit > 0 {
		line += " / " + formatCount(m.limit)
	}
	line += fmt.Sprintf(" (lifetime %s)", formatCount(m.usage.LifetimeTotal))
	if m.limit > 0 && m.usage.Count >= m.limit {
		return warningStyle.Render(line)
	}
	return line
}

func (m *RunModel) helpLine() string {
	switch {
	case m.running():
		return "p pause • s stop • ctrl+c stop"
	case m.state == batch.StatePaused && m.reason == batch.ReasonUser:
		return "p resume • s stop • q quit"
	case m.state == batch.StatePaused:
		return "s stop • q quit"
	default:
		return "q quit"
	}
}

func describeRow(idx int, row engine.OutputRow) string {
	number := row.Record.Number
	if len(number) > maxNumberWidth {
		number = number[:maxNumberWidth]
	}
	r := row.Result
	switch r.Status {
	case engine.StatusSuccess:
		if len(r.Names) > 0 {
			return fmt.Sprintf("row %d %s: %s", idx+1, number, r.Names[0])
		}
		return fmt.Sprintf("row %d %s: no match", idx+1, number)
	default:
		return fmt.Sprintf("row %d %s: %s", idx+1, number, r.Error)
	}
}
