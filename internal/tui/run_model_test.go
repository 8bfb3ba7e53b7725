package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/phonelookup/internal/engine"
	"github.com/rshade/phonelookup/internal/engine/batch"
	"github.com/rshade/phonelookup/internal/usage"
)

type fakeControl struct {
	paused, resumed, stopped int
	pending                  bool
}

func (f *fakeControl) Pause()       { f.paused++; f.pending = true }
func (f *fakeControl) Resume()      { f.resumed++; f.pending = false }
func (f *fakeControl) Stop()        { f.stopped++ }
func (f *fakeControl) Paused() bool { return f.pending }

type startCounter struct {
	calls int
}

func (s *startCounter) start() tea.Cmd {
	s.calls++
	return func() tea.Msg { return nil }
}

func newTestModel(t *testing.T, limit int) (*RunModel, *fakeControl, *startCounter) {
	t.Helper()
	ctl := &fakeControl{}
	sc := &startCounter{}
	m := NewRunModel("Phone lookup", 3, limit, ctl, sc.start)
	require.NotNil(t, m.Init())
	return m, ctl, sc
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRunModel_Init(t *testing.T) {
	m, _, sc := newTestModel(t, 0)
	assert.Equal(t, batch.StateRunning, m.state)
	assert.Equal(t, 1, sc.calls)
	assert.Contains(t, m.View(), "Phone lookup")
	assert.Contains(t, m.View(), "0 / 3 rows")
}

func TestRunModel_Events(t *testing.T) {
	m, _, _ := newTestModel(t, 1000)

	row := engine.OutputRow{
		Record: engine.InputRecord{Index: 0, Number: "923001234567"},
		Result: engine.LookupResult{Status: engine.StatusSuccess, Names: []string{"Ali Khan"}, Attempts: 1},
	}
	m.Update(EventMsg{Event: batch.Event{
		Kind:     batch.EventRow,
		Index:    0,
		Row:      &row,
		Progress: batch.ProgressSnapshot{TotalItems: 3, ProcessedItems: 1, Success: 1, PercentComplete: 33.3},
	}})
	m.Update(UsageMsg{Record: usage.Record{Month: "2026-10", Count: 1234, LifetimeTotal: 5678}})

	view := m.View()
	assert.Contains(t, view, "1 / 3 rows")
	assert.Contains(t, view, "1 found")
	assert.Contains(t, view, "row 1 923001234567: Ali Khan")
	assert.Contains(t, view, "API usage 2026-10: 1,234 / 1,000 (lifetime 5,678)")
}

func TestRunModel_PauseResume(t *testing.T) {
	m, ctl, sc := newTestModel(t, 0)

	m.Update(runes("p"))
	assert.Equal(t, 1, ctl.paused)
	assert.Contains(t, m.View(), "Pausing")

	m.Update(DoneMsg{Result: batch.Result{State: batch.StatePaused, Reason: batch.ReasonUser, NextIndex: 1}})
	assert.Equal(t, batch.StatePaused, m.state)
	assert.Contains(t, m.View(), "p resume")

	_, cmd := m.Update(runes("p"))
	require.NotNil(t, cmd)
	assert.Equal(t, 1, ctl.resumed)
	assert.Equal(t, 2, sc.calls)
	assert.Equal(t, batch.StateRunning, m.state)
	res, err := m.Result()
	assert.Nil(t, res)
	assert.NoError(t, err)
}

func TestRunModel_StopWhilePaused(t *testing.T) {
	m, ctl, sc := newTestModel(t, 0)

	m.Update(runes("p"))
	m.Update(DoneMsg{Result: batch.Result{State: batch.StatePaused, Reason: batch.ReasonUser, NextIndex: 1}})
	assert.Contains(t, m.View(), "s stop")

	_, cmd := m.Update(runes("s"))
	require.NotNil(t, cmd, "the runner is started again to record the stop")
	assert.Equal(t, 1, ctl.stopped)
	assert.Equal(t, 2, sc.calls)
	assert.Equal(t, batch.StateRunning, m.state)
	assert.Contains(t, m.View(), "Stopping")

	m.Update(DoneMsg{Result: batch.Result{State: batch.StateStopped, Reason: batch.ReasonUser, NextIndex: 1}})
	assert.Contains(t, m.View(), "Stopped")
	res, err := m.Result()
	require.NoError(t, err)
	assert.Equal(t, batch.StateStopped, res.State)
}

func TestRunModel_StopAfterQuotaPause(t *testing.T) {
	m, ctl, sc := newTestModel(t, 2)
	m.Update(DoneMsg{Result: batch.Result{State: batch.StatePaused, Reason: batch.ReasonQuota}})
	assert.Contains(t, m.View(), "s stop • q quit")

	_, cmd := m.Update(runes("s"))
	require.NotNil(t, cmd)
	assert.Equal(t, 1, ctl.stopped)
	assert.Equal(t, 2, sc.calls)
}

func TestRunModel_StopAndQuit(t *testing.T) {
	m, ctl, _ := newTestModel(t, 0)

	_, cmd := m.Update(runes("q"))
	assert.Nil(t, cmd, "q is ignored while running")

	m.Update(runes("s"))
	assert.Equal(t, 1, ctl.stopped)
	assert.Contains(t, m.View(), "Stopping")

	m.Update(DoneMsg{Result: batch.Result{State: batch.StateStopped, Reason: batch.ReasonUser}})
	assert.Contains(t, m.View(), "Stopped")

	_, cmd = m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.View())
}

func TestRunModel_CtrlC(t *testing.T) {
	m, ctl, _ := newTestModel(t, 0)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd)
	assert.Equal(t, 1, ctl.stopped)

	m.Update(DoneMsg{Result: batch.Result{State: batch.StateStopped, Reason: batch.ReasonUser}})
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestRunModel_QuotaPause(t *testing.T) {
	m, _, _ := newTestModel(t, 2)

	quotaErr := &batch.QuotaPausedError{NextIndex: 2, Message: "monthly limit reached"}
	m.Update(DoneMsg{
		Result: batch.Result{State: batch.StatePaused, Reason: batch.ReasonQuota, NextIndex: 2},
		Err:    quotaErr,
	})

	assert.Contains(t, m.View(), "monthly limit reached")
	assert.Contains(t, m.View(), "q quit")

	res, err := m.Result()
	require.NotNil(t, res)
	assert.Equal(t, 2, res.NextIndex)
	var q *batch.QuotaPausedError
	assert.True(t, errors.As(err, &q))

	_, cmd := m.Update(runes("p"))
	assert.Nil(t, cmd, "quota pause cannot be resumed from the view")
}

func TestRunModel_WindowResize(t *testing.T) {
	m, _, _ := newTestModel(t, 0)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 116, m.bar.Width)
	m.Update(tea.WindowSizeMsg{Width: 10, Height: 40})
	assert.Equal(t, minBarWidth, m.bar.Width)
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", formatCount(0))
	assert.Equal(t, "1,234,567", formatCount(1234567))
}
