package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/phonelookup/internal/checkpoint"
	"github.com/rshade/phonelookup/internal/config"
	"github.com/rshade/phonelookup/internal/engine"
	"github.com/rshade/phonelookup/internal/engine/batch"
	"github.com/rshade/phonelookup/internal/logging"
	"github.com/rshade/phonelookup/internal/sheet"
	"github.com/rshade/phonelookup/internal/statefile"
	"github.com/rshade/phonelookup/internal/tui"
	"github.com/rshade/phonelookup/internal/usage"
)

// resultsSuffix is appended to the input name to form the default output.
const resultsSuffix = "_results"

// runOptions holds the flags of the run command.
type runOptions struct {
	output       string
	restart      bool
	tui          bool
	limit        int
	saveInterval int
	yes          bool
}

// NewRunCmd creates the run command, which looks up every number in a
// spreadsheet and writes the results next to it.
func NewRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run INPUT",
		Short: "Look up every number in a spreadsheet",
		Long: `Reads INPUT (.xlsx or .csv), looks up each value of the number column and
writes the input columns plus the lookup results to OUTPUT.

Progress is saved to OUTPUT.checkpoint.json every --save-interval rows and
whenever the run stops. Running the same command again resumes from the
saved row. Press Ctrl+C once to stop after the current row, twice to abort
the row in flight.

When the monthly limit is reached the run pauses; in a terminal you are
offered to raise the limit and continue. The exit code is 3 in that case.`,
		Example: `  # Write results to contacts_results.xlsx
  phonelookup run contacts.xlsx

  # Choose the output file and show the interactive progress view
  phonelookup run contacts.csv -o results.xlsx --tui

  # Ignore saved progress and start over
  phonelookup run contacts.xlsx --restart`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: INPUT_results with the input extension)")
	cmd.Flags().BoolVar(&opts.restart, "restart", false, "discard saved progress and start from the first row")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show the interactive progress view (p pause, s stop)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "monthly lookup limit for this run (0 = unlimited; default from config)")
	cmd.Flags().IntVar(&opts.saveInterval, "save-interval", 0, "rows between checkpoints (default from config)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "answer yes to confirmation prompts")

	return cmd
}

// runSession is one invocation of the run command.
type runSession struct {
	cmd     *cobra.Command
	cfg     *config.Config
	table   *sheet.Table
	output  string
	store   *checkpoint.FileStore
	svc     *services
	proc    *engine.Processor
	ctl     *batch.Control
	runner  *batch.Runner
	started time.Time

	// send forwards runner events to the progress view while it runs.
	send func(tea.Msg)
}

func runBatch(cmd *cobra.Command, input string, opts runOptions) error {
	ctx := cmd.Context()
	log := logging.FromContext(ctx)

	cfg := *config.GetGlobalConfig()
	if cmd.Flags().Changed("limit") {
		cfg.Processing.MonthlyLimit = opts.limit
	}
	if cmd.Flags().Changed("save-interval") {
		cfg.Processing.SaveInterval = opts.saveInterval
	}

	svc, err := newServices(&cfg, log)
	if err != nil {
		return err
	}

	table, err := sheet.ReadTable(input, cfg.Processing.NumberColumn)
	if err != nil {
		return err
	}
	if len(table.Records) == 0 {
		return fmt.Errorf("%s has no data rows", input)
	}

	output := opts.output
	if output == "" {
		output = defaultOutputPath(input)
	}
	if sameFile(input, output) {
		return errors.New("output must differ from input")
	}

	s := &runSession{
		cmd:    cmd,
		cfg:    &cfg,
		table:  table,
		output: output,
		store:  checkpoint.NewFileStore(checkpoint.PathFor(output)),
		svc:    svc,
		ctl:    batch.NewControl(),
	}

	if opts.restart {
		if err = s.store.Remove(); err != nil {
			return fmt.Errorf("removing saved progress: %w", err)
		}
	}

	if err = s.build(log); err != nil {
		return err
	}
	if s.proc.QuotaExhausted() {
		cmd.PrintErrf("Warning: the monthly limit of %s lookups is already reached (%s used)\n",
			formatInt(s.proc.MonthlyLimit()), formatInt(s.svc.counter.CurrentCount()))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopSignals := handleInterrupts(s.ctl, cancel, cmd.ErrOrStderr())
	defer stopSignals()

	res, err := s.loop(runCtx, opts)
	if errors.Is(err, batch.ErrCheckpointMismatch) && s.confirmRestart(err, opts.yes) {
		if err = s.store.Remove(); err != nil {
			return fmt.Errorf("removing saved progress: %w", err)
		}
		if err = s.build(log); err != nil {
			return err
		}
		res, err = s.loop(runCtx, opts)
	}
	if unusableCheckpoint(err) && s.store.Exists() {
		return fmt.Errorf("%w\nUse --restart to discard the saved progress in %s", err, s.store.Path())
	}

	s.printSummary(res, err)
	return s.exitError(res, err)
}

// unusableCheckpoint reports whether err means the saved progress cannot
// be resumed and only --restart gets past it.
func unusableCheckpoint(err error) bool {
	return errors.Is(err, batch.ErrCheckpointMismatch) ||
		errors.Is(err, statefile.ErrCorrupted) ||
		errors.Is(err, checkpoint.ErrUnsupportedVersion)
}

// build wires a fresh processor, writer and runner.
func (s *runSession) build(log zerolog.Logger) error {
	writer, err := sheet.NewWriter(s.output, s.table.Header, layoutLimits(s.cfg),
		sheet.WithStyle(sheetStyle(s.cfg)),
		sheet.WithLogger(logging.ComponentLogger(log, "sheet")),
	)
	if err != nil {
		return err
	}

	s.proc = s.svc.processor(log, engine.WithUsageHook(s.onUsage))
	s.runner = batch.NewRunner(s.proc, s.table.Records, s.store, writer,
		batch.Config{
			SaveInterval: s.cfg.Processing.SaveInterval,
			Fingerprint:  s.table.Fingerprint(),
		},
		batch.WithToken(s.ctl),
		batch.WithEvents(s.onEvent),
		batch.WithUsage(s.svc.counter.Snapshot),
		batch.WithLogger(logging.ComponentLogger(log, "batch")),
	)
	return nil
}

// loop runs until the runner stops for a reason other than a quota pause
// the user resolves by raising the limit.
func (s *runSession) loop(ctx context.Context, opts runOptions) (batch.Result, error) {
	s.started = time.Now()
	for {
		var (
			res batch.Result
			err error
		)
		if opts.tui {
			res, err = s.runTUI(ctx)
		} else {
			res, err = s.runner.Run(ctx)
		}

		var quotaErr *batch.QuotaPausedError
		if !errors.As(err, &quotaErr) || errors.Is(err, batch.ErrPersistFailed) || ctx.Err() != nil {
			return res, err
		}
		limit, ok := s.askLimit()
		if !ok {
			return res, err
		}
		s.proc.SetMonthlyLimit(limit)
		s.cfg.Processing.MonthlyLimit = limit
		s.cmd.Printf("Continuing with a monthly limit of %s.\n", formatInt(limit))
	}
}

func (s *runSession) runTUI(ctx context.Context) (batch.Result, error) {
	title := fmt.Sprintf("phonelookup · %s → %s", filepath.Base(s.table.Path), filepath.Base(s.output))
	model := tui.NewRunModel(title, len(s.table.Records), s.proc.MonthlyLimit(), s.ctl, func() tea.Cmd {
		return func() tea.Msg {
			res, err := s.runner.Run(ctx)
			return tui.DoneMsg{Result: res, Err: err}
		}
	})

	p := tea.NewProgram(model,
		tea.WithOutput(s.cmd.OutOrStdout()),
		tea.WithInput(s.cmd.InOrStdin()),
		tea.WithoutSignalHandler(),
	)
	s.send = p.Send
	defer func() { s.send = nil }()

	if _, err := p.Run(); err != nil {
		return batch.Result{State: s.runner.State()}, fmt.Errorf("progress view: %w", err)
	}
	res, err := model.Result()
	if res == nil {
		return batch.Result{State: s.runner.State()}, errors.New("progress view closed before the run ended")
	}
	return *res, err
}

func (s *runSession) onEvent(ev batch.Event) {
	if send := s.send; send != nil {
		send(tui.EventMsg{Event: ev})
		return
	}

	out := s.cmd.ErrOrStderr()
	switch ev.Kind {
	case batch.EventStarted:
		if ev.Index > 0 {
			fmt.Fprintf(out, "Resuming at row %s of %s\n", formatInt(ev.Index+1), formatInt(ev.Progress.TotalItems))
		} else {
			fmt.Fprintf(out, "Processing %s rows\n", formatInt(ev.Progress.TotalItems))
		}
	case batch.EventRow:
		if ev.Row == nil {
			return
		}
		fmt.Fprintf(out, "[%s/%s] %s\n",
			formatInt(ev.Index+1), formatInt(ev.Progress.TotalItems), rowLine(*ev.Row))
	case batch.EventCheckpointFailed:
		fmt.Fprintf(out, "Warning: progress could not be saved: %v\n", ev.Err)
	case batch.EventCheckpoint, batch.EventFinished:
	}
}

func (s *runSession) onUsage(rec usage.Record, err error) {
	if err != nil {
		logger.Warn().Err(err).Msg("usage ledger not saved")
	}
	if send := s.send; send != nil {
		send(tui.UsageMsg{Record: rec})
	}
}

// askLimit offers to raise the monthly limit. Only an interactive terminal
// is asked; anything else declines.
func (s *runSession) askLimit() (int, bool) {
	if !isTerminal(os.Stdin) {
		return 0, false
	}
	res := PromptLimit(s.cmd.OutOrStdout(), s.cmd.InOrStdin(), s.svc.counter.CurrentCount(), s.proc.MonthlyLimit())
	return res.Value, res.Accepted
}

// confirmRestart asks whether saved progress for a different input may be
// discarded. --yes accepts without asking.
func (s *runSession) confirmRestart(cause error, yes bool) bool {
	if yes {
		return true
	}
	if !isTerminal(os.Stdin) {
		return false
	}
	s.cmd.PrintErrf("Saved progress does not match this input: %v\n", cause)
	return Confirm(s.cmd.OutOrStdout(), s.cmd.InOrStdin(), "Discard it and start over?").Accepted
}

func (s *runSession) printSummary(res batch.Result, runErr error) {
	if res.State == batch.StateIdle {
		return
	}
	sum := res.Summary
	processed := sum.Total - sum.Pending

	s.cmd.Println()
	s.cmd.Printf("%s: %s of %s rows processed in %s\n",
		stateLabel(res), formatInt(processed), formatInt(sum.Total), since(s.started))
	s.cmd.Printf("  Found:   %s\n", formatInt(sum.Success))
	s.cmd.Printf("  Failed:  %s\n", formatInt(sum.Errors))
	s.cmd.Printf("  Skipped: %s\n", formatInt(sum.Skipped))
	if sum.Total > 0 {
		s.cmd.Printf("  Success rate: %s\n", formatPercent(float64(sum.Success)/float64(sum.Total)*100))
	}

	rec := s.svc.counter.Snapshot()
	line := fmt.Sprintf("API usage %s: %s", rec.Month, formatInt(rec.Count))
	if limit := s.proc.MonthlyLimit(); limit > 0 {
		line += " / " + formatInt(limit)
	}
	s.cmd.Printf("%s (lifetime %s)\n", line, formatInt(rec.LifetimeTotal))
	for _, a := range s.svc.counter.Alerts(thresholds(s.cfg)) {
		s.cmd.PrintErrf("%s: %s\n", strings.ToUpper(a.Level), a.Message)
	}

	if res.PersistFailures > 0 {
		s.cmd.PrintErrf("Warning: %d checkpoint(s) could not be saved during the run\n", res.PersistFailures)
	}
	if !errors.Is(runErr, batch.ErrPersistFailed) {
		s.cmd.Printf("Results: %s\n", s.output)
	}
}

func (s *runSession) exitError(res batch.Result, err error) error {
	var quotaErr *batch.QuotaPausedError
	switch {
	case errors.As(err, &quotaErr):
		return &ExitError{Code: ExitQuota, Err: fmt.Errorf(
			"%w\nRaise processing.monthly_limit or pass --limit, then rerun to continue", err)}
	case err != nil:
		return err
	case res.State == batch.StateCompleted:
		return nil
	default:
		return &ExitError{Code: ExitPaused, Err: fmt.Errorf(
			"run %s at row %d; rerun the same command to resume (progress in %s)",
			res.State, res.NextIndex+1, s.store.Path())}
	}
}

func stateLabel(res batch.Result) string {
	switch {
	case res.State == batch.StateCompleted:
		return "Completed"
	case res.Reason == batch.ReasonQuota:
		return "Paused (monthly limit reached)"
	case res.Reason == batch.ReasonPersistFailed:
		return "Paused (results could not be saved)"
	case res.Reason == batch.ReasonCancelled:
		return "Interrupted"
	case res.State == batch.StateStopped:
		return "Stopped"
	default:
		return "Paused"
	}
}

// rowLine is the one-line progress text for a processed row.
func rowLine(row engine.OutputRow) string {
	r := row.Result
	switch {
	case r.Status == engine.StatusSuccess && len(r.Names) > 0:
		return fmt.Sprintf("%s: %s", row.Record.Number, strings.Join(r.Names, ", "))
	case r.Status == engine.StatusSuccess:
		return row.Record.Number + ": no match"
	default:
		return fmt.Sprintf("%s: %s (%s)", row.Record.Number, r.Status, r.Error)
	}
}

// defaultOutputPath turns dir/name.ext into dir/name_results.ext.
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + resultsSuffix + ext
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

// handleInterrupts turns the first SIGINT or SIGTERM into a stop request
// and the second into cancellation. The returned func stops listening.
func handleInterrupts(ctl *batch.Control, cancel context.CancelFunc, w io.Writer) func() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		count := 0
		for {
			select {
			case <-done:
				return
			case <-ch:
				count++
				if count == 1 {
					ctl.Stop()
					fmt.Fprintln(w, "\nStopping after the current row (press Ctrl+C again to abort it)...")
					continue
				}
				cancel()
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
