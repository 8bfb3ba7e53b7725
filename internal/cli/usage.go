package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rshade/phonelookup/internal/config"
	"github.com/rshade/phonelookup/internal/logging"
	"github.com/rshade/phonelookup/internal/usage"
)

// usageShowOutput is the --json form of usage show.
type usageShowOutput struct {
	usage.Stats
	MonthlyLimit int           `json:"monthly_limit"`
	Remaining    int           `json:"remaining"`
	Alerts       []usage.Alert `json:"alerts"`
}

func openUsage(cmd *cobra.Command) (*usage.Counter, *config.Config, error) {
	cfg := config.GetGlobalConfig()
	c, err := openCounter(cfg, logging.FromContext(cmd.Context()))
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}

// NewUsageShowCmd creates the usage show command.
func NewUsageShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show this month's usage, trend and alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, cfg, err := openUsage(cmd)
			if err != nil {
				return err
			}
			limit := cfg.Processing.MonthlyLimit
			out := usageShowOutput{
				Stats:        c.Stats(),
				MonthlyLimit: limit,
				Remaining:    c.Remaining(limit),
				Alerts:       c.Alerts(thresholds(cfg)),
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			printUsage(cmd, out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printUsage(cmd *cobra.Command, out usageShowOutput) {
	st := out.Stats
	cmd.Printf("Month:     %s\n", st.CurrentMonth)
	if out.MonthlyLimit > 0 {
		cmd.Printf("Used:      %s / %s (%s remaining)\n",
			formatInt(st.CurrentMonthUsage), formatInt(out.MonthlyLimit), formatInt(out.Remaining))
	} else {
		cmd.Printf("Used:      %s (no limit)\n", formatInt(st.CurrentMonthUsage))
	}
	cmd.Printf("Previous:  %s (%s)\n", formatInt(st.PreviousMonthUsage), formatPercent(st.UsageChangePercent))
	cmd.Printf("Lifetime:  %s\n", formatInt(st.AllTimeUsage))
	cmd.Printf("Daily avg: %s, projected %s this month\n",
		printer.Sprintf("%.2f", st.DailyAverage), formatInt(st.ProjectedMonthly))
	if st.LastRequest != nil {
		cmd.Printf("Last call: %s\n", st.LastRequest.Local().Format("2006-01-02 15:04"))
	}

	cmd.Println("\nTrend:")
	for _, p := range st.Trend {
		cmd.Printf("  %-15s %8s\n", p.MonthName, formatInt(p.Usage))
	}

	for _, a := range out.Alerts {
		cmd.Printf("\n%s: %s", strings.ToUpper(a.Level), a.Message)
	}
	if len(out.Alerts) > 0 {
		cmd.Println()
	}
}

// NewUsageMonthsCmd creates the usage months command.
func NewUsageMonthsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "months",
		Short: "List the usage of every recorded month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := openUsage(cmd)
			if err != nil {
				return err
			}
			months := c.Months()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), months)
			}
			if len(months) == 0 {
				cmd.Println("No usage recorded")
				return nil
			}
			for _, m := range months {
				cmd.Printf("%s  %8s\n", m.Month, formatInt(m.Count))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// NewUsageResetCmd creates the usage reset command.
func NewUsageResetCmd() *cobra.Command {
	var (
		all   bool
		month string
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the count of a month, or all usage data",
		Example: `  # Reset the current month
  phonelookup usage reset

  # Reset a past month
  phonelookup usage reset --month 2026-09

  # Discard every month and the lifetime total
  phonelookup usage reset --all --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all && month != "" {
				return errors.New("--all and --month cannot be combined")
			}
			c, _, err := openUsage(cmd)
			if err != nil {
				return err
			}

			what := "the current month's usage"
			if all {
				what = "ALL usage data"
			} else if month != "" {
				what = "the usage of " + month
			}
			if !confirmed(cmd, yes, "Reset "+what+"?") {
				return errors.New("reset cancelled")
			}

			if all {
				err = c.ResetAll()
			} else {
				err = c.ResetMonth(month)
			}
			if err != nil {
				return err
			}
			cmd.Printf("Reset %s\n", what)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "reset every month and the lifetime total")
	cmd.Flags().StringVar(&month, "month", "", "month to reset, YYYY-MM (default: current)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// NewUsageSetCmd creates the usage set command.
func NewUsageSetCmd() *cobra.Command {
	return newUsageAdjustCmd("set N", "Overwrite the count of a month",
		func(c *usage.Counter, month string, n int) (usage.Record, error) {
			return c.SetCount(month, n)
		})
}

// NewUsageAddCmd creates the usage add command. N may be negative.
func NewUsageAddCmd() *cobra.Command {
	return newUsageAdjustCmd("add N", "Add N calls to a month (use -- before a negative N)",
		func(c *usage.Counter, month string, n int) (usage.Record, error) {
			return c.AddCount(month, n)
		})
}

func newUsageAdjustCmd(
	use, short string,
	apply func(c *usage.Counter, month string, n int) (usage.Record, error),
) *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("N must be an integer: %q", args[0])
			}
			c, _, err := openUsage(cmd)
			if err != nil {
				return err
			}
			rec, err := apply(c, month, n)
			if err != nil {
				return err
			}
			cmd.Printf("%s: %s (lifetime %s)\n", rec.Month, formatInt(rec.Count), formatInt(rec.LifetimeTotal))
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "month to change, YYYY-MM (default: current)")
	return cmd
}

// NewUsageExportCmd creates the usage export command.
func NewUsageExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export PATH",
		Short: "Write the usage ledger to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openUsage(cmd)
			if err != nil {
				return err
			}
			if err = c.Export(args[0]); err != nil {
				return err
			}
			cmd.Printf("Usage data exported to %s\n", args[0])
			return nil
		},
	}
}

// NewUsageImportCmd creates the usage import command.
func NewUsageImportCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "import PATH",
		Short: "Replace the usage ledger with a previously exported file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openUsage(cmd)
			if err != nil {
				return err
			}
			if !confirmed(cmd, yes, "Replace the current usage data with "+args[0]+"?") {
				return errors.New("import cancelled")
			}
			if err = c.Import(args[0]); err != nil {
				return err
			}
			rec := c.Snapshot()
			cmd.Printf("Usage data imported: %s this month, %s lifetime\n",
				formatInt(rec.Count), formatInt(rec.LifetimeTotal))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// confirmed returns true for --yes, asks in a terminal, and declines otherwise.
func confirmed(cmd *cobra.Command, yes bool, question string) bool {
	if yes {
		return true
	}
	if !isTerminal(os.Stdin) {
		cmd.PrintErrln("Refusing to continue without a terminal; pass --yes to confirm")
		return false
	}
	return Confirm(cmd.OutOrStdout(), cmd.InOrStdin(), question).Accepted
}
