package cli

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rshade/phonelookup/internal/config"
	"github.com/rshade/phonelookup/internal/engine"
	"github.com/rshade/phonelookup/internal/logging"
	"github.com/rshade/phonelookup/internal/lookup"
)

// lookupOutput is the --json form of a single lookup.
type lookupOutput struct {
	Input     string                `json:"input"`
	Number    string                `json:"number,omitempty"`
	Status    engine.Status         `json:"status"`
	Names     []string              `json:"names"`
	ImageURLs []string              `json:"image_urls"`
	Images    []engine.ImagePayload `json:"images,omitempty"`
	Error     string                `json:"error,omitempty"`
	Attempts  int                   `json:"attempts"`
	Timestamp time.Time             `json:"timestamp"`
}

// NewLookupCmd creates the lookup command for a single number.
func NewLookupCmd() *cobra.Command {
	var (
		asJSON    bool
		imagesDir string
	)

	cmd := &cobra.Command{
		Use:   "lookup NUMBER",
		Short: "Look up a single phone number",
		Long: `Looks up one number. The call counts against the monthly limit like
any row of a batch run.`,
		Example: `  phonelookup lookup 03001234567
  phonelookup lookup +923001234567 --json
  phonelookup lookup 03001234567 --images ./thumbs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd, args[0], asJSON, imagesDir)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().StringVar(&imagesDir, "images", "", "write the thumbnails as JPEG files to this directory")

	return cmd
}

func runLookup(cmd *cobra.Command, raw string, asJSON bool, imagesDir string) error {
	ctx := cmd.Context()
	log := logging.FromContext(ctx)

	cfg := *config.GetGlobalConfig()
	svc, err := newServices(&cfg, log)
	if err != nil {
		return err
	}

	row := svc.processor(log).Process(ctx, engine.InputRecord{Number: raw})
	res := row.Result

	out := lookupOutput{
		Input:     raw,
		Status:    res.Status,
		Names:     nonNil(res.Names),
		ImageURLs: nonNil(res.ImageURLs),
		Images:    res.Images,
		Error:     res.Error,
		Attempts:  res.Attempts,
		Timestamp: res.Timestamp,
	}
	if n, nerr := lookup.Normalize(raw, cfg.Lookup.CountryCode); nerr == nil {
		out.Number = n
	}

	if imagesDir != "" {
		if err = saveThumbnails(imagesDir, out.Number, res.Images); err != nil {
			return err
		}
	}

	if asJSON {
		if err = writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		printLookup(cmd, out)
	}

	switch res.Status {
	case engine.StatusSuccess:
		return nil
	case engine.StatusQuotaExceeded:
		return &ExitError{Code: ExitQuota, Err: errors.New(res.Error)}
	default:
		return &ExitError{Code: ExitFailure, Err: fmt.Errorf("lookup failed: %s", res.Error)}
	}
}

func printLookup(cmd *cobra.Command, out lookupOutput) {
	if out.Number != "" {
		cmd.Printf("Number: %s\n", out.Number)
	}
	cmd.Printf("Status: %s\n", out.Status)
	if out.Status != engine.StatusSuccess {
		return
	}
	if len(out.Names) == 0 {
		cmd.Println("No names found")
	}
	for i, name := range out.Names {
		cmd.Printf("  %d. %s\n", i+1, name)
	}
	for i, u := range out.ImageURLs {
		cmd.Printf("  Image %d: %s\n", i+1, u)
	}
	if n := countOK(out.Images); n > 0 {
		cmd.Printf("Thumbnails: %d\n", n)
	}
}

// saveThumbnails writes each successful image slot as number_N.jpg.
func saveThumbnails(dir, number string, payloads []engine.ImagePayload) error {
	if number == "" {
		number = "lookup"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	for i, p := range payloads {
		if !p.OK() {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.Base64)
		if err != nil {
			return fmt.Errorf("decoding thumbnail %d: %w", i+1, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.jpg", number, i+1))
		if err = os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

func countOK(payloads []engine.ImagePayload) int {
	n := 0
	for _, p := range payloads {
		if p.OK() {
			n++
		}
	}
	return n
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
