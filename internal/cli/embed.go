package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/phonelookup/internal/config"
	"github.com/rshade/phonelookup/internal/logging"
	"github.com/rshade/phonelookup/internal/sheet"
)

// NewEmbedCmd creates the embed command, which rebuilds the thumbnails of
// a results workbook.
func NewEmbedCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "embed INPUT",
		Short: "Embed thumbnails into a results workbook",
		Long: `Re-embeds the images of a results workbook written by "run". Existing
b64_N cells are resized with the current image settings; empty ones are
filled from the row's Image_N URLs. No lookups are made and usage is not
counted.`,
		Example: `  # Rewrite the workbook in place
  phonelookup embed contacts_results.xlsx

  # Write to a new file
  phonelookup embed contacts_results.xlsx -o contacts_images.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			out := output
			if out == "" {
				out = in
			}
			return runEmbed(cmd, in, out)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output workbook (default: rewrite INPUT)")

	return cmd
}

func runEmbed(cmd *cobra.Command, in, out string) error {
	ctx := cmd.Context()
	log := logging.FromContext(ctx)

	cfg := config.GetGlobalConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	stats, err := sheet.EmbedImages(ctx, in, out, newPipeline(cfg, log), sheet.EmbedOptions{
		Style:  sheetStyle(cfg),
		Logger: logging.ComponentLogger(log, "sheet"),
	})
	if err != nil {
		return err
	}

	cmd.Printf("Rows: %s\n", formatInt(stats.Rows))
	cmd.Printf("Images embedded: %s (%s downloaded)\n", formatInt(stats.Embedded), formatInt(stats.Downloaded))
	if stats.Failed > 0 {
		cmd.Printf("Images failed: %s\n", formatInt(stats.Failed))
	}
	cmd.Printf("Saved: %s\n", out)
	if stats.Failed > 0 && stats.Embedded == 0 {
		return fmt.Errorf("no image could be embedded (%d failed)", stats.Failed)
	}
	return nil
}
