package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/phonelookup/internal/config"
)

// cacheInfoOutput is the JSON shape of `cache info --json`.
type cacheInfoOutput struct {
	Directory string `json:"directory"`
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
	TTL       string `json:"ttl"`
}

// NewCacheInfoCmd creates the `cache info` command.
func NewCacheInfoCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the image download cache location and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := newImageCache(config.GetGlobalConfig())
			if err != nil {
				return err
			}
			count, err := store.Count()
			if err != nil {
				return err
			}
			size, err := store.Size()
			if err != nil {
				return err
			}
			out := cacheInfoOutput{
				Directory: store.Directory(),
				Entries:   count,
				Bytes:     size,
				TTL:       store.TTL().String(),
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Directory: %s\n", out.Directory)
			fmt.Fprintf(w, "Entries:   %s\n", formatInt(out.Entries))
			fmt.Fprintf(w, "Size:      %s bytes\n", formatInt(int(out.Bytes)))
			fmt.Fprintf(w, "TTL:       %s\n", out.TTL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// NewCacheClearCmd creates the `cache clear` command.
func NewCacheClearCmd() *cobra.Command {
	var expiredOnly bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached image downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := newImageCache(config.GetGlobalConfig())
			if err != nil {
				return err
			}
			if expiredOnly {
				removed, cleanErr := store.CleanupExpired()
				if cleanErr != nil {
					return cleanErr
				}
				cmd.Printf("Removed %s expired entries\n", formatInt(removed))
				return nil
			}
			if err = store.Clear(); err != nil {
				return err
			}
			cmd.Println("Image cache cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&expiredOnly, "expired", false, "only remove entries past their TTL")
	return cmd
}
