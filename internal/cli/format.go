package cli

import (
	"encoding/json"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English) //nolint:gochecknoglobals // Shared number formatter

// formatInt renders n with thousands separators.
func formatInt(n int) string {
	return printer.Sprintf("%d", n)
}

// formatPercent renders f with one decimal.
func formatPercent(f float64) string {
	return printer.Sprintf("%.1f%%", f)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
