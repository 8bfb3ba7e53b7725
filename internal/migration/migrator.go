// Package migration adopts usage data left behind by the desktop version
// of the tool, which kept api_usage.json in its working directory.
package migration

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rshade/phonelookup/internal/statefile"
	"github.com/rshade/phonelookup/internal/usage"
)

// LegacyUsageFile is the ledger name the desktop version used.
const LegacyUsageFile = "api_usage.json"

// ErrInvalidLegacy is returned when the legacy file is not a usage ledger.
var ErrInvalidLegacy = errors.New("legacy usage file is not valid")

// DetectLegacy checks if dir holds a legacy usage ledger.
func DetectLegacy(dir string) (string, bool) {
	legacyPath := filepath.Join(dir, LegacyUsageFile)
	info, err := os.Stat(legacyPath)
	if err != nil {
		return "", false
	}
	return legacyPath, info.Mode().IsRegular()
}

// Adopt copies the legacy ledger at src to dst after validating it. The
// source is left in place.
func Adopt(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	if err = usage.ValidateLedger(data); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLegacy, err)
	}
	if err = os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}
	return statefile.WriteAtomic(dst, data, 0o600)
}

// RunMigration offers to adopt a legacy ledger found in dir as the ledger
// at target. It does nothing when there is no legacy file or target
// already exists.
func RunMigration(out io.Writer, in io.Reader, dir, target string) error {
	legacyPath, exists := DetectLegacy(dir)
	if !exists {
		return nil
	}

	// If the ledger already exists, don't prompt for migration
	if _, statErr := os.Stat(target); statErr == nil {
		return nil
	}

	fmt.Fprintf(out, "Found usage data from an earlier version at %s.\n", legacyPath)
	fmt.Fprintf(out, "Would you like to keep counting from it (copy to %s)? [y/N] ", target)

	response := ""
	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		response = strings.ToLower(strings.TrimSpace(scanner.Text()))
	}

	if response != "y" && response != "yes" {
		fmt.Fprintln(out, "Skipped. Usage will be counted from zero; "+
			"run 'phonelookup usage import "+legacyPath+"' to adopt it later.")
		return nil
	}

	if err := Adopt(legacyPath, target); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintf(out, "Usage data copied. The original file has been preserved at %s.\n", legacyPath)
	return nil
}
