package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// PromptResult contains the result of a user prompt interaction.
type PromptResult struct {
	// Accepted is true if the user accepted the prompt.
	Accepted bool
	// Value holds the number entered for PromptLimit.
	Value int
	// Cancelled is true if reading input failed.
	Cancelled bool
}

// Confirm asks a yes/no question. Anything but "y" or "yes" declines,
// including an empty line and EOF.
func Confirm(w io.Writer, r io.Reader, question string) PromptResult {
	fmt.Fprintf(w, "? %s [y/N] ", question)

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if scanner.Err() != nil {
			return PromptResult{Cancelled: true}
		}
		return PromptResult{}
	}

	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return PromptResult{Accepted: true}
	default:
		return PromptResult{}
	}
}

// PromptLimit offers to raise the monthly limit after a quota pause. The
// answer is accepted only when it is an integer above used.
func PromptLimit(w io.Writer, r io.Reader, used, limit int) PromptResult {
	fmt.Fprintf(w, "\nMonthly limit of %s lookups reached (%s used).\n", formatInt(limit), formatInt(used))
	fmt.Fprintf(w, "? Enter a new monthly limit to continue, or press Enter to stop: ")

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if scanner.Err() != nil {
			return PromptResult{Cancelled: true}
		}
		return PromptResult{}
	}

	input := strings.TrimSpace(strings.ReplaceAll(scanner.Text(), ",", ""))
	if input == "" {
		return PromptResult{}
	}
	n, err := strconv.Atoi(input)
	if err != nil || n <= used {
		fmt.Fprintf(w, "The new limit must be a number above %s.\n", formatInt(used))
		return PromptResult{}
	}
	return PromptResult{Accepted: true, Value: n}
}
