// Command phonelookup looks up caller names and pictures for the phone
// numbers in a spreadsheet.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rshade/phonelookup/internal/cli"
	"github.com/rshade/phonelookup/pkg/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI with args and returns the process exit code.
func run(args []string) int {
	root := cli.NewRootCmd(version.GetVersion())
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return cli.ExitOK
	}

	code := cli.ExitCode(err)
	if code == cli.ExitFailure {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	return code
}
