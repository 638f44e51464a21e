// Command blueprintd serves the blueprint editor API and runs one-shot
// maintenance tasks against the configured store.
package main

import (
	"fmt"
	"io"
	"os"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if _, writeErr := fmt.Fprintf(stderr, "blueprintd: %v\n", err); writeErr != nil {
			return 1
		}
		return 1
	}
	return 0
}
