// Command coedit drives collaborative editing rooms in which every agent
// keeps its own undo/redo history while all agents converge on one text.
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "coedit:", err)
		os.Exit(1)
	}
}
