package main

import (
	"strings"

	"github.com/spf13/cobra"
)

// demoScript is the two-agent walkthrough: alice's undo removes only her
// last character, leaving bob's text in place.
const demoScript = `
alice join
alice type Hello
bob join
bob cursor end
bob type  World
show
alice undo
show
expect Hell World
bob undo
bob redo
alice redo
expect Hello World
show
`

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the two-agent undo isolation walkthrough",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := parseScript(strings.NewReader(demoScript))
			if err != nil {
				return err
			}
			r, err := a.newRoom()
			if err != nil {
				return err
			}
			defer r.Close()

			run := &runner{room: r, out: a.out, jsonOut: a.jsonOut}
			return run.run(cmd.Context(), steps)
		},
	}
}
