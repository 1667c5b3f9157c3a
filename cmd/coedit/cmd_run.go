package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run [script]",
		Short: "Execute an edit script (stdin when no file is given)",
		Long: `Runs an edit script against a fresh room.

  <agent> join [text]       start a session, optionally seeded
  <agent> type <text>       type at the cursor, one edit per character
  <agent> backspace [n]     delete n characters before the cursor
  <agent> cursor <n|end>    move the cursor
  <agent> undo | redo       undo/redo the agent's own edits
  <agent> leave             end the session
  reset | load [text]       clear the room, or load an example
  probe | mode <mode>       check the relay, switch local/networked
  show | expect <text>      print the room, or assert its text`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			steps, err := parseScript(in)
			if err != nil {
				return fmt.Errorf("parse script: %w", err)
			}

			r, err := a.newRoom()
			if err != nil {
				return err
			}
			defer r.Close()
			a.serveMetrics(cmd.Context())

			run := &runner{room: r, out: a.out, jsonOut: a.jsonOut}
			return run.run(cmd.Context(), steps)
		},
	}
}
