package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	a := &app{}
	var configPath string

	root := &cobra.Command{
		Use:   "coedit",
		Short: "coedit - multi-agent collaborative editing with per-agent undo",
		Long: `coedit keeps several agents' documents convergent with one shared text.

Each agent's undo and redo only ever revert that agent's own edits, even
after other agents have typed around them. Rooms run locally in-process or
across processes through a websocket relay.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(configPath, cmd.OutOrStdout())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.Close()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "JSON output")

	root.AddCommand(
		newDemoCmd(a),
		newRunCmd(a),
		newRelayCmd(a),
		newProbeCmd(a),
		newLogCmd(a),
	)
	return root
}
