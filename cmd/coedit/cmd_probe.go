package main

import (
	"fmt"

	"github.com/daviddao/coedit/pkg/model"
	"github.com/daviddao/coedit/pkg/relay"
	"github.com/spf13/cobra"
)

func newProbeCmd(a *app) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether the relay accepts connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = a.cfg.Relay.URL
			}
			status := relay.Probe(cmd.Context(), url, a.cfg.Relay.ProbeTimeout)
			a.metrics.Probed(string(status))
			if a.jsonOut {
				printJSON(a.out, map[string]interface{}{"url": url, "status": status})
			} else {
				fmt.Fprintf(a.out, "%s %s\n", url, status)
			}
			if status != model.ProbeConnected {
				return fmt.Errorf("relay %s is %s", url, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "relay URL (default from relay.url)")
	return cmd
}
