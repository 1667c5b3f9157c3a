package main

import (
	"fmt"

	"github.com/daviddao/coedit/pkg/model"
	"github.com/spf13/cobra"
)

func newLogCmd(a *app) *cobra.Command {
	var (
		roomID   string
		agent    string
		kind     string
		sinceTS  int64
		limit    int
		sessions bool
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Query the archived operation log of a room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID == "" {
				roomID = a.cfg.Room.ID
			}
			if sessions {
				recs, err := a.store.ListSessions(roomID)
				if err != nil {
					return fmt.Errorf("log: %w", err)
				}
				if a.jsonOut {
					printJSON(a.out, map[string]interface{}{"sessions": recs, "count": len(recs)})
					return nil
				}
				if len(recs) == 0 {
					fmt.Fprintln(a.out, "no sessions")
				}
				for _, rec := range recs {
					left := "active"
					if rec.LeftAt != nil {
						left = rec.LeftAt.Format("15:04:05.000")
					}
					fmt.Fprintf(a.out, "%s joined %s left %s\n", rec.AgentID, rec.JoinedAt.Format("15:04:05.000"), left)
				}
				return nil
			}

			var entries []model.Entry
			var err error
			if agent != "" {
				entries, err = a.store.ListEntriesForAgent(roomID, agent, sinceTS, limit)
			} else {
				entries, err = a.store.ListEntries(roomID, sinceTS, limit)
			}
			if err != nil {
				return fmt.Errorf("log: %w", err)
			}
			if kind != "" {
				filtered := entries[:0]
				for _, e := range entries {
					if string(e.Kind) == kind {
						filtered = append(filtered, e)
					}
				}
				entries = filtered
			}

			if a.jsonOut {
				printJSON(a.out, map[string]interface{}{"entries": entries, "count": len(entries)})
				return nil
			}
			printEntries(a.out, entries)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&roomID, "room", "", "room id (default from room.id)")
	f.StringVar(&agent, "agent", "", "only entries by this agent")
	f.StringVar(&kind, "kind", "", "filter by entry kind")
	f.Int64Var(&sinceTS, "since", 0, "entries with lamport_ts >= this")
	f.IntVar(&limit, "limit", 50, "max entries to return (0 = all)")
	f.BoolVar(&sessions, "sessions", false, "list sessions instead of entries")
	return cmd
}
