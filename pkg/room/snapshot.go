package room

import "github.com/daviddao/coedit/pkg/model"

// SessionState describes one session at a point in time.
type SessionState struct {
	AgentID  string `json:"agent_id"`
	Text     string `json:"text"`
	Cursor   int    `json:"cursor"`
	CanUndo  bool   `json:"can_undo"`
	CanRedo  bool   `json:"can_redo"`
	Syncing  bool   `json:"syncing"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Snapshot is a consistent view of a room, taken in a single turn.
type Snapshot struct {
	Room        string            `json:"room"`
	Mode        model.Mode        `json:"mode"`
	RelayStatus model.ProbeStatus `json:"relay_status"`
	Text        string            `json:"text"`
	Converged   bool              `json:"converged"`
	Sessions    []SessionState    `json:"sessions"`
	Entries     []model.Entry     `json:"entries"`
}

// Snapshot captures the room's current state.
func (r *Room) Snapshot() Snapshot {
	var snap Snapshot
	r.run(func() {
		snap = Snapshot{
			Room:        r.id,
			Mode:        r.mode,
			RelayStatus: r.status,
			Text:        r.textLocked(),
			Converged:   r.convergedLocked(),
			Entries:     r.log.Entries(),
		}
		for _, id := range r.order {
			snap.Sessions = append(snap.Sessions, r.sessions[id].stateLocked())
		}
	})
	return snap
}

func (s *Session) stateLocked() SessionState {
	return SessionState{
		AgentID:  s.agentID,
		Text:     s.doc.Text(),
		Cursor:   s.doc.Cursor(),
		CanUndo:  s.doc.CanUndo(),
		CanRedo:  s.doc.CanRedo(),
		Syncing:  s.doc.Syncing(),
		Degraded: s.doc.Degraded(),
	}
}
