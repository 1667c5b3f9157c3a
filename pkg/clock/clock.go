// Package clock implements the Lamport clock that orders a room's events.
//
// Every user action appended to the operation log advances the room clock
// (IR1), and every relay frame carries the sender's timestamp so a receiving
// replica can advance past it (IR2):
//
//	IR1: before stamping a local event, increment the clock.
//	IR2: on receiving timestamp t, set the clock to max(own, t) + 1.
//
// Stamp pairs a timestamp with the agent that produced it. Stamps form a
// deterministic total order (timestamp first, agent id second), which the
// relay uses as a last-writer-wins rule for the shared text.
//
// Clock is not goroutine-safe. A room's clock is only touched from inside
// the room's loop turns.
package clock

// Clock is a Lamport logical clock. Not goroutine-safe; see package doc.
type Clock struct {
	ts int64
}

// Tick implements IR1 and returns the new timestamp.
func (c *Clock) Tick() int64 {
	c.ts++
	return c.ts
}

// Receive implements IR2 for a received timestamp and returns the new
// timestamp.
func (c *Clock) Receive(received int64) int64 {
	if received > c.ts {
		c.ts = received
	}
	c.ts++
	return c.ts
}

// Value returns the current clock value without advancing it.
func (c *Clock) Value() int64 { return c.ts }

// Set seeds the clock, e.g. from the highest archived timestamp.
func (c *Clock) Set(v int64) { c.ts = v }

// Stamp is a Lamport timestamp attributed to an agent.
type Stamp struct {
	TS      int64  `json:"ts"`
	AgentID string `json:"agent_id"`
}

// Less reports whether s precedes other in the total order.
func (s Stamp) Less(other Stamp) bool {
	return TotalOrderLess(s.TS, s.AgentID, other.TS, other.AgentID)
}

// IsZero reports whether s was never assigned.
func (s Stamp) IsZero() bool { return s.TS == 0 && s.AgentID == "" }

// TotalOrderLess orders (tsA, agentA) before (tsB, agentB) when tsA < tsB,
// or the timestamps are equal and agentA sorts before agentB.
func TotalOrderLess(tsA int64, agentA string, tsB int64, agentB string) bool {
	if tsA != tsB {
		return tsA < tsB
	}
	return agentA < agentB
}
