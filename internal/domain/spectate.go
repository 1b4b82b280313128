package domain

import "time"

// SpectateHistoryLimit bounds the quick re-entry history list.
const SpectateHistoryLimit = 10

// SpectateSession is the persisted state of an active spectate: browsing
// another identity's public library read-only.
type SpectateSession struct {
	Target     string    `json:"target"` // the spectated public identity
	Relays     []string  `json:"relays,omitempty"`
	LastSynced time.Time `json:"last_synced"`
}

// SpectateHistoryEntry records a previously spectated identity for quick re-entry.
type SpectateHistoryEntry struct {
	Target     string    `json:"target"`
	Relays     []string  `json:"relays,omitempty"`
	LastViewed time.Time `json:"last_viewed"`
}

// SpectateHistory is the bounded, most-recent-first re-entry list.
type SpectateHistory struct {
	Entries []SpectateHistoryEntry `json:"entries"`
}

// Record moves or inserts the target at the front of the history,
// trimming the list to SpectateHistoryLimit.
func (h *SpectateHistory) Record(target string, relays []string, at time.Time) {
	entry := SpectateHistoryEntry{Target: target, Relays: relays, LastViewed: at}

	out := make([]SpectateHistoryEntry, 0, len(h.Entries)+1)
	out = append(out, entry)
	for _, e := range h.Entries {
		if e.Target != target {
			out = append(out, e)
		}
	}
	if len(out) > SpectateHistoryLimit {
		out = out[:SpectateHistoryLimit]
	}
	h.Entries = out
}

// Remove deletes the target from the history if present.
func (h *SpectateHistory) Remove(target string) {
	out := h.Entries[:0]
	for _, e := range h.Entries {
		if e.Target != target {
			out = append(out, e)
		}
	}
	h.Entries = out
}
