package domain

// SyncState provides common fields for records that participate in relay
// synchronization. It gets embedded in any domain type published as an
// addressable event.
type SyncState struct {
	IsPublic        bool     `json:"is_public"`
	RemoteEventID   string   `json:"remote_event_id,omitempty"`
	RemoteTimestamp int64    `json:"remote_timestamp,omitempty"` // unix seconds of the latest known remote version
	Relays          []string `json:"relays,omitempty"`
	SyncPending     bool     `json:"sync_pending,omitempty"`
}

// Published reports whether this record has ever been seen on a relay.
func (s *SyncState) Published() bool {
	return s.RemoteEventID != ""
}

// StampRemote records a successful publish or an accepted remote version.
// Clears SyncPending since local and remote now agree.
func (s *SyncState) StampRemote(eventID string, timestamp int64, relays []string) {
	s.RemoteEventID = eventID
	s.RemoteTimestamp = timestamp
	if len(relays) > 0 {
		s.Relays = relays
	}
	s.SyncPending = false
}

// MarkPending flags the record as locally ahead of the relays so a later
// sync can retry the publish. Local writes are never rolled back on publish
// failure.
func (s *SyncState) MarkPending() {
	s.SyncPending = true
}

// RemoteWins decides Last-Write-Wins against a remote version.
//
// A remote version wins when this record has never been published, when the
// remote timestamp is strictly greater, or, on an exact timestamp tie, when
// the remote event ID sorts lexicographically after the recorded one.
// The tie-break is arbitrary but deterministic, so both sides of a tie
// converge on the same version.
func (s *SyncState) RemoteWins(timestamp int64, eventID string) bool {
	if !s.Published() {
		return true
	}
	if timestamp != s.RemoteTimestamp {
		return timestamp > s.RemoteTimestamp
	}
	return eventID > s.RemoteEventID
}
