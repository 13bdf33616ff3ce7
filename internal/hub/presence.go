package hub

import (
	"sort"
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusDND     Status = "dnd"
	StatusOffline Status = "offline"
)

// ParseStatus validates a presence status. Callers fall back to online
// when the input is rejected.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusOnline, StatusAway, StatusBusy, StatusDND, StatusOffline:
		return Status(s), true
	}
	return StatusOnline, false
}

type PresenceRecord struct {
	PrincipalID  string    `json:"principalId"`
	DisplayName  string    `json:"displayName,omitempty"`
	Status       Status    `json:"status"`
	Activity     string    `json:"activity,omitempty"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// presenceTracker keeps the latest presence record per principal.
// Staleness is a pure function of (now, lastActiveAt) evaluated at query
// time; there is no background sweep.
type presenceTracker struct {
	records map[string]*PresenceRecord
	window  time.Duration
}

func newPresenceTracker(window time.Duration) *presenceTracker {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &presenceTracker{records: make(map[string]*PresenceRecord), window: window}
}

// touch upserts lastActiveAt and overwrites status/activity only when
// supplied, so a bare heartbeat keeps the prior status.
func (p *presenceTracker) touch(principalID, displayName string, status Status, hasStatus bool, activity string, hasActivity bool, now time.Time) {
	rec := p.records[principalID]
	if rec == nil {
		rec = &PresenceRecord{PrincipalID: principalID, Status: StatusOnline}
		p.records[principalID] = rec
	}
	if displayName != "" {
		rec.DisplayName = displayName
	}
	if hasStatus {
		rec.Status = status
	}
	if hasActivity {
		rec.Activity = activity
	}
	rec.LastActiveAt = now
}

// online returns every record with status != offline whose last activity
// falls inside the freshness window, sorted by principal id.
func (p *presenceTracker) online(now time.Time) []PresenceRecord {
	out := make([]PresenceRecord, 0, len(p.records))
	for _, rec := range p.records {
		if rec.Status == StatusOffline {
			continue
		}
		if now.Sub(rec.LastActiveAt) > p.window {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrincipalID < out[j].PrincipalID })
	return out
}
