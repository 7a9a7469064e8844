package model

// Source identifies which upstream an event was collected from.
type Source string

const (
	SourceIdentityUser  Source = "identity-user"
	SourceIdentityAdmin Source = "identity-admin"
	SourceApplication   Source = "application"
)

func (s Source) String() string { return string(s) }

// CanonicalEvent is the normalized, source-agnostic audit event produced by
// the normalizer and consumed by the dedup store and the syslog sender.
type CanonicalEvent struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp,omitempty"`
	User        string `json:"user,omitempty"`
	Realm       string `json:"realm,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
	EventType   string `json:"event_type"`

	// Details is always non-nil on normalized events so the wire JSON
	// carries "details":{} even when the payload is elided.
	Details  map[string]any `json:"details"`
	Source   Source         `json:"source"`
	Priority int            `json:"priority"`
	Facility int            `json:"facility"`
}
