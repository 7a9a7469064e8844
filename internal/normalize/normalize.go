package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/seclogix/auditpipe/internal/classify"
	"github.com/seclogix/auditpipe/internal/model"
)

// Error reports a raw event field that could not be normalized.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize: field %q: %s", e.Field, e.Reason)
}

// unknownType is assigned when the upstream omitted the type field.
const unknownType = "unknown"

// idSeparator joins the id key parts. It must not occur in upstream type,
// actor, or discriminator values.
const idSeparator = "|"

// Normalizer converts raw source events into canonical audit events. It is
// pure: no I/O, no clock reads. Missing timestamps stay empty and are
// substituted at send time.
type Normalizer struct {
	identityUser  classify.Table
	identityAdmin classify.Table
	application   classify.Table
	shortLogs     bool
}

// New builds a Normalizer from the three classification tables. When
// shortLogs is set, application event payloads are elided from Details.
func New(identityUser, identityAdmin, application classify.Table, shortLogs bool) *Normalizer {
	return &Normalizer{
		identityUser:  identityUser,
		identityAdmin: identityAdmin,
		application:   application,
		shortLogs:     shortLogs,
	}
}

// IdentityUser normalizes a user-level identity-provider event. The id is
// derived from (type, timestamp, user, session) so the same logical event is
// assigned the same id on every run.
func (n *Normalizer) IdentityUser(ev model.IdentityUserEvent) (model.CanonicalEvent, error) {
	eventType := ev.Type
	if eventType == "" {
		eventType = unknownType
	}
	ts, err := identityTimestamp(ev.Time, ev.Timestamp)
	if err != nil {
		return model.CanonicalEvent{}, err
	}

	cls := n.identityUser.Lookup(eventType)
	return model.CanonicalEvent{
		ID:        EventID(eventType, ts, ev.UserID, ev.SessionID),
		Timestamp: ts,
		User:      ev.UserID,
		Realm:     ev.RealmID,
		EventType: eventType,
		Details:   stringDetails(ev.Details),
		Source:    model.SourceIdentityUser,
		Priority:  cls.Priority,
		Facility:  cls.Facility,
	}, nil
}

// IdentityAdmin normalizes an administrative identity-provider event. The
// resource path serves as the id discriminator instead of a session.
func (n *Normalizer) IdentityAdmin(ev model.IdentityAdminEvent) (model.CanonicalEvent, error) {
	eventType := ev.OperationType
	if eventType == "" {
		eventType = unknownType
	}
	ts, err := identityTimestamp(ev.Time, ev.Timestamp)
	if err != nil {
		return model.CanonicalEvent{}, err
	}

	details := map[string]any{}
	if ev.ResourcePath != "" {
		details["resourcePath"] = ev.ResourcePath
	}
	if ev.ResourceType != "" {
		details["resourceType"] = ev.ResourceType
	}

	cls := n.identityAdmin.Lookup(eventType)
	return model.CanonicalEvent{
		ID:        EventID(eventType, ts, ev.AuthDetails.UserID, ev.ResourcePath),
		Timestamp: ts,
		User:      ev.AuthDetails.UserID,
		Realm:     ev.RealmID,
		EventType: eventType,
		Details:   details,
		Source:    model.SourceIdentityAdmin,
		Priority:  cls.Priority,
		Facility:  cls.Facility,
	}, nil
}

// Application normalizes an application history event. Under the short-logs
// policy Details is always empty regardless of payload size, which bounds
// log volume for bulk operations.
func (n *Normalizer) Application(ev model.ApplicationEvent) (model.CanonicalEvent, error) {
	eventType := ev.Type
	if eventType == "" {
		eventType = unknownType
	}
	user := ev.By
	if user == "" {
		user = "system"
	}
	if ev.At != "" && !parseableTimestamp(ev.At) {
		return model.CanonicalEvent{}, &Error{Field: "at", Reason: fmt.Sprintf("unparsable timestamp %q", ev.At)}
	}

	details := map[string]any{}
	if !n.shortLogs {
		for k, v := range ev.Info {
			details[k] = v
		}
	}

	cls := n.application.Lookup(eventType)
	return model.CanonicalEvent{
		ID:          EventID(eventType, ev.At, user, ev.Project.ID),
		Timestamp:   ev.At,
		User:        user,
		ProjectID:   ev.Project.ID,
		ProjectName: ev.Project.Name,
		EventType:   eventType,
		Details:     details,
		Source:      model.SourceApplication,
		Priority:    cls.Priority,
		Facility:    cls.Facility,
	}, nil
}

// EventID derives a stable content-based identifier: the first 32 hex
// characters of the SHA-256 digest over the four key parts. Absent values
// contribute an empty string, so re-deriving the id for the same raw event
// is idempotent.
func EventID(eventType, timestamp, actor, discriminator string) string {
	key := strings.Join([]string{eventType, timestamp, actor, discriminator}, idSeparator)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// millisLayout keeps the source's millisecond resolution. Rendering at
// second granularity would merge distinct events into one id whenever they
// share a second and the session discriminator is empty.
const millisLayout = "2006-01-02T15:04:05.000Z07:00"

// identityTimestamp renders the identity event time. The integer epoch
// field wins; an ISO-string timestamp field is a fallback some deployments
// emit and passes through verbatim. Both absent maps to an empty string.
func identityTimestamp(ms int64, iso string) (string, error) {
	if ms == 0 {
		return iso, nil
	}
	if ms < 0 {
		return "", &Error{Field: "time", Reason: fmt.Sprintf("negative epoch value %d", ms)}
	}
	return time.UnixMilli(ms).UTC().Format(millisLayout), nil
}

// timestampLayouts covers the forms the application API emits: RFC3339 with
// or without fractional seconds, and zone-naive variants of both.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseableTimestamp(s string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func stringDetails(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
