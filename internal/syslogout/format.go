// Package syslogout renders canonical events as RFC5424 messages and
// delivers them to a remote collector, one connection per event.
package syslogout

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/seclogix/auditpipe/internal/model"
)

// BOM precedes MSG so the collector knows the body may contain
// non-ASCII text (RFC5424 §6.4).
const bom = "\ufeff"

// APP-NAME tags by source category.
const (
	appNameApplication = "scanfactory-app"
	appNameIdentity    = "keycloak"
	appNameUnknown     = "unknown"
)

// Format renders one RFC5424 message:
//
//	<PRI>1 TIMESTAMP HOSTNAME APP-NAME PROCID MSGID STRUCTURED-DATA MSG\n
//
// PRI is facility*8 + severity, where severity clamps the event priority to
// the valid 0-7 range. MSG is the canonical event as compact JSON preceded
// by a UTF-8 BOM. now supplies the substitute for events with no timestamp.
func Format(ev model.CanonicalEvent, hostname string, now time.Time) (string, error) {
	msg, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("syslogout: marshal event %s: %w", ev.ID, err)
	}

	severity := ev.Priority
	if severity > 7 {
		severity = 7
	}
	pri := ev.Facility*8 + severity

	msgid := ev.EventType
	if msgid == "" {
		msgid = "-"
	}

	return fmt.Sprintf("<%d>1 %s %s %s - %s - %s%s\n",
		pri,
		NormalizeTimestamp(ev.Timestamp, now),
		hostname,
		appName(ev.Source),
		msgid,
		bom,
		msg,
	), nil
}

func appName(s model.Source) string {
	switch s {
	case model.SourceApplication:
		return appNameApplication
	case model.SourceIdentityUser, model.SourceIdentityAdmin:
		return appNameIdentity
	default:
		return appNameUnknown
	}
}

// NormalizeTimestamp coerces a stored timestamp into the zone-qualified
// ISO-8601 form RFC5424 requires. Zone-naive input is taken as UTC and gets
// "+00:00" appended; an empty input is replaced with now in UTC. Input that
// already carries an offset passes through unchanged.
func NormalizeTimestamp(ts string, now time.Time) string {
	if ts == "" {
		ts = now.UTC().Format(time.RFC3339)
	}
	// A third dash marks a negative zone offset (the first two separate the
	// date parts).
	zoned := strings.HasSuffix(ts, "Z") || strings.Contains(ts, "+") || strings.Count(ts, "-") > 2
	if !zoned {
		ts += "Z"
	}
	if strings.HasSuffix(ts, "Z") {
		ts = strings.TrimSuffix(ts, "Z") + "+00:00"
	}
	return ts
}
