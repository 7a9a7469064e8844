// Package pipeline sequences one export run: retrieve, normalize, dedup,
// persist, send. Per-item failures are converted into counted statistics so
// one bad event or one unreachable source never aborts the run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seclogix/auditpipe/internal/model"
	"github.com/seclogix/auditpipe/internal/normalize"
	"github.com/seclogix/auditpipe/internal/store"
)

// IdentitySource retrieves events from the identity provider.
type IdentitySource interface {
	Authenticate(ctx context.Context) (string, error)
	FetchUserEvents(ctx context.Context, token string, window time.Duration) ([]model.IdentityUserEvent, error)
	FetchAdminEvents(ctx context.Context, token string, window time.Duration) ([]model.IdentityAdminEvent, error)
}

// ApplicationSource retrieves events from the application history API.
type ApplicationSource interface {
	Fetch(ctx context.Context, window time.Duration) ([]model.ApplicationEvent, error)
}

// Sender delivers one canonical event to the collector.
type Sender interface {
	Send(ctx context.Context, ev model.CanonicalEvent) error
}

// Stats aggregates the outcome of one run.
type Stats struct {
	IdentityUser     int
	IdentityAdmin    int
	App              int
	DupIdentityUser  int
	DupIdentityAdmin int
	DupApp           int
	Sent             int
	Errors           int
	Elapsed          time.Duration
}

// Duplicates returns the total number of suppressed duplicates.
func (s Stats) Duplicates() int {
	return s.DupIdentityUser + s.DupIdentityAdmin + s.DupApp
}

// Failed reports whether any stage accumulated an error.
func (s Stats) Failed() bool { return s.Errors > 0 }

// Pipeline wires the collaborators for one run. It is not safe for
// concurrent use; the operating environment serializes invocations.
type Pipeline struct {
	store    store.Store
	norm     *normalize.Normalizer
	sender   Sender
	identity IdentitySource
	app      ApplicationSource
	window   time.Duration
	log      *zap.Logger
}

// New creates a Pipeline from the given components.
func New(st store.Store, norm *normalize.Normalizer, sender Sender, identity IdentitySource, app ApplicationSource, window time.Duration, log *zap.Logger) *Pipeline {
	return &Pipeline{
		store:    st,
		norm:     norm,
		sender:   sender,
		identity: identity,
		app:      app,
		window:   window,
		log:      log,
	}
}

// Run executes one end-to-end export pass and returns its statistics.
// A failure to load the known-id set aborts the run (forwarding without
// dedup would re-deliver the whole window); everything after that point is
// isolated per source or per event.
func (p *Pipeline) Run(ctx context.Context) Stats {
	start := time.Now()
	var stats Stats

	seen, err := p.store.LoadIDs(ctx)
	if err != nil {
		p.log.Error("loading known event ids failed", zap.Error(err))
		stats.Errors++
		stats.Elapsed = time.Since(start)
		return stats
	}
	p.log.Info("loaded known event ids", zap.Int("count", len(seen)))

	var pending []model.CanonicalEvent

	if err := p.collectIdentity(ctx, seen, &pending, &stats); err != nil {
		p.log.Error("identity event retrieval failed", zap.Error(err))
		stats.Errors++
	}
	if err := p.collectApplication(ctx, seen, &pending, &stats); err != nil {
		p.log.Error("application event retrieval failed", zap.Error(err))
		stats.Errors++
	}

	p.log.Info("sending events", zap.Int("count", len(pending)))
	for i, ev := range pending {
		if err := p.sender.Send(ctx, ev); err != nil {
			p.log.Error("send failed",
				zap.String("event_id", ev.ID),
				zap.String("event_type", ev.EventType),
				zap.Error(err))
			stats.Errors++
			continue
		}
		stats.Sent++
		if (i+1)%10 == 0 {
			p.log.Info("send progress", zap.Int("sent", i+1), zap.Int("total", len(pending)))
		}
	}

	stats.Elapsed = time.Since(start)
	return stats
}

// collectIdentity fetches both identity streams, then normalizes and admits
// each event. A token or fetch failure aborts only this source.
func (p *Pipeline) collectIdentity(ctx context.Context, seen map[string]struct{}, pending *[]model.CanonicalEvent, stats *Stats) error {
	token, err := p.identity.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	userEvents, err := p.identity.FetchUserEvents(ctx, token, p.window)
	if err != nil {
		return fmt.Errorf("user events: %w", err)
	}
	adminEvents, err := p.identity.FetchAdminEvents(ctx, token, p.window)
	if err != nil {
		return fmt.Errorf("admin events: %w", err)
	}

	for _, raw := range userEvents {
		ev, err := p.norm.IdentityUser(raw)
		if err != nil {
			p.log.Error("normalizing identity user event failed", zap.Error(err))
			stats.Errors++
			continue
		}
		p.admit(ctx, ev, seen, pending, &stats.IdentityUser, &stats.DupIdentityUser, stats)
	}
	for _, raw := range adminEvents {
		ev, err := p.norm.IdentityAdmin(raw)
		if err != nil {
			p.log.Error("normalizing identity admin event failed", zap.Error(err))
			stats.Errors++
			continue
		}
		p.admit(ctx, ev, seen, pending, &stats.IdentityAdmin, &stats.DupIdentityAdmin, stats)
	}

	p.log.Info("collected identity events",
		zap.Int("user_new", stats.IdentityUser),
		zap.Int("admin_new", stats.IdentityAdmin),
		zap.Int("user_duplicates", stats.DupIdentityUser),
		zap.Int("admin_duplicates", stats.DupIdentityAdmin))
	return nil
}

func (p *Pipeline) collectApplication(ctx context.Context, seen map[string]struct{}, pending *[]model.CanonicalEvent, stats *Stats) error {
	events, err := p.app.Fetch(ctx, p.window)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	for _, raw := range events {
		ev, err := p.norm.Application(raw)
		if err != nil {
			p.log.Error("normalizing application event failed", zap.Error(err))
			stats.Errors++
			continue
		}
		p.admit(ctx, ev, seen, pending, &stats.App, &stats.DupApp, stats)
	}

	p.log.Info("collected application events",
		zap.Int("new", stats.App),
		zap.Int("duplicates", stats.DupApp))
	return nil
}

// admit applies the dedup check and records a new event. The id goes into
// the in-memory set and the store before any send attempt, so duplicates
// later in the same batch are caught and a failed delivery is never
// retried on a later run.
func (p *Pipeline) admit(ctx context.Context, ev model.CanonicalEvent, seen map[string]struct{}, pending *[]model.CanonicalEvent, newCount, dupCount *int, stats *Stats) {
	if _, dup := seen[ev.ID]; dup {
		*dupCount++
		return
	}
	if err := p.store.Insert(ctx, store.RecordOf(ev)); err != nil {
		p.log.Error("recording event id failed",
			zap.String("event_id", ev.ID),
			zap.Error(err))
		stats.Errors++
		return
	}
	seen[ev.ID] = struct{}{}
	*pending = append(*pending, ev)
	*newCount++
}
