package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seclogix/auditpipe/internal/classify"
	"github.com/seclogix/auditpipe/internal/model"
	"github.com/seclogix/auditpipe/internal/normalize"
	"github.com/seclogix/auditpipe/internal/store"
)

// --- mocks ---

type memStore struct {
	records   map[string]store.Record
	loadErr   error
	insertErr error
	inserts   int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]store.Record)}
}

func (m *memStore) LoadIDs(_ context.Context) (map[string]struct{}, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	ids := make(map[string]struct{}, len(m.records))
	for id := range m.records {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (m *memStore) Exists(_ context.Context, id string) (bool, error) {
	_, ok := m.records[id]
	return ok, nil
}

func (m *memStore) Insert(_ context.Context, rec store.Record) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserts++
	if _, ok := m.records[rec.ID]; ok {
		return nil
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *memStore) Prune(_ context.Context, _ time.Duration) (int64, error) { return 0, nil }

func (m *memStore) Stats(_ context.Context) (store.Stats, error) {
	return store.Stats{Total: int64(len(m.records))}, nil
}

func (m *memStore) Close() error { return nil }

type mockIdentity struct {
	authErr     error
	userEvents  []model.IdentityUserEvent
	userErr     error
	adminEvents []model.IdentityAdminEvent
	adminErr    error
}

func (m *mockIdentity) Authenticate(_ context.Context) (string, error) {
	if m.authErr != nil {
		return "", m.authErr
	}
	return "tok", nil
}

func (m *mockIdentity) FetchUserEvents(_ context.Context, _ string, _ time.Duration) ([]model.IdentityUserEvent, error) {
	return m.userEvents, m.userErr
}

func (m *mockIdentity) FetchAdminEvents(_ context.Context, _ string, _ time.Duration) ([]model.IdentityAdminEvent, error) {
	return m.adminEvents, m.adminErr
}

type mockApp struct {
	events []model.ApplicationEvent
	err    error
}

func (m *mockApp) Fetch(_ context.Context, _ time.Duration) ([]model.ApplicationEvent, error) {
	return m.events, m.err
}

type mockSender struct {
	sent    []model.CanonicalEvent
	failIDs map[string]bool
}

func (m *mockSender) Send(_ context.Context, ev model.CanonicalEvent) error {
	if m.failIDs[ev.ID] {
		return fmt.Errorf("mock transport down")
	}
	m.sent = append(m.sent, ev)
	return nil
}

func newPipeline(st store.Store, identity IdentitySource, app ApplicationSource, sender Sender) *Pipeline {
	norm := normalize.New(
		classify.IdentityUserDefaults(),
		classify.IdentityAdminDefaults(),
		classify.ApplicationDefaults(),
		true,
	)
	return New(st, norm, sender, identity, app, time.Hour, zap.NewNop())
}

func loginEvent() model.IdentityUserEvent {
	return model.IdentityUserEvent{
		Type:      "LOGIN",
		Time:      1760445296000,
		UserID:    "u1",
		SessionID: "s1",
	}
}

func TestRunEndToEnd(t *testing.T) {
	st := newMemStore()
	sender := &mockSender{}
	identity := &mockIdentity{userEvents: []model.IdentityUserEvent{loginEvent()}}
	app := &mockApp{}

	stats := newPipeline(st, identity, app, sender).Run(context.Background())

	if stats.Errors != 0 {
		t.Fatalf("expected 0 errors, got %d", stats.Errors)
	}
	if stats.IdentityUser != 1 || stats.Sent != 1 {
		t.Fatalf("expected 1 new / 1 sent, got %+v", stats)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(sender.sent))
	}
	ev := sender.sent[0]
	if len(ev.ID) != 32 {
		t.Fatalf("expected 32-char id, got %q", ev.ID)
	}
	if ev.Priority != 14 || ev.Facility != 4 {
		t.Fatalf("LOGIN: expected (14,4), got (%d,%d)", ev.Priority, ev.Facility)
	}
	if len(st.records) != 1 {
		t.Fatalf("expected exactly 1 store record, got %d", len(st.records))
	}
	if _, ok := st.records[ev.ID]; !ok {
		t.Fatal("store record id does not match delivered event")
	}
}

func TestRunPreSeededDuplicate(t *testing.T) {
	st := newMemStore()
	sender := &mockSender{}
	identity := &mockIdentity{userEvents: []model.IdentityUserEvent{loginEvent()}}

	// First run records the event.
	newPipeline(st, identity, &mockApp{}, sender).Run(context.Background())
	insertsAfterFirst := st.inserts

	// Second run sees it as a duplicate: never re-sent, never re-inserted.
	stats := newPipeline(st, identity, &mockApp{}, sender).Run(context.Background())

	if stats.DupIdentityUser != 1 || stats.IdentityUser != 0 {
		t.Fatalf("expected 1 duplicate / 0 new, got %+v", stats)
	}
	if stats.Sent != 0 {
		t.Fatalf("duplicate must not be re-sent, got sent=%d", stats.Sent)
	}
	if st.inserts != insertsAfterFirst {
		t.Fatalf("duplicate must not be re-inserted: %d -> %d", insertsAfterFirst, st.inserts)
	}
	if len(st.records) != 1 {
		t.Fatalf("expected store count to stay 1, got %d", len(st.records))
	}
}

func TestRunIntraBatchDuplicate(t *testing.T) {
	st := newMemStore()
	sender := &mockSender{}
	// Same logical event twice in one batch.
	identity := &mockIdentity{userEvents: []model.IdentityUserEvent{loginEvent(), loginEvent()}}

	stats := newPipeline(st, identity, &mockApp{}, sender).Run(context.Background())

	if stats.IdentityUser != 1 || stats.DupIdentityUser != 1 {
		t.Fatalf("expected 1 new / 1 duplicate, got %+v", stats)
	}
	if stats.Sent != 1 {
		t.Fatalf("expected 1 sent, got %d", stats.Sent)
	}
}

func TestRunNormalizationFailureIsolated(t *testing.T) {
	st := newMemStore()
	sender := &mockSender{}
	bad := loginEvent()
	bad.Time = -1
	identity := &mockIdentity{userEvents: []model.IdentityUserEvent{bad, loginEvent()}}

	stats := newPipeline(st, identity, &mockApp{}, sender).Run(context.Background())

	if stats.Errors != 1 {
		t.Fatalf("expected 1 error, got %d", stats.Errors)
	}
	if stats.IdentityUser != 1 || stats.Sent != 1 {
		t.Fatalf("good event must still flow, got %+v", stats)
	}
}

func TestRunSourceFailureIsolated(t *testing.T) {
	st := newMemStore()
	sender := &mockSender{}
	identity := &mockIdentity{authErr: fmt.Errorf("identity provider down")}
	app := &mockApp{events: []model.ApplicationEvent{{
		Project: model.ProjectRef{ID: "p-1", Name: "acme"},
		By:      "alice",
		At:      "2025-10-14T11:30:00+00:00",
		Type:    "proj-del",
	}}}

	stats := newPipeline(st, identity, app, sender).Run(context.Background())

	if stats.Errors != 1 {
		t.Fatalf("expected 1 error for the failed source, got %d", stats.Errors)
	}
	if stats.App != 1 || stats.Sent != 1 {
		t.Fatalf("application source must still be processed, got %+v", stats)
	}
}

func TestRunSendFailureKeepsRecord(t *testing.T) {
	st := newMemStore()
	identity := &mockIdentity{userEvents: []model.IdentityUserEvent{loginEvent()}}

	// Discover the derived id, then fail its delivery.
	probe := &mockSender{}
	newPipeline(newMemStore(), identity, &mockApp{}, probe).Run(context.Background())
	id := probe.sent[0].ID

	failing := &mockSender{failIDs: map[string]bool{id: true}}
	stats := newPipeline(st, identity, &mockApp{}, failing).Run(context.Background())

	if stats.Sent != 0 || stats.Errors != 1 {
		t.Fatalf("expected failed send counted, got %+v", stats)
	}
	// At-most-once: the id stays recorded even though delivery failed.
	if _, ok := st.records[id]; !ok {
		t.Fatal("expected id recorded despite failed delivery")
	}

	// A later run treats it as a duplicate, not a retry.
	stats = newPipeline(st, identity, &mockApp{}, &mockSender{}).Run(context.Background())
	if stats.DupIdentityUser != 1 || stats.Sent != 0 {
		t.Fatalf("expected duplicate on later run, got %+v", stats)
	}
}

func TestRunSendFailureDoesNotAbortBatch(t *testing.T) {
	st := newMemStore()
	second := loginEvent()
	second.SessionID = "s2"
	identity := &mockIdentity{userEvents: []model.IdentityUserEvent{loginEvent(), second}}

	probe := &mockSender{}
	newPipeline(newMemStore(), identity, &mockApp{}, probe).Run(context.Background())
	firstID := probe.sent[0].ID

	failing := &mockSender{failIDs: map[string]bool{firstID: true}}
	stats := newPipeline(st, identity, &mockApp{}, failing).Run(context.Background())

	if stats.Sent != 1 || stats.Errors != 1 {
		t.Fatalf("expected 1 sent / 1 error, got %+v", stats)
	}
}

func TestRunLoadFailureAborts(t *testing.T) {
	st := newMemStore()
	st.loadErr = fmt.Errorf("disk gone")
	identity := &mockIdentity{userEvents: []model.IdentityUserEvent{loginEvent()}}
	sender := &mockSender{}

	stats := newPipeline(st, identity, &mockApp{}, sender).Run(context.Background())

	if !stats.Failed() {
		t.Fatal("expected run marked failed")
	}
	if len(sender.sent) != 0 {
		t.Fatal("nothing may be sent without the dedup set")
	}
}

func TestRunInsertFailureSkipsSend(t *testing.T) {
	st := newMemStore()
	st.insertErr = fmt.Errorf("disk full")
	identity := &mockIdentity{userEvents: []model.IdentityUserEvent{loginEvent()}}
	sender := &mockSender{}

	stats := newPipeline(st, identity, &mockApp{}, sender).Run(context.Background())

	if stats.Errors != 1 || stats.Sent != 0 {
		t.Fatalf("expected insert failure to block send, got %+v", stats)
	}
}

func TestStatsHelpers(t *testing.T) {
	s := Stats{DupIdentityUser: 1, DupIdentityAdmin: 2, DupApp: 3}
	if s.Duplicates() != 6 {
		t.Fatalf("expected 6 duplicates, got %d", s.Duplicates())
	}
	if s.Failed() {
		t.Fatal("no errors: expected Failed()==false")
	}
	s.Errors = 1
	if !s.Failed() {
		t.Fatal("expected Failed()==true")
	}
}
