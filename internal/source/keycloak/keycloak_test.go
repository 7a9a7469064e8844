package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 10, 14, 12, 0, 0, 0, time.UTC)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURL:  srv.URL,
		Realm:    "master",
		ClientID: "admin-cli",
		Username: "admin",
		Password: "pw",
	})
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestAuthenticate(t *testing.T) {
	var gotPath, gotGrant string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		r.ParseForm()
		gotGrant = r.PostForm.Get("grant_type")
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
	}))

	token, err := c.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if token != "tok-1" {
		t.Fatalf("unexpected token %q", token)
	}
	if gotPath != "/realms/master/protocol/openid-connect/token" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotGrant != "password" {
		t.Fatalf("unexpected grant type %q", gotGrant)
	}
}

func TestAuthenticateMissingToken(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_type":"Bearer"}`))
	}))

	if _, err := c.Authenticate(context.Background()); err == nil {
		t.Fatal("expected error for missing access_token")
	}
}

func TestAuthenticateRejected(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))

	if _, err := c.Authenticate(context.Background()); err == nil {
		t.Fatal("expected error for rejected credentials")
	}
}

func TestFetchUserEvents(t *testing.T) {
	recent := fixedNow.Add(-30 * time.Minute).UnixMilli()
	stale := fixedNow.Add(-3 * time.Hour).UnixMilli()

	var gotPath, gotFrom, gotTo, gotAuth string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFrom = r.URL.Query().Get("dateFrom")
		gotTo = r.URL.Query().Get("dateTo")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprintf(w, `[
			{"type":"LOGIN","time":%d,"userId":"u1","sessionId":"s1"},
			{"type":"LOGOUT","time":%d,"userId":"u1","sessionId":"s1"},
			{"type":"LOGIN","userId":"u2","sessionId":"s2"}
		]`, recent, stale)
	}))

	events, err := c.FetchUserEvents(context.Background(), "tok", time.Hour)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/admin/realms/master/events" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth %q", gotAuth)
	}
	// Window is 1h; the query reaches a day further back, date-granular.
	if gotFrom != "2025-10-13" || gotTo != "2025-10-14" {
		t.Fatalf("unexpected date range %q..%q", gotFrom, gotTo)
	}

	// Stale event filtered out by the precise cutoff; the timeless event
	// is kept.
	if len(events) != 2 {
		t.Fatalf("expected 2 events after refilter, got %d", len(events))
	}
	if events[0].Type != "LOGIN" || events[0].UserID != "u1" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Time != 0 {
		t.Fatalf("expected timeless event kept, got %+v", events[1])
	}
}

func TestFetchAdminEvents(t *testing.T) {
	recent := fixedNow.Add(-10 * time.Minute).UnixMilli()

	var gotPath string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprintf(w, `[
			{"operationType":"DELETE","time":%d,"resourcePath":"users/123","authDetails":{"userId":"admin-1"}}
		]`, recent)
	}))

	events, err := c.FetchAdminEvents(context.Background(), "tok", time.Hour)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/admin/realms/master/admin-events" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.OperationType != "DELETE" || ev.ResourcePath != "users/123" || ev.AuthDetails.UserID != "admin-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestFetchUserEventsServerError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
	}))
	if _, err := c.FetchUserEvents(context.Background(), "tok", time.Hour); err == nil {
		t.Fatal("expected error")
	}
}

func TestInWindow(t *testing.T) {
	since := fixedNow.Add(-time.Hour)
	cases := []struct {
		name   string
		millis int64
		iso    string
		want   bool
	}{
		{"recent", fixedNow.Add(-time.Minute).UnixMilli(), "", true},
		{"exactly at cutoff", since.UnixMilli(), "", true},
		{"stale", since.Add(-time.Second).UnixMilli(), "", false},
		{"missing time kept", 0, "", true},
		{"string time recent", 0, fixedNow.Add(-time.Minute).Format(time.RFC3339), true},
		{"string time stale", 0, since.Add(-time.Second).Format(time.RFC3339), false},
		{"unparsable string kept", 0, "not-a-time", true},
		{"integer wins over string", since.Add(-time.Second).UnixMilli(), fixedNow.Format(time.RFC3339), false},
	}
	for _, tc := range cases {
		if got := inWindow(tc.millis, tc.iso, since); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
