package jira

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprintpilot/sprintpilot/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(domain.JiraConfig{Domain: "example.atlassian.net", Email: "a@b.c", APIToken: "tok"},
		5*time.Second, "customfield_10016", zerolog.Nop())
	// point at the test server instead of the derived https URL
	c.baseURL = srv.URL
	return c
}

func TestGetActiveSprint_NoneIsNil(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "state=active") {
			t.Errorf("expected state=active query, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"values":[]}`))
	})
	sp, err := c.GetActiveSprint(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sp != nil {
		t.Fatalf("expected nil sprint, got %+v", sp)
	}
}

func TestGetSprintIssues_DecodesFieldsAndDefaults(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if u, _, _ := r.BasicAuth(); u != "a@b.c" {
			t.Errorf("expected basic auth user, got %q", u)
		}
		w.Write([]byte(`{"issues":[
			{"key":"SP-1","fields":{
				"summary":"Login flow",
				"status":{"name":"In Progress"},
				"issuetype":{"name":"Story"},
				"assignee":{"displayName":"Alice Smith"},
				"priority":{"name":"High"},
				"customfield_10016":5}},
			{"key":"SP-2","fields":{
				"summary":"Crash on save",
				"status":{"name":"Open"},
				"issuetype":{"name":"Bug"},
				"assignee":null,
				"priority":null}}
		]}`))
	})
	issues, err := c.GetSprintIssues(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	first := issues[0]
	if first.Key != "SP-1" || first.Type != "Story" || first.Assignee != "Alice Smith" || first.StoryPoints != 5 {
		t.Fatalf("unexpected first issue: %+v", first)
	}
	second := issues[1]
	if second.Assignee != "Unassigned" || second.Priority != "Not set" || second.StoryPoints != 0 {
		t.Fatalf("defaults not applied: %+v", second)
	}
}

func TestErrorMapping(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	err := c.Myself(context.Background())
	var ae *domain.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}

	c = testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err = c.GetSprintDetails(context.Background(), 99)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRetryOnServerError(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id":3,"name":"Sprint 3","state":"active"}`))
	})
	sp, err := c.GetSprintDetails(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if sp.Name != "Sprint 3" || calls != 2 {
		t.Fatalf("expected success on second call, got %+v after %d calls", sp, calls)
	}
}
