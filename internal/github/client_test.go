package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "digestbot/pkg/logx"
)

func TestNotifications(t *testing.T) {
	t.Parallel()

	since := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/notifications" {
			t.Errorf("path = %s, want /notifications", r.URL.Path)
		}
		if got := r.URL.Query().Get("since"); got != "2024-03-10T09:00:00Z" {
			t.Errorf("since = %q, want 2024-03-10T09:00:00Z", got)
		}
		if got := r.URL.Query().Get("per_page"); got != "50" {
			t.Errorf("per_page = %q, want 50", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer gh-tok" {
			t.Errorf("Authorization = %q, want Bearer gh-tok", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
  {"id": "2", "reason": "mention", "updated_at": "2024-03-10T12:00:00Z",
   "subject": {"title": "Fix flaky test", "type": "PullRequest"},
   "repository": {"full_name": "octo/widgets"}},
  {"id": "1", "reason": "subscribed", "updated_at": "2024-03-10T10:00:00Z",
   "subject": {"title": "Release v2", "type": "Issue"},
   "repository": {"full_name": "octo/gadgets"}}
]`))
	}))
	defer srv.Close()

	c := New(Config{APIURL: srv.URL, Token: "gh-tok", RatePerSec: 100}, logx.Nop())
	got, err := c.Notifications(context.Background(), since, 50)
	if err != nil {
		t.Fatalf("Notifications() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "2" || got[1].ID != "1" {
		t.Fatalf("order = %s,%s, want 2,1 (upstream order preserved)", got[0].ID, got[1].ID)
	}
	if got[0].Subject.Title != "Fix flaky test" || got[0].Subject.Type != "PullRequest" {
		t.Fatalf("subject = %+v", got[0].Subject)
	}
	if got[1].Repository.FullName != "octo/gadgets" {
		t.Fatalf("repository = %q, want octo/gadgets", got[1].Repository.FullName)
	}
}

func TestNotificationsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "Bad credentials"}`))
	}))
	defer srv.Close()

	c := New(Config{APIURL: srv.URL, Token: "bad", RatePerSec: 100}, logx.Nop())
	_, err := c.Notifications(context.Background(), time.Now(), 50)
	if err == nil {
		t.Fatalf("Notifications() = nil error, want failure")
	}
	if !strings.Contains(err.Error(), "github API 401") {
		t.Fatalf("error = %q, want github API 401 prefix", err)
	}
}

func TestCreateIssue(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/repos/octo/widgets/issues" {
			t.Errorf("path = %s, want /repos/octo/widgets/issues", r.URL.Path)
		}
		var req IssueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.Title == "" || req.Body == "" {
			t.Errorf("request missing title/body: %+v", req)
		}
		if len(req.Labels) != 3 {
			t.Errorf("labels = %v, want 3 entries", req.Labels)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"number": 7, "html_url": "https://github.com/octo/widgets/issues/7"}`))
	}))
	defer srv.Close()

	c := New(Config{APIURL: srv.URL, Token: "gh-tok", RatePerSec: 100}, logx.Nop())
	issue, err := c.CreateIssue(context.Background(), "octo/widgets", IssueRequest{
		Title:  "Daily summary",
		Body:   "body",
		Labels: []string{"automated", "notifications", "summary"},
	})
	if err != nil {
		t.Fatalf("CreateIssue() error: %v", err)
	}
	if issue.Number != 7 {
		t.Fatalf("Number = %d, want 7", issue.Number)
	}
}
