package modmail

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/ModForge/internal/port/notifier"
)

// Compile-time interface check.
var _ notifier.Notifier = (*Notifier)(nil)

func TestNotifierName(t *testing.T) {
	n := NewNotifier("", "", nil)
	if n.Name() != "modmail" {
		t.Fatalf("expected 'modmail', got %q", n.Name())
	}
}

func TestSendNotConfigured(t *testing.T) {
	for name, n := range map[string]*Notifier{
		"no token":      NewNotifier("", "agent", []string{"mod1"}),
		"no recipients": NewNotifier("tok", "agent", nil),
	} {
		err := n.Send(context.Background(), notifier.Notification{Title: "test"})
		if !errors.Is(err, notifier.ErrNotConfigured) {
			t.Errorf("%s: expected ErrNotConfigured, got %v", name, err)
		}
	}
}

func TestSendComposesPerRecipient(t *testing.T) {
	type msg struct {
		to, subject, text string
	}
	var sent []msg
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/compose" {
			t.Errorf("path = %s, want /api/compose", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		sent = append(sent, msg{
			to:      r.Form.Get("to"),
			subject: r.Form.Get("subject"),
			text:    r.Form.Get("text"),
		})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier("tok", "agent", []string{"mod1", "mod2"}, WithBaseURL(srv.URL))
	err := n.Send(context.Background(), notifier.Notification{
		Title:   "Daily budget at 90%",
		Message: "Spent $0.90 of $1.00 today.",
		Level:   "warning",
		Source:  "budget.alert",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	if sent[0].to != "mod1" || sent[1].to != "mod2" {
		t.Errorf("recipients = %q, %q", sent[0].to, sent[1].to)
	}
	if sent[0].subject != "[WARNING] Daily budget at 90%" {
		t.Errorf("subject = %q", sent[0].subject)
	}
	if want := "Spent $0.90 of $1.00 today.\n\n---\nSource: budget.alert"; sent[0].text != want {
		t.Errorf("text = %q, want %q", sent[0].text, want)
	}
}

func TestSendInfoLevelKeepsPlainSubject(t *testing.T) {
	var subject string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		subject = r.Form.Get("subject")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier("tok", "agent", []string{"mod1"}, WithBaseURL(srv.URL))
	if err := n.Send(context.Background(), notifier.Notification{Title: "Digest", Level: "info"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Digest" {
		t.Errorf("subject = %q, want Digest", subject)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"forbidden"}`))
	}))
	defer srv.Close()

	n := NewNotifier("tok", "agent", []string{"mod1"}, WithBaseURL(srv.URL))
	err := n.Send(context.Background(), notifier.Notification{Title: "Test"})
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}
