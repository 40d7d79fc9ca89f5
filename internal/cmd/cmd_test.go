package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/collabd/internal/config"
	"github.com/Iron-Ham/collabd/internal/coordination"
	"github.com/Iron-Ham/collabd/internal/logging"
	"github.com/Iron-Ham/collabd/internal/session"
)

func TestRootCommand(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd is nil")
	}

	if rootCmd.Use != "collabd" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "collabd")
	}

	expectedCmds := []string{"serve", "sessions", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}

	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestServeCommand_Flags(t *testing.T) {
	if serveCmd.Flags().Lookup("addr") == nil {
		t.Error("serve should have an --addr flag")
	}
	if sessionsCmd.Flags().Lookup("server") == nil {
		t.Error("sessions should have a --server flag")
	}
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "http://localhost:8080"},
		{"127.0.0.1:9000", "http://127.0.0.1:9000"},
		{"collab.internal:80", "http://collab.internal:80"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := serverURL(tt.addr); got != tt.want {
				t.Errorf("serverURL(%q) = %q, want %q", tt.addr, got, tt.want)
			}
		})
	}
}

func TestIdleFor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		last time.Time
		want string
	}{
		{"zero", time.Time{}, "-"},
		{"seconds", now.Add(-20 * time.Second), "now"},
		{"minutes", now.Add(-7 * time.Minute), "7m"},
		{"hours", now.Add(-3 * time.Hour), "3h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := idleFor(now, tt.last); got != tt.want {
				t.Errorf("idleFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("employee/42", 20); got != "employee/42" {
		t.Errorf("truncate() = %q, want unchanged", got)
	}
	if got := truncate("employee/1234567890", 10); got != "employee/…" {
		t.Errorf("truncate() = %q, want %q", got, "employee/…")
	}
}

func TestRenderSessions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		renderSessions(&buf, nil, 80, now)
		if !strings.Contains(buf.String(), "No live sessions.") {
			t.Errorf("output should report no sessions:\n%s", buf.String())
		}
	})

	t.Run("rows", func(t *testing.T) {
		var buf bytes.Buffer
		renderSessions(&buf, []coordination.Summary{
			{EntityType: "employee", EntityID: "42", Status: session.StatusActive, Participants: 2, Locks: 1, PendingConflicts: 1, Version: 7, LastActivity: now.Add(-2 * time.Minute)},
			{EntityType: "invoice", EntityID: "9", Status: session.StatusInactive, LastActivity: now.Add(-2 * time.Hour)},
		}, 100, now)

		out := buf.String()
		for _, want := range []string{"ENTITY", "employee/42", "invoice/9", "active", "inactive", "2m", "2h", "2 session(s)"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})
}

func TestFetchSessions(t *testing.T) {
	want := []coordination.Summary{{EntityType: "employee", EntityID: "42", Status: session.StatusActive, Participants: 1}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sessions" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	got, err := fetchSessions(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("fetchSessions() error = %v", err)
	}
	if len(got) != 1 || got[0].EntityID != "42" || got[0].Participants != 1 {
		t.Errorf("fetchSessions() = %+v", got)
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()
	if _, err := fetchSessions(context.Background(), bad.URL); err == nil {
		t.Error("fetchSessions() should fail on a non-200 response")
	}
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Default()
	cfg.Server.ShutdownTimeoutSeconds = 2
	a, err := newApp(cfg, logging.NopLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	return a
}

func TestNewApp_InvalidOrigin(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.AllowedOrigins = []string{"https://["}
	if _, err := newApp(cfg, logging.NopLogger()); err == nil {
		t.Error("newApp() should reject an invalid origin pattern")
	}
}

func TestApp_Reload(t *testing.T) {
	a := newTestApp(t)

	next := config.Default()
	next.Logging.Level = "debug"
	next.Lock.DurationMinutes = 12
	a.reload(next, nil)

	if got := a.logger.Level(); got != logging.LevelDebug {
		t.Errorf("logger level = %q, want %q", got, logging.LevelDebug)
	}
	if got := a.hub.Locks().Duration(); got != 12*time.Minute {
		t.Errorf("lock duration = %v, want 12m", got)
	}

	// An invalid config leaves the running settings alone.
	a.reload(nil, config.ValidationErrors{{Field: "lock.duration_minutes", Value: 0, Message: "must be positive"}})
	if got := a.hub.Locks().Duration(); got != 12*time.Minute {
		t.Errorf("lock duration after invalid reload = %v, want 12m", got)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	a := newTestApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	deadline := time.Now().Add(3 * time.Second)
	var resp *http.Response
	for {
		resp, err = http.Get(url)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	var health struct {
		Status   string `json:"status"`
		Sweeping bool   `json:"sweeping"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&health)
	_ = resp.Body.Close()
	if health.Status != "ok" || !health.Sweeping {
		t.Errorf("health = %+v, want ok and sweeping", health)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
	if a.hub.Running() {
		t.Error("hub should be stopped after shutdown")
	}
}
