package authclient

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "", want: slog.LevelInfo},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: " warning ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLevel(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("parseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("session expired", "path", "/api/projects")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record above the level, got %d", len(lines))
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["msg"] != "session expired" || rec["path"] != "/api/projects" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestNewLoggerRejectsUnknownFormat(t *testing.T) {
	if _, err := NewLogger(LogConfig{Format: "xml"}, nil); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}

func TestClientLogsNeverContainTokens(t *testing.T) {
	s := newBackend(t)
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "debug", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	c, store := loggedInClientWith(t, s, New().WithConfig(testConfig(s.URL())).WithLogger(logger))
	pair, _ := storedPair(t, store)

	s.ExpireAccessTokens()
	resp, err := get(t, c, "/api/auth/me")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	rotated, _ := storedPair(t, store)

	out := buf.String()
	if !strings.Contains(out, "login succeeded") || !strings.Contains(out, "token refreshed") {
		t.Fatalf("expected lifecycle records, got:\n%s", out)
	}
	for _, tok := range []string{pair.AccessToken, pair.RefreshToken, rotated.AccessToken, rotated.RefreshToken} {
		if strings.Contains(out, tok) {
			t.Fatal("log output leaked a token value")
		}
	}
}
