package shared

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestErrors(t *testing.T) {
	tc := []struct {
		name     string
		kind     Kind
		sentinel error
		status   int
	}{
		{name: "invalid domain", kind: KindInvalidDomain, sentinel: ErrInvalidDomain, status: http.StatusNotFound},
		{name: "invalid credentials", kind: KindInvalidCredentials, sentinel: ErrInvalidCredentials, status: http.StatusForbidden},
		{name: "invalid input", kind: KindInvalidInput, sentinel: ErrInvalidInput, status: http.StatusForbidden},
		{name: "service unavailable", kind: KindServiceUnavailable, sentinel: ErrServiceUnavailable, status: http.StatusServiceUnavailable},
		{name: "connection", kind: KindConnection, sentinel: ErrConnection, status: http.StatusServiceUnavailable},
		{name: "no content", kind: KindNoContent, sentinel: ErrNoContent, status: http.StatusBadRequest},
		{name: "integrity", kind: KindIntegrity, sentinel: ErrIntegrity, status: http.StatusConflict},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			cause := errors.New("boom")
			err := fmt.Errorf("wrapped: %w", NewError(tt.kind, "message", cause))

			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.sentinel)
			}
			if !errors.Is(err, cause) {
				t.Errorf("cause should be reachable through Unwrap")
			}
			if KindOf(err) != tt.kind {
				t.Errorf("KindOf() = %v, want %v", KindOf(err), tt.kind)
			}
			if tt.kind.Status() != tt.status {
				t.Errorf("Status() = %d, want %d", tt.kind.Status(), tt.status)
			}
			if MessageOf(err, "fallback") != "message" {
				t.Errorf("MessageOf() = %q", MessageOf(err, "fallback"))
			}
		})
	}

	t.Run("plain errors", func(t *testing.T) {
		err := errors.New("plain")
		if KindOf(err) != KindUnknown {
			t.Errorf("expected unknown kind")
		}
		if MessageOf(err, "fallback") != "fallback" {
			t.Errorf("expected fallback message")
		}
		if errors.Is(NewError(KindIntegrity, "x", nil), ErrNoContent) {
			t.Errorf("kinds should not match other sentinels")
		}
	})
}

func TestPasswordHasher(t *testing.T) {
	h := &BcryptHasher{Cost: 4}

	hash, err := h.Hash("Secr3t!pass")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "Secr3t!pass" {
		t.Fatal("hash should not equal the password")
	}

	t.Run("match", func(t *testing.T) {
		ok, err := h.Compare(hash, "Secr3t!pass")
		if err != nil || !ok {
			t.Errorf("Compare() = %v, %v; want true, nil", ok, err)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		ok, err := h.Compare(hash, "wrong")
		if err != nil || ok {
			t.Errorf("Compare() = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("malformed hash", func(t *testing.T) {
		if _, err := h.Compare("not-a-hash", "x"); err == nil {
			t.Error("expected error for malformed hash")
		}
	})
}

func TestLogging(t *testing.T) {
	t.Run("ApplyLogLevel", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&buf)
		ApplyLogLevel(l, "error")
		if l.GetLevel() != log.ErrorLevel {
			t.Errorf("expected error level, got %v", l.GetLevel())
		}

		ApplyLogLevel(l, "loud")
		if l.GetLevel() != log.InfoLevel {
			t.Errorf("unknown level should fall back to info, got %v", l.GetLevel())
		}
	})

	t.Run("NewFileLogger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "amalgam.log")
		l, closer, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger() error = %v", err)
		}
		l.Info("hello from the tui")
		closer.Close()

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		if !strings.Contains(string(content), "hello from the tui") {
			t.Error("expected log line in file")
		}
	})

	t.Run("GenerateID", func(t *testing.T) {
		if GenerateID() == GenerateID() {
			t.Error("ids should be unique")
		}
		if GenerateState() == "" {
			t.Error("state should not be empty")
		}
	})

	t.Run("browserCommand", func(t *testing.T) {
		if _, err := browserCommand("plan9", "http://x"); err == nil {
			t.Error("expected unsupported platform error")
		}
		cmd, err := browserCommand("darwin", "http://x")
		if err != nil || cmd.Args[0] != "open" {
			t.Errorf("unexpected darwin command: %v %v", cmd, err)
		}
	})
}
