package shared

import (
	"bytes"
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestRandomToken(t *testing.T) {
	t.Run("encodes without padding", func(t *testing.T) {
		tok := RandomToken(64)
		if len(tok) != 86 {
			t.Errorf("expected 86 characters for 64 bytes, got %d", len(tok))
		}
		if strings.ContainsAny(tok, "=+/") {
			t.Errorf("token %q is not unpadded base64url", tok)
		}

		raw, err := base64.RawURLEncoding.DecodeString(tok)
		if err != nil {
			t.Fatalf("token does not decode: %v", err)
		}
		if len(raw) != 64 {
			t.Errorf("expected 64 decoded bytes, got %d", len(raw))
		}
	})

	t.Run("distinct across calls", func(t *testing.T) {
		seen := make(map[string]bool)
		for range 100 {
			tok := RandomToken(32)
			if seen[tok] {
				t.Fatalf("duplicate token %q", tok)
			}
			seen[tok] = true
		}
	})
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected distinct IDs")
	}
	if len(a) != 36 {
		t.Errorf("expected uuid string, got %q", a)
	}
}

func TestConfigureLogger(t *testing.T) {
	t.Run("applies level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		cfg := DefaultConfig()
		cfg.Log.Level = "warn"

		ConfigureLogger(logger, cfg)

		if logger.GetLevel() != log.WarnLevel {
			t.Errorf("expected warn level, got %v", logger.GetLevel())
		}
		logger.Info("hidden")
		if buf.Len() != 0 {
			t.Errorf("info line should be filtered, got %q", buf.String())
		}
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		logger := NewLogger(&bytes.Buffer{})
		cfg := DefaultConfig()
		cfg.Log.Level = "chatty"

		ConfigureLogger(logger, cfg)

		if logger.GetLevel() != log.InfoLevel {
			t.Errorf("expected info level, got %v", logger.GetLevel())
		}
	})

	t.Run("json in production", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		cfg := DefaultConfig()
		cfg.Server.Environment = "production"

		ConfigureLogger(logger, cfg)
		logger.Info("hello", "component", "test")

		if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
			t.Errorf("expected JSON output, got %q", buf.String())
		}
	})
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cur8.log")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create file logger: %v", err)
	}
	logger.Info("written")
}

func TestBrowserCommand(t *testing.T) {
	for _, goos := range []string{"darwin", "linux", "windows"} {
		t.Run(goos, func(t *testing.T) {
			cmd, err := browserCommand(goos, "https://example.com")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := cmd.Args[len(cmd.Args)-1]; got != "https://example.com" {
				t.Errorf("expected url as last argument, got %q", got)
			}
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		if _, err := browserCommand("plan9", "https://example.com"); err == nil {
			t.Error("expected error for unsupported platform")
		}
	})
}
