package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("port = %v, want 8080", cfg.Server.Port)
		}
		if cfg.Tokenizer.Encoding != "cl100k_base" {
			t.Errorf("encoding = %q, want cl100k_base", cfg.Tokenizer.Encoding)
		}
		if cfg.Tokenizer.CacheSize != 1024 {
			t.Errorf("cache_size = %d, want 1024", cfg.Tokenizer.CacheSize)
		}
		if cfg.Storage.Type != "memory" {
			t.Errorf("storage.type = %q, want memory", cfg.Storage.Type)
		}
		if cfg.RequestTimeout() != 30*time.Second {
			t.Errorf("RequestTimeout() = %v, want 30s", cfg.RequestTimeout())
		}
	})

	t.Run("env var port override", func(t *testing.T) {
		t.Setenv("CTX_SERVER__PORT", "9000")

		cfg, err := LoadFile("")
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if cfg.Server.Port != 9000 {
			t.Errorf("port = %v, want 9000", cfg.Server.Port)
		}
	})

	t.Run("yaml file", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 7070
tokenizer:
  encoding: o200k_base
  cache_size: 0
  strict: true
storage:
  type: sqlite
  sqlite:
    path: ${CTX_TEST_DATA_DIR}/usage.db
budget:
  reserve: 1024
  context_windows:
    - prefix: llama-3
      tokens: 8192
    - prefix: gpt-4.1
      tokens: 0
`)
		t.Setenv("CTX_TEST_DATA_DIR", "/var/lib/ctx")

		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Errorf("port = %d, want 7070", cfg.Server.Port)
		}
		if cfg.Tokenizer.Encoding != "o200k_base" || cfg.Tokenizer.CacheSize != 0 || !cfg.Tokenizer.Strict {
			t.Errorf("tokenizer = %+v", cfg.Tokenizer)
		}
		if cfg.Storage.SQLite.Path != "/var/lib/ctx/usage.db" {
			t.Errorf("sqlite path = %q", cfg.Storage.SQLite.Path)
		}
		if cfg.Budget.Reserve != 1024 {
			t.Errorf("reserve = %d, want 1024", cfg.Budget.Reserve)
		}

		w := cfg.Windows()
		if n, ok := w.Lookup("llama-3-8b"); !ok || n != 8192 {
			t.Errorf("Lookup(llama-3-8b) = (%d, %v), want (8192, true)", n, ok)
		}
		// gpt-4.1 was removed, so the gpt-4 entry matches instead.
		if n, ok := w.Lookup("gpt-4.1-mini"); !ok || n != 8192 {
			t.Errorf("Lookup(gpt-4.1-mini) = (%d, %v), want (8192, true)", n, ok)
		}
	})

	t.Run("invalid encoding", func(t *testing.T) {
		path := writeConfig(t, "tokenizer:\n  encoding: gpt2\n")
		if _, err := LoadFile(path); err == nil {
			t.Error("expected error for unknown encoding")
		}
	})

	t.Run("invalid request timeout", func(t *testing.T) {
		path := writeConfig(t, "server:\n  request_timeout: soon\n")
		if _, err := LoadFile(path); err == nil {
			t.Error("expected error for unparseable request_timeout")
		}
	})

	t.Run("invalid storage type", func(t *testing.T) {
		t.Setenv("CTX_STORAGE__TYPE", "postgres")
		if _, err := LoadFile(""); err == nil {
			t.Error("expected error for unknown storage type")
		}
	})
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "${TEST_VAR}",
			want:  "test-value",
		},
		{
			name:  "substitution in string",
			input: "prefix-${TEST_VAR}-suffix",
			want:  "prefix-test-value-suffix",
		},
		{
			name:  "no substitution",
			input: "plain-string",
			want:  "plain-string",
		},
		{
			name:  "undefined var",
			input: "${UNDEFINED_VAR}",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := substituteEnvVars(tt.input)
			if got != tt.want {
				t.Errorf("substituteEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "budget:\n  reserve: 10\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	if err := w.Watch(ctx, func(cfg *Config) { changes <- cfg }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("budget:\n  reserve: 20\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Budget.Reserve == 20 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for config reload")
		}
	}
}

func TestNewWatcher_EmptyPath(t *testing.T) {
	if _, err := NewWatcher("", nil); err == nil {
		t.Error("expected error for empty path")
	}
}
