package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseToolArgs(t *testing.T) {
	got, err := parseToolArgs([]string{"muted=true", "limit=5", "mode=opinion"})
	if err != nil {
		t.Fatalf("parseToolArgs: %v", err)
	}
	if got["muted"] != true || got["limit"] != 5 || got["mode"] != "opinion" {
		t.Fatalf("unexpected args %#v", got)
	}
	if _, err := parseToolArgs([]string{"muted"}); err == nil {
		t.Fatalf("expected error for bare key")
	}
}

func TestCheckConfigMasksSecrets(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "copilot.yaml")
	yml := "llm:\n  provider: http\n  base_url: http://127.0.0.1:8000/v1\n  api_key: sk-abcdef123456\n"
	if err := os.WriteFile(cfgPath, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"check-config", "--config", cfgPath, "--env", filepath.Join(dir, "none.env")})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("check-config: %v", err)
	}
	if strings.Contains(out.String(), "sk-abcdef123456") || !strings.Contains(out.String(), "3456") {
		t.Fatalf("api key not masked:\n%s", out.String())
	}
}

func TestCheckConfigReportsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "copilot.yaml")
	if err := os.WriteFile(cfgPath, []byte("sample_rate: 44100\nllm:\n  provider: ollama\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"check-config", "-c", cfgPath, "--env", filepath.Join(dir, "none.env")})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "sample_rate") {
		t.Fatalf("want sample_rate error got %v", err)
	}
}

func TestModelsMarksRecommended(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"phi3","object":"model","created":0,"owned_by":"library"},{"id":"llama3","object":"model","created":0,"owned_by":"library"}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "copilot.yaml")
	yml := "llm:\n  provider: ollama\n  base_url: " + srv.URL + "/v1\n"
	if err := os.WriteFile(cfgPath, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"models", "-c", cfgPath, "--env", filepath.Join(dir, "none.env")})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("models: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if lines[0] != "* llama3" {
		t.Fatalf("recommended model should lead, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "\n  phi3\n") {
		t.Fatalf("listed model missing:\n%s", out.String())
	}
}

func TestModelsRejectsUnlistableProvider(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"models", "http", "--env", filepath.Join(dir, "none.env")})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "cannot list models") {
		t.Fatalf("want cannot list error got %v", err)
	}
}
