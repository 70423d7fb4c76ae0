package provider

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCatalog_Defaults(t *testing.T) {
	t.Parallel()

	c := DefaultCatalog()

	m := c.Lookup("deepseek-chat")
	if m.Provider != ProviderOpenAI || m.BaseURL != "https://api.deepseek.com" {
		t.Fatalf("deepseek-chat=%+v", m)
	}
	if m.RequiresAlternating {
		t.Fatalf("deepseek-chat should not require alternation")
	}

	m = c.Lookup("deepseek-reasoner")
	if !m.RequiresAlternating {
		t.Fatalf("deepseek-reasoner should require alternation")
	}

	m = c.Lookup("deepseek-r1-250120")
	if m.BaseURL != "https://ark.cn-beijing.volces.com/api/v3" {
		t.Fatalf("deepseek-r1-250120 BaseURL=%q", m.BaseURL)
	}

	m = c.Lookup("claude-sonnet-4-20250514")
	if m.Provider != ProviderAnthropic {
		t.Fatalf("claude Provider=%q", m.Provider)
	}
}

func TestCatalog_UnknownIDFallsBack(t *testing.T) {
	t.Parallel()

	m := DefaultCatalog().Lookup("some-new-model")
	if m.ID != "some-new-model" || m.Provider != ProviderOpenAI {
		t.Fatalf("fallback=%+v", m)
	}
	if m.BaseURL == "" {
		t.Fatalf("fallback BaseURL empty")
	}
}

func TestLoadCatalog_MergesOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "models.yaml")
	doc := `models:
  - id: deepseek-chat
    display_name: Renamed V3
  - id: custom-model
    base_url: https://example.invalid/v1
    requires_alternating: true
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	// Override replaces the built-in entry by id.
	if got := c.DisplayName("deepseek-chat"); got != "Renamed V3" {
		t.Fatalf("DisplayName=%q", got)
	}

	// New entries get the openai default provider and their own base URL.
	m := c.Lookup("custom-model")
	if m.Provider != ProviderOpenAI || m.BaseURL != "https://example.invalid/v1" || !m.RequiresAlternating {
		t.Fatalf("custom-model=%+v", m)
	}

	// Built-ins not mentioned in the file survive.
	if got := c.Lookup("deepseek-reasoner"); !got.RequiresAlternating {
		t.Fatalf("deepseek-reasoner lost its flag")
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	t.Parallel()

	c, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(c.Models()) == 0 {
		t.Fatalf("built-ins missing")
	}
}

func TestLoadCatalog_BadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "models.yaml")
	if err := os.WriteFile(path, []byte("models: [unclosed"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatalf("LoadCatalog accepted malformed yaml")
	}
}
