package provider

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider kinds.
const (
	ProviderOpenAI    = "openai" // any OpenAI-compatible endpoint
	ProviderAnthropic = "anthropic"
)

const (
	deepseekBaseURL = "https://api.deepseek.com"
	arkBaseURL      = "https://ark.cn-beijing.volces.com/api/v3"
)

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Provider    string `yaml:"provider"`
	BaseURL     string `yaml:"base_url"`
	// RequiresAlternating marks models that reject consecutive same-role
	// turns; Preprocess enforces strict user/assistant alternation for them.
	RequiresAlternating bool `yaml:"requires_alternating"`
}

// Catalog maps model ids to their metadata. Unknown ids resolve to a generic
// OpenAI-compatible entry so a new model id works without a catalog update.
type Catalog struct {
	models map[string]ModelInfo
	order  []string
}

// DefaultCatalog returns the built-in model registry.
func DefaultCatalog() *Catalog {
	c := &Catalog{models: map[string]ModelInfo{}}
	for _, m := range []ModelInfo{
		{ID: "deepseek-r1-250120", DisplayName: "Volcengine DeepSeek R1", Provider: ProviderOpenAI, BaseURL: arkBaseURL},
		{ID: "deepseek-v3-250324", DisplayName: "Volcengine DeepSeek V3", Provider: ProviderOpenAI, BaseURL: arkBaseURL},
		{ID: "doubao-1-5-thinking-pro-250415", DisplayName: "Doubao 1.5 Thinking Pro", Provider: ProviderOpenAI, BaseURL: arkBaseURL},
		{ID: "doubao-1-5-pro-256k-250115", DisplayName: "Doubao 1.5 Pro 256k", Provider: ProviderOpenAI, BaseURL: arkBaseURL},
		{ID: "deepseek-chat", DisplayName: "DeepSeek V3", Provider: ProviderOpenAI, BaseURL: deepseekBaseURL},
		{ID: "deepseek-reasoner", DisplayName: "DeepSeek R1", Provider: ProviderOpenAI, BaseURL: deepseekBaseURL, RequiresAlternating: true},
		{ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4", Provider: ProviderAnthropic},
	} {
		c.add(m)
	}
	return c
}

func (c *Catalog) add(m ModelInfo) {
	id := strings.TrimSpace(m.ID)
	if id == "" {
		return
	}
	if _, exists := c.models[id]; !exists {
		c.order = append(c.order, id)
	}
	c.models[id] = m
}

// Lookup returns the entry for id, or a generic OpenAI-compatible fallback.
func (c *Catalog) Lookup(id string) ModelInfo {
	id = strings.TrimSpace(id)
	if c != nil {
		if m, ok := c.models[id]; ok {
			return m
		}
	}
	return ModelInfo{ID: id, DisplayName: id, Provider: ProviderOpenAI, BaseURL: arkBaseURL}
}

// Models returns all catalog entries in registration order.
func (c *Catalog) Models() []ModelInfo {
	if c == nil {
		return nil
	}
	out := make([]ModelInfo, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.models[id])
	}
	return out
}

// DisplayName returns the human-readable name for a model id.
func (c *Catalog) DisplayName(id string) string {
	return c.Lookup(id).DisplayName
}

type catalogFile struct {
	Models []ModelInfo `yaml:"models"`
}

// LoadCatalog returns the built-in catalog merged with the YAML override
// file at path, when it exists. Entries in the file add to or replace
// built-ins by id.
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	path = strings.TrimSpace(path)
	if path == "" {
		return c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}

	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing model catalog %s: %w", path, err)
	}
	for _, m := range f.Models {
		if strings.TrimSpace(m.Provider) == "" {
			m.Provider = ProviderOpenAI
		}
		if m.Provider == ProviderOpenAI && strings.TrimSpace(m.BaseURL) == "" {
			m.BaseURL = arkBaseURL
		}
		if strings.TrimSpace(m.DisplayName) == "" {
			m.DisplayName = m.ID
		}
		c.add(m)
	}
	return c, nil
}
