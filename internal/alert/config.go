// Package alert fans out webhook notifications for verdicts at or
// above each destination's minimum risk level.
package alert

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/filesentry/internal/model"
)

// WebhookConfig defines one alert destination.
type WebhookConfig struct {
	URL      string            `yaml:"url"       json:"url"`
	Format   string            `yaml:"format"    json:"format"` // "generic", "slack"
	MinLevel model.RiskLevel   `yaml:"min_level" json:"min_level"`
	Headers  map[string]string `yaml:"headers"   json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp      string          `json:"timestamp"`
	Path           string          `json:"path"`
	Kind           string          `json:"kind"`
	RiskLevel      model.RiskLevel `json:"risk_level"`
	RiskScore      float64         `json:"risk_score"`
	Recommendation string          `json:"recommendation"`
}

// LoadConfig reads webhook destinations from a YAML file. A missing
// file yields no destinations.
func LoadConfig(path string) ([]WebhookConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read alert config: %w", err)
	}
	var doc struct {
		Webhooks []WebhookConfig `yaml:"webhooks"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse alert config: %w", err)
	}
	for i, w := range doc.Webhooks {
		if w.URL == "" {
			return nil, fmt.Errorf("alert config: webhook %d has no url", i)
		}
		if w.MinLevel == "" {
			doc.Webhooks[i].MinLevel = model.RiskSuspicious
		}
	}
	return doc.Webhooks, nil
}
