package alert

import "log/slog"

// Dispatcher fans out events to matching webhook destinations.
type Dispatcher struct {
	configs []WebhookConfig
	log     *slog.Logger
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []WebhookConfig, log *slog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{configs: configs, log: log}
}

// Dispatch sends the event to all webhooks whose minimum level the
// event meets. Fires goroutines — does not block the caller.
func (d *Dispatcher) Dispatch(event Event) {
	for _, cfg := range d.configs {
		if event.RiskLevel.Rank() < cfg.MinLevel.Rank() {
			continue
		}
		go func(cfg WebhookConfig) {
			if err := Send(cfg, event); err != nil {
				d.log.Warn("webhook delivery failed", "level", "WARN",
					"url", cfg.URL, "error", err)
			}
		}(cfg)
	}
}
