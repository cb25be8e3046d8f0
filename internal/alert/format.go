package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("filesentry: %s file activity", event.RiskLevel),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Path:* %s", event.Path)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Event:* %s", event.Kind)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Score:* %.1f", event.RiskScore)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*At:* %s", event.Timestamp)},
				},
			},
			map[string]any{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": event.Recommendation,
				},
			},
		},
	}
	return json.Marshal(payload)
}
