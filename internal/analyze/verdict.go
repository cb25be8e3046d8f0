package analyze

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/ppiankov/filesentry/internal/model"
)

// FileInfo describes the analyzed file.
type FileInfo struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Hash      string `json:"hash"` // SHA-256 over full content
	Extension string `json:"extension"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mime_type"`
}

// Threat is one matched category with its literal instances.
type Threat struct {
	Category  string   `json:"category"`
	Severity  string   `json:"severity"`
	Details   string   `json:"details"`
	Instances []string `json:"instances"`
}

// Finding is one contributor to the verdict with evidence and
// remediation text.
type Finding struct {
	Type           string   `json:"type"`
	Severity       string   `json:"severity"`
	Description    string   `json:"description"`
	Examples       []string `json:"examples"`
	Recommendation string   `json:"recommendation"`
}

// RiskAnalysis aggregates score, level, and findings.
type RiskAnalysis struct {
	RiskLevel        model.RiskLevel `json:"risk_level"`
	OverallScore     float64         `json:"overall_score"`
	Threats          []Threat        `json:"threats"`
	DetailedFindings []Finding       `json:"detailed_findings"`
	IsBinary         bool            `json:"is_binary"`
}

// Verdict is the stable analysis result. Field order is fixed; given
// identical inputs the serialized form is byte-identical.
type Verdict struct {
	FileInfo       FileInfo          `json:"file_info"`
	RiskAnalysis   RiskAnalysis      `json:"risk_analysis"`
	Metadata       map[string]string `json:"metadata"`
	Recommendation string            `json:"recommendation"`
	Timestamp      string            `json:"timestamp"`
}

// JSON serializes the verdict in its stable form.
func (v *Verdict) JSON() ([]byte, error) {
	return json.Marshal(v)
}

// ParseVerdict deserializes a stored verdict.
func ParseVerdict(data []byte) (*Verdict, error) {
	var v Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// severityRank orders finding labels for recommendation sorting.
func severityRank(severity string) int {
	switch severity {
	case "HIGH":
		return 2
	case "MEDIUM":
		return 1
	default:
		return 0
	}
}

// advisories keyed by risk level, appended to every recommendation.
var advisories = map[model.RiskLevel]string{
	model.RiskSafe:     "No security concerns detected. The file appears to be safe.",
	model.RiskModerate: "Minor concerns detected. Review the findings and verify the file's origin.",
	model.RiskSuspicious: "Treat this file with caution. Verify its source before opening " +
		"or executing it.",
	model.RiskDangerous: "Quarantine the file immediately and scan the host with antivirus " +
		"tooling. If ransomware is suspected, disconnect from the network and " +
		"notify the security team.",
}

// buildRecommendation concatenates per-finding recommendations sorted by
// severity descending, prefixed with the level advisory.
func buildRecommendation(level model.RiskLevel, findings []Finding) string {
	if len(findings) == 0 {
		return advisories[model.RiskSafe]
	}

	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return severityRank(sorted[i].Severity) > severityRank(sorted[j].Severity)
	})

	text := "Risk level: " + string(level) + ". " + advisories[level] + "\n\nFindings:"
	for _, f := range sorted {
		text += "\n- [" + f.Severity + "] " + f.Recommendation
	}
	return text
}

// isoTimestamp formats a time in the verdict's ISO-8601 form.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
