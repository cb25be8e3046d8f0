// Package analyze produces a structured risk verdict for one file
// observation from its path, bytes, and metadata. Analysis is purely
// local and deterministic: no network, no execution, and identical
// inputs yield byte-identical verdict JSON.
package analyze

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/filesentry/internal/model"
)

// Budget is the wall-clock limit for a single analysis.
const Budget = 2 * time.Second

// binarySampleSize is how many leading bytes feed the text/binary
// decision.
const binarySampleSize = 4096

// contextWindow is the number of bytes captured around a match for
// finding examples.
const contextWindow = 40

const (
	maxInstances = 10
	maxExamples  = 3
)

// smallMediaLimit flags declared media files too small to be real
// recordings.
const smallMediaLimit = 100 << 10 // 100 KiB

// Analyzer classifies file content. Pattern tables are compiled once at
// package init; the zero value is not usable, call New.
type Analyzer struct{}

// New returns an Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze builds a verdict from path, content, and caller metadata.
// The now argument becomes the verdict timestamp so replays are
// reproducible.
func (a *Analyzer) Analyze(path string, content []byte, meta map[string]string, now time.Time) *Verdict {
	sum := sha256.Sum256(content)
	ext := strings.ToLower(filepath.Ext(path))
	binary := isBinaryContent(sampleOf(content))
	mimeType := detectMIME(ext, binary)

	score := 0.0
	threats := []Threat{}
	findings := []Finding{}
	malwareExt := false

	addFinding := func(name, severity, description, recommendation string, points float64, instances, examples []string) {
		score += points
		threats = append(threats, Threat{
			Category:  name,
			Severity:  severity,
			Details:   description,
			Instances: instances,
		})
		findings = append(findings, Finding{
			Type:           name,
			Severity:       severity,
			Description:    description,
			Examples:       examples,
			Recommendation: recommendation,
		})
	}

	switch {
	case malwareExtensions[ext]:
		malwareExt = true
		desc := fmt.Sprintf("File has a known malware extension: %s", ext)
		addFinding("malware_extension", "HIGH", desc,
			"Quarantine the file immediately and scan with antivirus software. "+
				"If this is a ransomware attack, disconnect from the network and notify the security team.",
			30, []string{desc}, []string{ext})
	case executableExtensions[ext]:
		desc := fmt.Sprintf("File has an executable extension: %s", ext)
		addFinding("executable_extension", "HIGH", desc,
			"Only run executables from trusted sources after verification.",
			20, []string{desc}, []string{ext})
	case scriptExtensions[ext]:
		desc := fmt.Sprintf("File has a script extension: %s", ext)
		addFinding("script_extension", "MEDIUM", desc,
			"Review the script contents before execution and consider running it "+
				"in a restricted environment.",
			15, []string{desc}, []string{ext})
	}

	if !binary && len(content) > 0 {
		text := string(content)
		for _, c := range categories {
			count, instances, examples := scanCategory(text, c)
			if count == 0 {
				continue
			}
			severity := severityFor(c.multiplier)
			desc := fmt.Sprintf("%s: %d match(es)", c.description, count)
			addFinding(c.name, severity, desc, c.recommendation,
				float64(count)*c.multiplier*5, instances, examples)
		}
	}

	if binary {
		if executableMIMEs[mimeType] {
			desc := "Binary executable detected"
			addFinding("binary_executable", "HIGH", desc,
				"Verify the source and authenticity of the executable before running it.",
				25, []string{desc}, nil)
		}
		if bytes.HasPrefix(content, []byte("MZ")) {
			desc := "Windows executable header detected"
			addFinding("windows_executable", "HIGH", desc,
				"Verify the source and authenticity of the executable before running it.",
				25, []string{desc}, nil)
		}
		if bytes.HasPrefix(content, []byte("%PDF")) && bytes.Contains(head(content, 1024), []byte("/JavaScript")) {
			desc := "PDF contains embedded JavaScript"
			addFinding("pdf_javascript", "MEDIUM", desc,
				"Open the document only in a viewer with scripting disabled.",
				20, []string{desc}, nil)
		}
		if bytes.Contains(content, []byte("vbaProject.bin")) {
			desc := "Office document contains a VBA macro project"
			addFinding("office_macro", "HIGH", desc,
				"Do not enable macros unless the document's origin is verified.",
				22, []string{desc}, nil)
		}
	}

	if mediaExtensions[ext] && int64(len(content)) < smallMediaLimit {
		desc := fmt.Sprintf("Declared media file is only %d bytes", len(content))
		addFinding("suspicious_media", "MEDIUM", desc,
			"Verify the file really is a media recording; undersized media files "+
				"are a common disguise for payloads.",
			15, []string{desc}, nil)
	}

	level := model.RiskFromScore(score)
	// A known malware extension is treated as conclusive regardless of
	// what the rest of the content scores.
	if malwareExt && level.Rank() < model.RiskDangerous.Rank() {
		level = model.RiskDangerous
	}

	return &Verdict{
		FileInfo: FileInfo{
			Path:      path,
			Name:      filepath.Base(path),
			Hash:      hex.EncodeToString(sum[:]),
			Extension: ext,
			Size:      int64(len(content)),
			MimeType:  mimeType,
		},
		RiskAnalysis: RiskAnalysis{
			RiskLevel:        level,
			OverallScore:     score,
			Threats:          threats,
			DetailedFindings: findings,
			IsBinary:         binary,
		},
		Metadata:       metaOrEmpty(meta),
		Recommendation: buildRecommendation(level, findings),
		Timestamp:      isoTimestamp(now),
	}
}

// AnalyzeFile reads and analyzes a file under the size and time limits.
// Oversized files and timeouts downgrade to moderate verdicts rather
// than failing; only read errors are returned.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string, maxSize int64, meta map[string]string, now time.Time) (*Verdict, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat for analysis: %w", err)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return a.TooLarge(path, info.Size(), meta, now), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read for analysis: %w", err)
	}

	done := make(chan *Verdict, 1)
	go func() {
		done <- a.Analyze(path, content, meta, now)
	}()

	select {
	case v := <-done:
		return v, nil
	case <-time.After(Budget):
		return a.TimedOut(path, meta, now), nil
	case <-ctx.Done():
		return a.TimedOut(path, meta, now), nil
	}
}

// TooLarge is the downgraded verdict for files over the analysis limit.
func (a *Analyzer) TooLarge(path string, size int64, meta map[string]string, now time.Time) *Verdict {
	return a.downgraded(path, size, meta, now, "too_large_for_analysis",
		fmt.Sprintf("File size %d bytes exceeds the analysis limit", size),
		"Inspect the file manually; it was too large for content analysis.")
}

// TimedOut is the downgraded verdict for analyses that exceeded the
// wall-clock budget.
func (a *Analyzer) TimedOut(path string, meta map[string]string, now time.Time) *Verdict {
	return a.downgraded(path, 0, meta, now, "analysis_timeout",
		"Content analysis exceeded the time budget",
		"Re-run analysis manually; the file could not be fully scanned in time.")
}

func (a *Analyzer) downgraded(path string, size int64, meta map[string]string, now time.Time, kind, description, recommendation string) *Verdict {
	ext := strings.ToLower(filepath.Ext(path))
	finding := Finding{
		Type:           kind,
		Severity:       "MEDIUM",
		Description:    description,
		Examples:       nil,
		Recommendation: recommendation,
	}
	findings := []Finding{finding}
	return &Verdict{
		FileInfo: FileInfo{
			Path:      path,
			Name:      filepath.Base(path),
			Extension: ext,
			Size:      size,
			MimeType:  detectMIME(ext, true),
		},
		RiskAnalysis: RiskAnalysis{
			RiskLevel:        model.RiskModerate,
			OverallScore:     10,
			Threats:          []Threat{{Category: kind, Severity: "MEDIUM", Details: description, Instances: []string{description}}},
			DetailedFindings: findings,
			IsBinary:         false,
		},
		Metadata:       metaOrEmpty(meta),
		Recommendation: buildRecommendation(model.RiskModerate, findings),
		Timestamp:      isoTimestamp(now),
	}
}

// scanCategory collects the total match count, up to 10 literal
// matches, and up to 3 context windows for one category. Patterns run
// in declaration order so output is stable.
func scanCategory(text string, c category) (int, []string, []string) {
	count := 0
	var instances []string
	var examples []string
	for _, re := range c.patterns {
		locs := re.FindAllStringIndex(text, -1)
		count += len(locs)
		for _, loc := range locs {
			if len(instances) < maxInstances {
				instances = append(instances, text[loc[0]:loc[1]])
			}
			if len(examples) < maxExamples {
				start := loc[0] - contextWindow
				if start < 0 {
					start = 0
				}
				end := loc[1] + contextWindow
				if end > len(text) {
					end = len(text)
				}
				examples = append(examples, text[start:end])
			}
		}
	}
	return count, instances, examples
}

// isBinaryContent applies the sample heuristic: any null byte means
// binary, else a >30% share of control characters (excluding tab, LF,
// CR) does.
func isBinaryContent(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	control := 0
	for _, b := range sample {
		if b < 32 && b != 9 && b != 10 && b != 13 {
			control++
		}
	}
	return float64(control)/float64(len(sample)) > 0.30
}

func sampleOf(content []byte) []byte {
	return head(content, binarySampleSize)
}

func head(content []byte, n int) []byte {
	if len(content) > n {
		return content[:n]
	}
	return content
}

func metaOrEmpty(meta map[string]string) map[string]string {
	if meta == nil {
		return map[string]string{}
	}
	return meta
}
