package analyze

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/filesentry/internal/model"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func findThreat(v *Verdict, category string) *Threat {
	for i := range v.RiskAnalysis.Threats {
		if v.RiskAnalysis.Threats[i].Category == category {
			return &v.RiskAnalysis.Threats[i]
		}
	}
	return nil
}

func TestCommandInjectionIsDangerous(t *testing.T) {
	content := []byte(`import os
user = input()
os.system("rm -rf /" + user)
`)
	v := New().Analyze("/root/a.py", content, nil, testTime)

	if v.RiskAnalysis.RiskLevel != model.RiskDangerous {
		t.Fatalf("risk level = %q (score %v), want dangerous",
			v.RiskAnalysis.RiskLevel, v.RiskAnalysis.OverallScore)
	}
	if v.RiskAnalysis.OverallScore < 50 {
		t.Errorf("score = %v, want >= 50", v.RiskAnalysis.OverallScore)
	}
	th := findThreat(v, "command_injection")
	if th == nil {
		t.Fatal("missing command_injection threat")
	}
	if len(th.Instances) == 0 {
		t.Error("command_injection threat should carry at least one example")
	}
	if th.Severity != "HIGH" {
		t.Errorf("severity = %q, want HIGH", th.Severity)
	}
	if v.RiskAnalysis.IsBinary {
		t.Error("python source should be text")
	}
}

func TestSafeImage(t *testing.T) {
	content := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, bytes.Repeat([]byte{0x00, 0x47, 0x9c, 0x11}, 512)...)
	v := New().Analyze("/root/pic.png", content, nil, testTime)

	if v.RiskAnalysis.RiskLevel != model.RiskSafe {
		t.Errorf("risk level = %q, want safe", v.RiskAnalysis.RiskLevel)
	}
	if !v.RiskAnalysis.IsBinary {
		t.Error("png should classify as binary")
	}
	if len(v.RiskAnalysis.Threats) != 0 {
		t.Errorf("unexpected threats: %+v", v.RiskAnalysis.Threats)
	}
	if v.FileInfo.MimeType != "image/png" {
		t.Errorf("mime = %q", v.FileInfo.MimeType)
	}
}

func TestMalwareExtensionIsDangerous(t *testing.T) {
	v := New().Analyze("/root/doc.txt.encrypted", []byte("plain old text"), nil, testTime)

	if v.RiskAnalysis.RiskLevel != model.RiskDangerous {
		t.Errorf("risk level = %q, want dangerous", v.RiskAnalysis.RiskLevel)
	}
	if findThreat(v, "malware_extension") == nil {
		t.Error("missing malware_extension threat")
	}
}

func TestExecutableAndScriptExtensions(t *testing.T) {
	tests := []struct {
		path     string
		category string
		points   float64
	}{
		{"/x/setup.exe", "executable_extension", 20},
		{"/x/run.bat", "executable_extension", 20},
		{"/x/deploy.sh", "script_extension", 15},
		{"/x/.htaccess", "script_extension", 15},
	}
	a := New()
	for _, tt := range tests {
		v := a.Analyze(tt.path, []byte("x"), nil, testTime)
		if findThreat(v, tt.category) == nil {
			t.Errorf("%s: missing %s", tt.path, tt.category)
		}
		if v.RiskAnalysis.OverallScore < tt.points {
			t.Errorf("%s: score %v < %v", tt.path, v.RiskAnalysis.OverallScore, tt.points)
		}
	}
}

func TestWindowsExecutableHeader(t *testing.T) {
	content := append([]byte("MZ"), bytes.Repeat([]byte{0x00, 0x90}, 256)...)
	v := New().Analyze("/x/payload.dat", content, nil, testTime)

	if findThreat(v, "windows_executable") == nil {
		t.Fatal("missing windows_executable threat")
	}
	if v.RiskAnalysis.RiskLevel != model.RiskSuspicious {
		t.Errorf("risk level = %q, want suspicious (score %v)",
			v.RiskAnalysis.RiskLevel, v.RiskAnalysis.OverallScore)
	}
}

func TestPDFWithJavaScript(t *testing.T) {
	content := append([]byte("%PDF-1.7 /JavaScript (app.alert)"), bytes.Repeat([]byte{0x00, 0x20}, 128)...)
	v := New().Analyze("/x/invoice.pdf", content, nil, testTime)
	if findThreat(v, "pdf_javascript") == nil {
		t.Error("missing pdf_javascript threat")
	}
}

func TestOfficeMacroMarker(t *testing.T) {
	content := append([]byte{0x50, 0x4b, 0x03, 0x04, 0x00}, []byte("word/vbaProject.bin")...)
	v := New().Analyze("/x/report.docx", content, nil, testTime)
	if findThreat(v, "office_macro") == nil {
		t.Error("missing office_macro threat")
	}
}

func TestTinyMediaFile(t *testing.T) {
	v := New().Analyze("/x/clip.mp4", bytes.Repeat([]byte{0x00, 0x01}, 100), nil, testTime)
	if findThreat(v, "suspicious_media") == nil {
		t.Error("missing suspicious_media threat")
	}
	if v.RiskAnalysis.RiskLevel != model.RiskModerate {
		t.Errorf("risk level = %q, want moderate", v.RiskAnalysis.RiskLevel)
	}
}

func TestHardcodedCredentials(t *testing.T) {
	content := []byte(`password = "hunter2"
api_key = "0123456789abcdef"
`)
	v := New().Analyze("/x/settings.ini", content, nil, testTime)
	th := findThreat(v, "hardcoded_credentials")
	if th == nil {
		t.Fatal("missing hardcoded_credentials threat")
	}
	if th.Severity != "MEDIUM" {
		t.Errorf("severity = %q, want MEDIUM", th.Severity)
	}
}

func TestInstancesAndExamplesAreBounded(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("eval(payload)\n")
	}
	v := New().Analyze("/x/gen.txt", []byte(sb.String()), nil, testTime)

	th := findThreat(v, "command_injection")
	if th == nil {
		t.Fatal("missing threat")
	}
	if len(th.Instances) > 10 {
		t.Errorf("instances = %d, want <= 10", len(th.Instances))
	}
	for _, f := range v.RiskAnalysis.DetailedFindings {
		if f.Type == "command_injection" && len(f.Examples) > 3 {
			t.Errorf("examples = %d, want <= 3", len(f.Examples))
		}
	}
	// Score still reflects the full match count.
	if v.RiskAnalysis.OverallScore < 40*3*5 {
		t.Errorf("score = %v, want >= %d", v.RiskAnalysis.OverallScore, 40*3*5)
	}
}

func TestDeterminism(t *testing.T) {
	content := []byte(`token = "abcd1234efgh5678"` + "\nos.system(cmd)\n")
	meta := map[string]string{"analyzed_by": "system", "origin": "watcher"}
	a := New()

	v1 := a.Analyze("/x/job.py", content, meta, testTime)
	v2 := a.Analyze("/x/job.py", content, meta, testTime)

	j1, err := v1.JSON()
	if err != nil {
		t.Fatal(err)
	}
	j2, err := v2.JSON()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(j1, j2) {
		t.Error("identical inputs must serialize identically")
	}
	if v1.RiskAnalysis.OverallScore != v2.RiskAnalysis.OverallScore {
		t.Error("scores differ between identical runs")
	}
}

func TestVerdictJSONRoundTrip(t *testing.T) {
	v := New().Analyze("/x/a.py", []byte("os.system(x)\n"), map[string]string{"k": "v"}, testTime)
	first, err := v.JSON()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseVerdict(first)
	if err != nil {
		t.Fatal(err)
	}
	second, err := parsed.JSON()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("round trip not byte-identical:\n%s\n%s", first, second)
	}
}

func TestBinaryDecision(t *testing.T) {
	tests := []struct {
		name   string
		sample []byte
		want   bool
	}{
		{"empty", nil, false},
		{"plain text", []byte("hello world\n"), false},
		{"null byte", []byte("abc\x00def"), true},
		{"control heavy", bytes.Repeat([]byte{0x01, 'a'}, 100), true},
		{"tabs and newlines", []byte("a\tb\r\nc"), false},
	}
	for _, tt := range tests {
		if got := isBinaryContent(tt.sample); got != tt.want {
			t.Errorf("%s: isBinaryContent = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAnalyzeFileTooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.dat")
	if err := os.WriteFile(path, bytes.Repeat([]byte("a"), 2048), 0600); err != nil {
		t.Fatal(err)
	}

	v, err := New().AnalyzeFile(context.Background(), path, 1024, nil, testTime)
	if err != nil {
		t.Fatal(err)
	}
	if v.RiskAnalysis.RiskLevel != model.RiskModerate {
		t.Errorf("risk level = %q, want moderate", v.RiskAnalysis.RiskLevel)
	}
	if findThreat(v, "too_large_for_analysis") == nil {
		t.Error("missing too_large_for_analysis finding")
	}
	if v.FileInfo.Size != 2048 {
		t.Errorf("size = %d", v.FileInfo.Size)
	}
}

func TestAnalyzeFileReadsContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.py")
	if err := os.WriteFile(path, []byte("os.system(\"rm -rf /tmp/x\")\n"), 0600); err != nil {
		t.Fatal(err)
	}

	v, err := New().AnalyzeFile(context.Background(), path, 0, nil, testTime)
	if err != nil {
		t.Fatal(err)
	}
	if findThreat(v, "command_injection") == nil {
		t.Error("content analysis did not run")
	}
	if v.FileInfo.Hash == "" {
		t.Error("missing sha256")
	}
}

func TestRecommendationOrdering(t *testing.T) {
	// Credentials (MEDIUM) plus command injection (HIGH): the HIGH
	// recommendation must come first.
	content := []byte("password = \"x\"\nos.system(c)\n")
	v := New().Analyze("/x/s.txt", content, nil, testTime)

	rec := v.Recommendation
	hi := strings.Index(rec, "[HIGH]")
	med := strings.Index(rec, "[MEDIUM]")
	if hi == -1 || med == -1 {
		t.Fatalf("recommendation missing severity markers: %q", rec)
	}
	if hi > med {
		t.Error("HIGH findings should precede MEDIUM in the recommendation")
	}
}
