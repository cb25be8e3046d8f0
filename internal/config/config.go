// Package config loads and persists the monitor configuration document.
// The on-disk format is JSON; unknown fields are ignored and missing
// fields take defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalid is returned when the configuration document fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Defaults applied to missing fields.
const (
	DefaultScanInterval    = 1 * time.Second
	DefaultDedupWindow     = 5 * time.Second
	DefaultDaysToKeep      = 3
	DefaultMaxRecords      = 1000
	DefaultCleanupInterval = 6 * time.Hour
	DefaultMaxFileSize     = 10 << 20 // 10 MiB
)

// HardSizeCap bounds analysis reads even when max_file_size_bytes is 0
// (unlimited).
const HardSizeCap = 100 << 20

// Root is a monitored directory.
type Root struct {
	Path      string
	Recursive bool
}

// Retention is the log retention policy.
type Retention struct {
	AutoEnabled     bool
	MaxRecords      int
	DaysToKeep      int
	CleanupInterval time.Duration
}

// Config is an immutable snapshot of the monitor configuration.
// Build one with Load or Default; treat as read-only afterwards.
type Config struct {
	Roots              []Root
	Excludes           []string
	ExcludedExtensions []string
	ScanInterval       time.Duration
	DedupWindow        time.Duration
	MaxFileSizeBytes   int64
	Retention          Retention
}

// document is the JSON wire shape of the configuration file.
type document struct {
	Paths              []string `json:"paths"`
	NonRecursivePaths  []string `json:"non_recursive_paths"`
	Excludes           []string `json:"excludes"`
	ExcludedExtensions []string `json:"excluded_extensions"`
	ScanIntervalSecs   *int     `json:"scan_interval_seconds"`
	DedupWindowSecs    *int     `json:"dedup_window_seconds"`
	MaxFileSizeBytes   *int64   `json:"max_file_size_bytes"`
	LogRetention       *struct {
		AutoCleanupEnabled   *bool `json:"auto_cleanup_enabled"`
		MaxRecords           *int  `json:"max_records"`
		DaysToKeep           *int  `json:"days_to_keep"`
		CleanupIntervalHours *int  `json:"cleanup_interval_hours"`
	} `json:"log_retention"`
}

// Default returns a configuration with all defaults and no roots.
func Default() *Config {
	return &Config{
		ScanInterval:     DefaultScanInterval,
		DedupWindow:      DefaultDedupWindow,
		MaxFileSizeBytes: DefaultMaxFileSize,
		Retention: Retention{
			AutoEnabled:     true,
			MaxRecords:      DefaultMaxRecords,
			DaysToKeep:      DefaultDaysToKeep,
			CleanupInterval: DefaultCleanupInterval,
		},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from a JSON document.
func Parse(data []byte) (*Config, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	cfg := Default()

	nonRecursive := make(map[string]bool, len(doc.NonRecursivePaths))
	for _, p := range doc.NonRecursivePaths {
		nonRecursive[NormalizePath(p)] = true
	}

	seen := make(map[string]bool, len(doc.Paths))
	for _, p := range doc.Paths {
		if !filepath.IsAbs(p) {
			return nil, fmt.Errorf("%w: root path %q is not absolute", ErrInvalid, p)
		}
		norm := NormalizePath(p)
		if seen[norm] {
			return nil, fmt.Errorf("%w: duplicate root path %q", ErrInvalid, norm)
		}
		seen[norm] = true
		cfg.Roots = append(cfg.Roots, Root{Path: norm, Recursive: !nonRecursive[norm]})
	}

	for _, p := range doc.Excludes {
		if !filepath.IsAbs(p) {
			return nil, fmt.Errorf("%w: exclusion path %q is not absolute", ErrInvalid, p)
		}
		cfg.Excludes = append(cfg.Excludes, NormalizePath(p))
	}

	for _, ext := range doc.ExcludedExtensions {
		cfg.ExcludedExtensions = append(cfg.ExcludedExtensions, NormalizeExt(ext))
	}

	if doc.ScanIntervalSecs != nil {
		if *doc.ScanIntervalSecs < 0 {
			return nil, fmt.Errorf("%w: negative scan_interval_seconds", ErrInvalid)
		}
		cfg.ScanInterval = time.Duration(*doc.ScanIntervalSecs) * time.Second
	}
	if doc.DedupWindowSecs != nil {
		if *doc.DedupWindowSecs < 0 {
			return nil, fmt.Errorf("%w: negative dedup_window_seconds", ErrInvalid)
		}
		cfg.DedupWindow = time.Duration(*doc.DedupWindowSecs) * time.Second
	}
	if doc.MaxFileSizeBytes != nil {
		if *doc.MaxFileSizeBytes < 0 {
			return nil, fmt.Errorf("%w: negative max_file_size_bytes", ErrInvalid)
		}
		cfg.MaxFileSizeBytes = *doc.MaxFileSizeBytes
	}

	if lr := doc.LogRetention; lr != nil {
		if lr.AutoCleanupEnabled != nil {
			cfg.Retention.AutoEnabled = *lr.AutoCleanupEnabled
		}
		if lr.MaxRecords != nil {
			if *lr.MaxRecords < 0 {
				return nil, fmt.Errorf("%w: negative max_records", ErrInvalid)
			}
			cfg.Retention.MaxRecords = *lr.MaxRecords
		}
		if lr.DaysToKeep != nil {
			if *lr.DaysToKeep < 0 {
				return nil, fmt.Errorf("%w: negative days_to_keep", ErrInvalid)
			}
			cfg.Retention.DaysToKeep = *lr.DaysToKeep
		}
		if lr.CleanupIntervalHours != nil {
			if *lr.CleanupIntervalHours < 0 {
				return nil, fmt.Errorf("%w: negative cleanup_interval_hours", ErrInvalid)
			}
			cfg.Retention.CleanupInterval = time.Duration(*lr.CleanupIntervalHours) * time.Hour
		}
	}

	return cfg, nil
}

// Save writes the configuration to path atomically (tmp + rename).
func Save(path string, cfg *Config) error {
	doc := document{
		Excludes:           cfg.Excludes,
		ExcludedExtensions: cfg.ExcludedExtensions,
	}
	for _, r := range cfg.Roots {
		doc.Paths = append(doc.Paths, r.Path)
		if !r.Recursive {
			doc.NonRecursivePaths = append(doc.NonRecursivePaths, r.Path)
		}
	}
	scanSecs := int(cfg.ScanInterval / time.Second)
	dedupSecs := int(cfg.DedupWindow / time.Second)
	maxSize := cfg.MaxFileSizeBytes
	doc.ScanIntervalSecs = &scanSecs
	doc.DedupWindowSecs = &dedupSecs
	doc.MaxFileSizeBytes = &maxSize

	hours := int(cfg.Retention.CleanupInterval / time.Hour)
	doc.LogRetention = &struct {
		AutoCleanupEnabled   *bool `json:"auto_cleanup_enabled"`
		MaxRecords           *int  `json:"max_records"`
		DaysToKeep           *int  `json:"days_to_keep"`
		CleanupIntervalHours *int  `json:"cleanup_interval_hours"`
	}{
		AutoCleanupEnabled:   &cfg.Retention.AutoEnabled,
		MaxRecords:           &cfg.Retention.MaxRecords,
		DaysToKeep:           &cfg.Retention.DaysToKeep,
		CleanupIntervalHours: &hours,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// NormalizePath returns the platform-canonical absolute form of a path,
// case preserved.
func NormalizePath(p string) string {
	return filepath.Clean(p)
}

// NormalizeExt lower-cases an extension and ensures a leading dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Excluded reports whether path falls under any exclusion prefix.
// Matching is component-wise: /tmp/foo excludes /tmp/foo/bar but not
// /tmp/foobar.
func (c *Config) Excluded(path string) bool {
	path = NormalizePath(path)
	for _, ex := range c.Excludes {
		if path == ex || strings.HasPrefix(path, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ExtExcluded reports whether the file's extension is excluded.
func (c *Config) ExtExcluded(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, e := range c.ExcludedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// MaxAnalysisSize resolves the effective analysis size limit, applying
// the hard safety cap when the configured limit is 0 (unlimited).
func (c *Config) MaxAnalysisSize() int64 {
	if c.MaxFileSizeBytes == 0 || c.MaxFileSizeBytes > HardSizeCap {
		return HardSizeCap
	}
	return c.MaxFileSizeBytes
}

// RootPaths returns the root paths in configured order.
func (c *Config) RootPaths() []string {
	paths := make([]string, len(c.Roots))
	for i, r := range c.Roots {
		paths[i] = r.Path
	}
	return paths
}
