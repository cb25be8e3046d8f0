package model

import "time"

// EventKind classifies a filesystem change event.
type EventKind string

const (
	Created  EventKind = "created"
	Modified EventKind = "modified"
	Deleted  EventKind = "deleted"
	Renamed  EventKind = "renamed"
)

// Valid reports whether the kind is one of the four known values.
func (k EventKind) Valid() bool {
	switch k {
	case Created, Modified, Deleted, Renamed:
		return true
	}
	return false
}

// RiskLevel is the coarse verdict bucket over a risk score.
type RiskLevel string

const (
	RiskSafe       RiskLevel = "safe"
	RiskModerate   RiskLevel = "moderate"
	RiskSuspicious RiskLevel = "suspicious"
	RiskDangerous  RiskLevel = "dangerous"
)

// Risk level thresholds. Ties go to the lower level, so comparisons
// are strictly >=.
const (
	moderateThreshold   = 10
	suspiciousThreshold = 25
	dangerousThreshold  = 50
)

// RiskFromScore maps a cumulative risk score to a level.
func RiskFromScore(score float64) RiskLevel {
	switch {
	case score >= dangerousThreshold:
		return RiskDangerous
	case score >= suspiciousThreshold:
		return RiskSuspicious
	case score >= moderateThreshold:
		return RiskModerate
	default:
		return RiskSafe
	}
}

// Rank orders risk levels for comparison and sorting. Unknown levels
// rank lowest.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskDangerous:
		return 3
	case RiskSuspicious:
		return 2
	case RiskModerate:
		return 1
	case RiskSafe:
		return 0
	}
	return -1
}

// SkipSize marks an event whose file exceeded the analysis size limit.
// The file is still watched for change; only content analysis is skipped.
const SkipSize = "size"

// Event is a raw filesystem observation emitted by a root watcher.
// Size and Hash carry the last known state of the file so the dispatcher
// can coalesce deleted/created pairs into renames.
type Event struct {
	Path         string
	Kind         EventKind
	ObservedAt   time.Time
	OldPath      string // set for Renamed
	Size         int64
	Hash         uint64
	HashValid    bool
	SkipAnalysis string
}

// Job is a deduplicated analysis job queued for the worker pool.
type Job struct {
	Path         string
	Kind         EventKind
	ObservedAt   time.Time
	OldPath      string
	DedupKey     string
	SkipAnalysis string
}
