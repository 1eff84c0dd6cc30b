package healthcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/looptrace/internal/config"
	"github.com/l3aro/looptrace/pkg/catalog"
	"github.com/l3aro/looptrace/pkg/record"
)

// maxListed bounds the addresses kept for display in a RecordingStatus.
const maxListed = 10

// ConfigStatus represents the health of the effective configuration.
type ConfigStatus struct {
	Status string // "ready", "defaults" or "error"
	Error  string
}

// RecordingStatus describes how well a recording will analyze.
type RecordingStatus struct {
	Path   string
	Format record.Format
	Blocks int
	Events int

	// Events resolved by exact head, by mid-block fallback, or not at all.
	ExactHits  int
	MidBlock   int
	Unresolved []uint64 // distinct, first maxListed
	Missing    int      // distinct unresolved addresses

	// Pairs of block heads whose instruction ranges overlap.
	Overlaps [][2]uint64

	Status string // "ready", "warning" or "error"
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global", "project" or "" for defaults
	Config         ConfigStatus
	Recording      *RecordingStatus
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (empty for defaults).
func Check(cfg *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}

	switch err := cfg.Validate(); {
	case err != nil:
		result.Config = ConfigStatus{Status: "error", Error: err.Error()}
	case effectivePath == "":
		result.Config = ConfigStatus{Status: "defaults"}
	default:
		result.Config = ConfigStatus{Status: "ready"}
	}

	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".looptrace")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

// CheckRecording loads the recording at path and checks that every event
// resolves to a registered block. Unresolved events would abort an
// analysis; overlapping blocks make mid-block resolution ambiguous.
func CheckRecording(path string, cacheSize int) *RecordingStatus {
	status := &RecordingStatus{Path: path}

	rec, format, err := record.LoadFile(path)
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()
		return status
	}

	status.Format = format
	status.Blocks = len(rec.Blocks)
	status.Events = len(rec.Events)

	cat := rec.Catalog(catalog.WithLookupCacheSize(cacheSize))
	missing := make(map[uint64]bool)
	for _, addr := range rec.Events {
		b, ok := cat.Lookup(addr)
		switch {
		case !ok:
			if !missing[addr] {
				missing[addr] = true
				if len(status.Unresolved) < maxListed {
					status.Unresolved = append(status.Unresolved, addr)
				}
			}
		case b.Head == addr:
			status.ExactHits++
		default:
			status.MidBlock++
		}
	}
	status.Missing = len(missing)
	status.Overlaps = overlaps(cat)

	switch {
	case status.Missing > 0:
		status.Status = "error"
		status.Error = fmt.Sprintf("%d event address(es) match no block", status.Missing)
	case len(status.Overlaps) > 0:
		status.Status = "warning"
	default:
		status.Status = "ready"
	}
	return status
}

// overlaps returns neighbouring blocks, in head order, whose ranges share
// an address.
func overlaps(cat *catalog.Catalog) [][2]uint64 {
	var out [][2]uint64
	heads := cat.Heads()
	var prev *catalog.Block
	for _, h := range heads {
		b, _ := cat.Block(h)
		if prev != nil && b.Head <= prev.Tail() {
			out = append(out, [2]uint64{prev.Head, b.Head})
		}
		if prev == nil || b.Tail() > prev.Tail() {
			prev = b
		}
	}
	return out
}
