package healthcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l3aro/looptrace/internal/config"
)

func TestCheckWithNilConfig(t *testing.T) {
	_, err := Check(nil, "", "")
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestCheckConfigStatus(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.Config)
		path       string
		wantStatus string
	}{
		{name: "defaults", mutate: func(*config.Config) {}, wantStatus: "defaults"},
		{name: "project file", mutate: func(*config.Config) {}, path: ".looptrace/config.yaml", wantStatus: "ready"},
		{name: "invalid", mutate: func(c *config.Config) { c.Jobs = 0 }, path: ".looptrace/config.yaml", wantStatus: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)

			result, err := Check(cfg, "", tt.path)
			if err != nil {
				t.Fatalf("Check() failed: %v", err)
			}
			if result.Config.Status != tt.wantStatus {
				t.Errorf("Config.Status = %q, want %q", result.Config.Status, tt.wantStatus)
			}
			if tt.path != "" && result.EffectiveScope != "project" {
				t.Errorf("EffectiveScope = %q, want project", result.EffectiveScope)
			}
		})
	}
}

func writeRecording(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write recording: %v", err)
	}
	return path
}

func TestCheckRecording(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		wantStatus    string
		wantExact     int
		wantMid       int
		wantMissing   int
		wantOverlaps  int
		wantErrorText bool
	}{
		{
			name:       "clean",
			content:    "0\n100,0,0,0,100,104,\n1\n100,\n1\n102,\n",
			wantStatus: "ready",
			wantExact:  1,
			wantMid:    1,
		},
		{
			name:          "unresolved events",
			content:       "0\n100,0,0,0,100,104,\n1\n500,\n1\n500,\n1\n600,\n",
			wantStatus:    "error",
			wantMissing:   2,
			wantErrorText: true,
		},
		{
			name:         "overlapping blocks",
			content:      "0\n100,0,0,0,100,110,\n0\n108,0,0,0,108,10c,\n1\n100,\n",
			wantStatus:   "warning",
			wantExact:    1,
			wantOverlaps: 1,
		},
		{
			name:          "malformed",
			content:       "7\n",
			wantStatus:    "error",
			wantErrorText: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := CheckRecording(writeRecording(t, tt.content), 16)

			if status.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q (error %q)", status.Status, tt.wantStatus, status.Error)
			}
			if status.ExactHits != tt.wantExact {
				t.Errorf("ExactHits = %d, want %d", status.ExactHits, tt.wantExact)
			}
			if status.MidBlock != tt.wantMid {
				t.Errorf("MidBlock = %d, want %d", status.MidBlock, tt.wantMid)
			}
			if status.Missing != tt.wantMissing {
				t.Errorf("Missing = %d, want %d", status.Missing, tt.wantMissing)
			}
			if len(status.Overlaps) != tt.wantOverlaps {
				t.Errorf("Overlaps = %v, want %d pairs", status.Overlaps, tt.wantOverlaps)
			}
			if (status.Error != "") != tt.wantErrorText {
				t.Errorf("Error = %q, want error text %v", status.Error, tt.wantErrorText)
			}
		})
	}
}
