package monitor

import (
	"testing"
)

func TestAnalyzeSource(t *testing.T) {
	d := NewSuspicionDetector()

	tests := []struct {
		name         string
		source       string
		wantMinCount int // minimum number of detections
		wantPattern  string
	}{
		{"bytecode dump", `local b = string.dump(f)`, 1, "bytecode_dump"},
		{"obfuscated name", `local m = "o" .. "s"`, 1, "obfuscated_name"},
		{"char codes", `local s = string.char(111, 115)`, 1, "char_code_obfuscation"},
		{"memory bomb", `local s = string.rep("x", 10000000)`, 1, "memory_bomb"},
		{"loader probe", `local ok = pcall(require, "os")`, 1, "environment_probe"},
		{"metatable probe", `for k in pairs(t) do if k == "__index" then end end`, 1, "metatable_probe"},
		{"filesystem path", `local path = "/etc/passwd"`, 1, "filesystem_path"},
		{"network endpoint", `local url = "http://10.0.0.1:8080/x"`, 1, "network_endpoint"},
		{"clean fragment", `game:move("e") print(game:stats().hp)`, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dets := d.AnalyzeSource(tt.source)
			if len(dets) < tt.wantMinCount {
				t.Errorf("got %d detections, want >= %d", len(dets), tt.wantMinCount)
				return
			}
			if tt.wantPattern != "" {
				found := false
				for _, det := range dets {
					if det.Pattern == tt.wantPattern {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("pattern %q not found in detections: %v", tt.wantPattern, dets)
				}
			}
		})
	}
}

func TestAnalyzeOutput(t *testing.T) {
	d := NewSuspicionDetector()

	tests := []struct {
		name         string
		output       string
		wantMinCount int
		wantSeverity string
	}{
		{"function pointer", "function: 0x14000104000", 1, "medium"},
		{"host file contents", "root line from /etc/passwd", 1, "critical"},
		{"clean output", "hp check\t14\ndone\n", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dets := d.AnalyzeOutput(tt.output)
			if len(dets) < tt.wantMinCount {
				t.Errorf("got %d detections, want >= %d", len(dets), tt.wantMinCount)
				return
			}
			if tt.wantSeverity != "" && len(dets) > 0 {
				if dets[0].Severity != tt.wantSeverity {
					t.Errorf("severity = %q, want %q", dets[0].Severity, tt.wantSeverity)
				}
			}
		})
	}
}

func TestSeverityString(t *testing.T) {
	tests := []struct {
		sev  Severity
		want string
	}{
		{SeverityLow, "low"},
		{SeverityMedium, "medium"},
		{SeverityHigh, "high"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.sev.String(); got != tt.want {
				t.Errorf("Severity(%d).String() = %q, want %q", tt.sev, got, tt.want)
			}
		})
	}
}
