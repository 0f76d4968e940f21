package monitor

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// SuspicionDetector scans fragment source and captured output for
// patterns the structural validator cannot express. It never blocks an
// execution; detections are logged and surfaced so operators can review
// what agents are probing for.
type SuspicionDetector struct {
	patterns []DetectionPattern
}

// DetectionPattern defines a suspicious pattern to match.
type DetectionPattern struct {
	Name        string
	Description string
	Regex       *regexp.Regexp
	Severity    Severity
}

// Severity levels for detected threats.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Detection represents a detected suspicious pattern.
type Detection struct {
	Pattern  string `json:"pattern"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
	Line     int    `json:"line,omitempty"`
}

// NewSuspicionDetector creates a detector with default patterns.
func NewSuspicionDetector() *SuspicionDetector {
	return &SuspicionDetector{
		patterns: defaultPatterns(),
	}
}

// AnalyzeSource checks a submitted fragment for suspicious patterns
// before execution.
func (d *SuspicionDetector) AnalyzeSource(source string) []Detection {
	var detections []Detection

	lines := strings.Split(source, "\n")
	for i, line := range lines {
		for _, p := range d.patterns {
			if p.Regex.MatchString(line) {
				det := Detection{
					Pattern:  p.Name,
					Severity: p.Severity.String(),
					Detail:   p.Description,
					Line:     i + 1,
				}
				detections = append(detections, det)

				log.Warn().
					Str("pattern", p.Name).
					Str("severity", p.Severity.String()).
					Int("line", i+1).
					Msg("suspicious pattern in fragment")
			}
		}
	}

	return detections
}

// AnalyzeOutput checks captured print output for signs that a fragment
// reached something it should not see.
func (d *SuspicionDetector) AnalyzeOutput(output string) []Detection {
	var detections []Detection

	outputPatterns := []struct {
		name   string
		substr string
		sev    Severity
	}{
		{"function_pointer_leak", "function: 0x", SeverityMedium},
		{"userdata_pointer_leak", "userdata: 0x", SeverityMedium},
		{"table_pointer_leak", "table: 0x", SeverityLow},
		{"host_path_leak", "/etc/passwd", SeverityCritical},
		{"goroutine_dump", "goroutine ", SeverityHigh},
	}

	for _, p := range outputPatterns {
		if strings.Contains(output, p.substr) {
			detections = append(detections, Detection{
				Pattern:  p.name,
				Severity: p.sev.String(),
				Detail:   "suspicious content in output: " + p.name,
			})
		}
	}

	return detections
}

func defaultPatterns() []DetectionPattern {
	return []DetectionPattern{
		{
			Name:        "bytecode_dump",
			Description: "Extracting function bytecode with string.dump",
			Regex:       regexp.MustCompile(`string\s*\.\s*dump|:\s*dump\s*\(`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "obfuscated_name",
			Description: "Building an identifier from concatenated string pieces",
			Regex:       regexp.MustCompile(`"[a-z]"\s*\.\.\s*"[a-z]+"|'[a-z]'\s*\.\.\s*'[a-z]+'`),
			Severity:    SeverityMedium,
		},
		{
			Name:        "char_code_obfuscation",
			Description: "Decoding strings from character codes",
			Regex:       regexp.MustCompile(`string\s*\.\s*char\s*\(\s*\d+\s*,|\\\d{2,3}\\\d{2,3}`),
			Severity:    SeverityMedium,
		},
		{
			Name:        "memory_bomb",
			Description: "Allocating huge strings with string.rep",
			Regex:       regexp.MustCompile(`string\s*\.\s*rep\s*\([^,]+,\s*\d{7,}|rep\s*\([^,]+,\s*\d{7,}`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "environment_probe",
			Description: "Probing for loader or environment globals",
			Regex:       regexp.MustCompile(`pcall\s*\(\s*(require|load|loadstring|dofile)\b`),
			Severity:    SeverityMedium,
		},
		{
			Name:        "metatable_probe",
			Description: "Referencing metatable internals by name",
			Regex:       regexp.MustCompile(`__(index|newindex|metatable|gc|call)\b`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "filesystem_path",
			Description: "Hardcoded absolute filesystem path",
			Regex:       regexp.MustCompile(`"(/etc/|/proc/|/sys/|/dev/|/var/run/)`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "network_endpoint",
			Description: "Hardcoded network address or URL",
			Regex:       regexp.MustCompile(`https?://|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d+`),
			Severity:    SeverityMedium,
		},
	}
}
