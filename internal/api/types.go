package api

import (
	"time"

	"dungeon-skill-sandbox/internal/game"
	"dungeon-skill-sandbox/internal/monitor"
	"dungeon-skill-sandbox/internal/sandbox"
)

// ValidateRequest asks for static validation of a fragment without
// running it.
type ValidateRequest struct {
	Source    string `json:"source"`
	Mode      string `json:"mode,omitempty"` // adhoc (default) or named
	EntryName string `json:"entry_name,omitempty"`
}

// ValidateResponse reports the validator's findings plus any heuristic
// detections in the source.
type ValidateResponse struct {
	Valid          bool                `json:"valid"`
	Errors         []sandbox.Violation `json:"errors,omitempty"`
	Warnings       []string            `json:"warnings,omitempty"`
	EntryNameFound bool                `json:"entry_name_found"`
	SignatureOK    bool                `json:"signature_ok"`
	ResolvedEntry  string              `json:"resolved_entry,omitempty"`
	Detections     []monitor.Detection `json:"detections,omitempty"`
}

// ExecuteRequest submits a fragment to run against the live session.
// Either Source or Skill must be set; Skill runs a stored library skill
// in named mode.
type ExecuteRequest struct {
	Source    string         `json:"source,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	EntryName string         `json:"entry_name,omitempty"`
	Skill     string         `json:"skill,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
}

// Duration wraps time.Duration for JSON marshaling as a string like "10s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// ExecuteResponse is the structured outcome of a fragment run. A run
// that failed or timed out still carries the records of everything the
// fragment did before it stopped.
type ExecuteResponse struct {
	ID           string                  `json:"id"`
	Success      bool                    `json:"success"`
	Payload      any                     `json:"payload,omitempty"`
	Error        string                  `json:"error,omitempty"`
	Output       string                  `json:"output,omitempty"`
	Messages     []string                `json:"messages,omitempty"`
	APICalls     []sandbox.APICallRecord `json:"api_calls,omitempty"`
	Explore      *game.ExploreResult     `json:"explore,omitempty"`
	Duration     string                  `json:"duration"`
	ActionsTaken int                     `json:"actions_taken"`
	TurnsElapsed int                     `json:"turns_elapsed"`
	SourceHash   string                  `json:"source_hash"`
	Detections   []monitor.Detection     `json:"detections,omitempty"`
}

// SkillSaveRequest stores a named skill in the library. The source must
// define a function matching Name.
type SkillSaveRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Skills   int    `json:"skills"`
	Uptime   string `json:"uptime"`
}
