package sandbox

import (
	"fmt"
	"time"

	"dungeon-skill-sandbox/internal/game"
)

// Mode selects how a submitted fragment is entered.
type Mode string

const (
	// ModeAdhoc runs the fragment top to bottom as an anonymous chunk.
	ModeAdhoc Mode = "adhoc"
	// ModeNamed runs the chunk to define functions, then calls the entry
	// function with the game handle and the submitted parameters.
	ModeNamed Mode = "named"
)

// Param is a named argument passed to a named-mode entry function.
type Param struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Submission is a fragment handed to the engine.
type Submission struct {
	Source    string        `json:"source"`
	Mode      Mode          `json:"mode"`
	EntryName string        `json:"entry_name,omitempty"`
	Params    []Param       `json:"params,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// Violation is a single security or syntax finding. Category is one of
// syntax, import, call, attribute, subscript, entry.
type Violation struct {
	Category string `json:"category"`
	Detail   string `json:"detail"`
	Line     int    `json:"line,omitempty"`
}

func (v Violation) String() string {
	if v.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", v.Line, v.Category, v.Detail)
	}
	return fmt.Sprintf("%s: %s", v.Category, v.Detail)
}

// ValidationResult is the outcome of static validation. Validation stops
// at the first violation, so Errors holds at most one entry.
type ValidationResult struct {
	Valid          bool        `json:"valid"`
	Errors         []Violation `json:"errors,omitempty"`
	Warnings       []string    `json:"warnings,omitempty"`
	EntryNameFound bool        `json:"entry_name_found"`
	SignatureOK    bool        `json:"signature_ok"`
	// ResolvedEntry is the global the engine will call in named mode:
	// the requested entry name, or the fallback function that was found.
	ResolvedEntry string `json:"resolved_entry,omitempty"`
}

// APICallRecord is one recorded capability-handle action call.
type APICallRecord struct {
	Method  string `json:"method"`
	Args    string `json:"args,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ExecutionResult is the structured outcome of a fragment run.
type ExecutionResult struct {
	ID           string              `json:"id"`
	Success      bool                `json:"success"`
	Payload      any                 `json:"payload,omitempty"`
	Error        string              `json:"error,omitempty"`
	Output       string              `json:"output,omitempty"`
	Messages     []string            `json:"messages,omitempty"`
	Calls        []APICallRecord     `json:"api_calls,omitempty"`
	Explore      *game.ExploreResult `json:"explore,omitempty"`
	Elapsed      time.Duration       `json:"elapsed"`
	ActionsTaken int                 `json:"actions_taken"`
	TurnsElapsed int                 `json:"turns_elapsed"`
	SourceHash   string              `json:"source_hash"`
}
