package storage

import "time"

// Execution represents a stored execution audit record.
type Execution struct {
	ID           string     `json:"id" db:"id"`
	Mode         string     `json:"mode" db:"mode"`
	EntryName    string     `json:"entry_name,omitempty" db:"entry_name"`
	SourceHash   string     `json:"source_hash" db:"source_hash"`
	Status       string     `json:"status" db:"status"` // completed, failed, timeout, rejected
	Error        string     `json:"error,omitempty" db:"error"`
	Output       string     `json:"output,omitempty" db:"output"`
	DurationMS   int64      `json:"duration_ms" db:"duration_ms"`
	ActionsTaken int        `json:"actions_taken" db:"actions_taken"`
	TurnsElapsed int        `json:"turns_elapsed" db:"turns_elapsed"`
	RequestIP    string     `json:"request_ip" db:"request_ip"`
	APIKeyHash   string     `json:"api_key_hash,omitempty" db:"api_key_hash"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// SkillRow is the persisted form of a library skill.
type SkillRow struct {
	Name          string    `json:"name" db:"name"`
	Category      string    `json:"category" db:"category"`
	Description   string    `json:"description" db:"description"`
	StopCondition string    `json:"stop_condition,omitempty" db:"stop_condition"`
	Source        string    `json:"source" db:"source"`
	SourceHash    string    `json:"source_hash" db:"source_hash"`
	UseCount      int       `json:"use_count" db:"use_count"`
	SuccessCount  int       `json:"success_count" db:"success_count"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// ExecutionFilter provides criteria for querying executions.
type ExecutionFilter struct {
	Mode   string
	Status string
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}
