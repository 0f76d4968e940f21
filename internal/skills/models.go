package skills

import (
	"fmt"
	"time"

	"dungeon-skill-sandbox/internal/storage"
)

// Skill is a named, validated fragment in the library. The entry function
// inside Source carries the same name as the skill.
type Skill struct {
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	Description   string    `json:"description"`
	StopCondition string    `json:"stop_condition,omitempty"`
	Source        string    `json:"source"`
	SourceHash    string    `json:"source_hash"`
	UseCount      int       `json:"use_count"`
	SuccessCount  int       `json:"success_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SuccessRate returns the fraction of uses that succeeded, 0 when unused.
func (s *Skill) SuccessRate() float64 {
	if s.UseCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.UseCount)
}

// Summary renders the one-line form used in agent prompts.
func (s *Skill) Summary() string {
	line := fmt.Sprintf("%s [%s]: %s", s.Name, s.Category, s.Description)
	if s.UseCount > 0 {
		line += fmt.Sprintf(" (used %d times, %.0f%% success)", s.UseCount, s.SuccessRate()*100)
	}
	return line
}

func (s *Skill) toRow() *storage.SkillRow {
	return &storage.SkillRow{
		Name:          s.Name,
		Category:      s.Category,
		Description:   s.Description,
		StopCondition: s.StopCondition,
		Source:        s.Source,
		SourceHash:    s.SourceHash,
		UseCount:      s.UseCount,
		SuccessCount:  s.SuccessCount,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func fromRow(r *storage.SkillRow) *Skill {
	return &Skill{
		Name:          r.Name,
		Category:      r.Category,
		Description:   r.Description,
		StopCondition: r.StopCondition,
		Source:        r.Source,
		SourceHash:    r.SourceHash,
		UseCount:      r.UseCount,
		SuccessCount:  r.SuccessCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
