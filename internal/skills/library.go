package skills

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"dungeon-skill-sandbox/internal/sandbox"
	"dungeon-skill-sandbox/internal/storage"
)

var (
	// ErrInvalidSkill means the fragment failed static validation; the
	// library never stores code the sandbox would reject.
	ErrInvalidSkill = errors.New("skill failed validation")
	ErrNotFound     = errors.New("skill not found")
	ErrBadName      = errors.New("invalid skill name")
)

var nameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Library is the validated-skill store: an in-memory index with optional
// Postgres persistence behind it. All methods are safe for concurrent use.
type Library struct {
	validator *sandbox.Validator
	store     *storage.DB // nil for memory-only libraries

	mu     sync.RWMutex
	byName map[string]*Skill
}

// NewLibrary creates a library. store may be nil.
func NewLibrary(store *storage.DB) *Library {
	return &Library{
		validator: sandbox.NewValidator(),
		store:     store,
		byName:    make(map[string]*Skill),
	}
}

// LoadPersisted fills the in-memory index from storage.
func (l *Library) LoadPersisted(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	rows, err := l.store.ListSkills(ctx, "")
	if err != nil {
		return fmt.Errorf("loading skills: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range rows {
		s := fromRow(&rows[i])
		l.byName[s.Name] = s
	}
	log.Info().Int("skills", len(rows)).Msg("skill library loaded")
	return nil
}

// Save validates the fragment and stores it under name. The fragment
// must define an entry function matching the skill name; saving is gated
// on validation so the library only ever holds runnable skills.
func (l *Library) Save(ctx context.Context, name, source string) (*Skill, error) {
	if !nameRe.MatchString(name) {
		return nil, fmt.Errorf("%w: %q (want lowercase identifier)", ErrBadName, name)
	}

	vres := l.validator.Validate(sandbox.Submission{
		Source:    source,
		Mode:      sandbox.ModeNamed,
		EntryName: name,
	})
	if !vres.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSkill, vres.Errors[0])
	}
	if !vres.EntryNameFound {
		return nil, fmt.Errorf("%w: no function named %q", ErrInvalidSkill, name)
	}
	if !vres.SignatureOK {
		return nil, fmt.Errorf("%w: %q must accept the game handle as its first parameter", ErrInvalidSkill, name)
	}

	md := ExtractMetadata(source)
	now := time.Now().UTC()
	skill := &Skill{
		Name:          name,
		Category:      md.Category,
		Description:   md.Description,
		StopCondition: md.StopCondition,
		Source:        source,
		SourceHash:    fmt.Sprintf("%x", sha256.Sum256([]byte(source))),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	l.mu.Lock()
	if prev, ok := l.byName[name]; ok {
		// Re-saving keeps the usage history.
		skill.UseCount = prev.UseCount
		skill.SuccessCount = prev.SuccessCount
		skill.CreatedAt = prev.CreatedAt
	}
	l.byName[name] = skill
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.SaveSkill(ctx, skill.toRow()); err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("skill", name).
		Str("category", skill.Category).
		Str("source_hash", skill.SourceHash[:16]).
		Msg("skill saved")
	return skill, nil
}

// Get returns a skill by name. A miss in the in-memory index falls back
// to storage, so a skill saved by another instance is still reachable.
func (l *Library) Get(ctx context.Context, name string) (*Skill, error) {
	l.mu.RLock()
	s, ok := l.byName[name]
	l.mu.RUnlock()
	if ok {
		cp := *s
		return &cp, nil
	}

	if l.store != nil {
		row, err := l.store.GetSkill(ctx, name)
		switch {
		case err == nil:
			s := fromRow(row)
			l.mu.Lock()
			l.byName[name] = s
			l.mu.Unlock()
			cp := *s
			return &cp, nil
		case !errors.Is(err, storage.ErrSkillNotFound):
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// List returns skills sorted by name, optionally restricted to one
// category.
func (l *Library) List(category string) []*Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Skill, 0, len(l.byName))
	for _, s := range l.byName {
		if category != "" && s.Category != category {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Categories returns the distinct categories in use, sorted.
func (l *Library) Categories() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, s := range l.byName {
		seen[s.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// RecordUse updates a skill's usage counters after an execution.
func (l *Library) RecordUse(ctx context.Context, name string, success bool) error {
	l.mu.Lock()
	s, ok := l.byName[name]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	s.UseCount++
	if success {
		s.SuccessCount++
	}
	s.UpdatedAt = time.Now().UTC()
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.RecordSkillUse(ctx, name, success); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a skill.
func (l *Library) Delete(ctx context.Context, name string) error {
	l.mu.Lock()
	_, ok := l.byName[name]
	delete(l.byName, name)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if l.store != nil {
		if err := l.store.DeleteSkill(ctx, name); err != nil && !errors.Is(err, storage.ErrSkillNotFound) {
			return err
		}
	}
	return nil
}

// PromptBlock renders the library as a text block for the agent prompt,
// grouped by category.
func (l *Library) PromptBlock() string {
	skillsByCat := make(map[string][]*Skill)
	for _, s := range l.List("") {
		skillsByCat[s.Category] = append(skillsByCat[s.Category], s)
	}

	var b []byte
	for _, cat := range l.Categories() {
		b = append(b, ("## " + cat + "\n")...)
		for _, s := range skillsByCat[cat] {
			b = append(b, ("- " + s.Summary() + "\n")...)
		}
	}
	return string(b)
}
