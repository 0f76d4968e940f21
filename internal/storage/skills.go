package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrSkillNotFound is returned when a named skill does not exist.
var ErrSkillNotFound = errors.New("skill not found")

// SaveSkill inserts a skill or replaces its source and metadata while
// keeping its usage counters.
func (db *DB) SaveSkill(ctx context.Context, s *SkillRow) error {
	query := `
		INSERT INTO skills (name, category, description, stop_condition,
			source, source_hash, use_count, success_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $7)
		ON CONFLICT (name) DO UPDATE SET
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			stop_condition = EXCLUDED.stop_condition,
			source = EXCLUDED.source,
			source_hash = EXCLUDED.source_hash,
			updated_at = EXCLUDED.updated_at`

	_, err := db.pool.Exec(ctx, query,
		s.Name, s.Category, s.Description, s.StopCondition,
		s.Source, s.SourceHash, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving skill %s: %w", s.Name, err)
	}
	return nil
}

// GetSkill retrieves a skill by name.
func (db *DB) GetSkill(ctx context.Context, name string) (*SkillRow, error) {
	query := `
		SELECT name, category, description, stop_condition, source, source_hash,
			use_count, success_count, created_at, updated_at
		FROM skills WHERE name = $1`

	var s SkillRow
	err := db.pool.QueryRow(ctx, query, name).Scan(
		&s.Name, &s.Category, &s.Description, &s.StopCondition,
		&s.Source, &s.SourceHash,
		&s.UseCount, &s.SuccessCount, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSkillNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying skill %s: %w", name, err)
	}
	return &s, nil
}

// ListSkills returns skills, optionally restricted to one category.
func (db *DB) ListSkills(ctx context.Context, category string) ([]SkillRow, error) {
	query := `
		SELECT name, category, description, stop_condition, source, source_hash,
			use_count, success_count, created_at, updated_at
		FROM skills
		WHERE ($1 = '' OR category = $1)
		ORDER BY name`

	rows, err := db.pool.Query(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("querying skills: %w", err)
	}
	defer rows.Close()

	var results []SkillRow
	for rows.Next() {
		var s SkillRow
		if err := rows.Scan(
			&s.Name, &s.Category, &s.Description, &s.StopCondition,
			&s.Source, &s.SourceHash,
			&s.UseCount, &s.SuccessCount, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning skill row: %w", err)
		}
		results = append(results, s)
	}

	return results, rows.Err()
}

// RecordSkillUse bumps a skill's usage counters after an execution.
func (db *DB) RecordSkillUse(ctx context.Context, name string, success bool) error {
	query := `
		UPDATE skills
		SET use_count = use_count + 1,
		    success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
		    updated_at = now()
		WHERE name = $1`

	tag, err := db.pool.Exec(ctx, query, name, success)
	if err != nil {
		return fmt.Errorf("recording use of skill %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSkillNotFound
	}
	return nil
}

// DeleteSkill removes a skill by name.
func (db *DB) DeleteSkill(ctx context.Context, name string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM skills WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("deleting skill %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSkillNotFound
	}
	return nil
}
