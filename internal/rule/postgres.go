package rule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	pkgerrors "iris/pkg/errors"
)

type postgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) Create(ctx context.Context, r *Rule) error {
	conditionsJSON, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	query := `
		INSERT INTO rules (id, name, category, description, conditions, actions, enabled, priority,
			version, schedule, effective_from, effective_to, created_at, updated_at, created_by, updated_by, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, false)
	`

	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.Name, r.Category, r.Description, conditionsJSON, actionsJSON,
		r.Enabled, r.Priority, r.Version, r.Schedule, r.EffectiveFrom, r.EffectiveTo,
		r.CreatedAt, r.UpdatedAt, r.CreatedBy, r.UpdatedBy,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("id", r.ID)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

func (s *postgresStore) Get(ctx context.Context, id string) (*Rule, error) {
	query := `
		SELECT id, name, category, description, conditions, actions, enabled, priority,
			version, schedule, effective_from, effective_to, created_at, updated_at, created_by, updated_by
		FROM rules
		WHERE id = $1 AND NOT deleted
	`

	r, err := scanRule(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return r, nil
}

func (s *postgresStore) List(ctx context.Context, filter ListFilter) ([]Rule, int, error) {
	where := "NOT deleted"
	args := []interface{}{}
	argn := 0

	if filter.Category != "" {
		argn++
		where += fmt.Sprintf(" AND category = $%d", argn)
		args = append(args, filter.Category)
	}
	if filter.Enabled != nil {
		argn++
		where += fmt.Sprintf(" AND enabled = $%d", argn)
		args = append(args, *filter.Enabled)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM rules WHERE " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rules: %w", err)
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`
		SELECT id, name, category, description, conditions, actions, enabled, priority,
			version, schedule, effective_from, effective_to, created_at, updated_at, created_by, updated_by
		FROM rules
		WHERE %s
		ORDER BY priority DESC, created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, argn+1, argn+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	items := []Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan rule: %w", err)
		}
		items = append(items, *r)
	}

	return items, total, nil
}

func (s *postgresStore) Update(ctx context.Context, r *Rule) error {
	conditionsJSON, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	query := `
		UPDATE rules
		SET name = $1, category = $2, description = $3, conditions = $4, actions = $5,
			enabled = $6, priority = $7, version = $8, schedule = $9,
			effective_from = $10, effective_to = $11, updated_at = $12, updated_by = $13
		WHERE id = $14 AND NOT deleted
	`

	res, err := s.db.ExecContext(ctx, query,
		r.Name, r.Category, r.Description, conditionsJSON, actionsJSON,
		r.Enabled, r.Priority, r.Version, r.Schedule,
		r.EffectiveFrom, r.EffectiveTo, r.UpdatedAt, r.UpdatedBy, r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	return requireRowAffected(res, r.ID)
}

func (s *postgresStore) Delete(ctx context.Context, id string) error {
	query := `UPDATE rules SET deleted = true, updated_at = $1 WHERE id = $2 AND NOT deleted`

	res, err := s.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	return requireRowAffected(res, id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var r Rule
	var conditionsJSON, actionsJSON []byte
	var description, schedule, createdBy, updatedBy sql.NullString
	var effectiveFrom, effectiveTo sql.NullTime

	err := row.Scan(
		&r.ID, &r.Name, &r.Category, &description, &conditionsJSON, &actionsJSON,
		&r.Enabled, &r.Priority, &r.Version, &schedule,
		&effectiveFrom, &effectiveTo, &r.CreatedAt, &r.UpdatedAt, &createdBy, &updatedBy,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(conditionsJSON, &r.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal(actionsJSON, &r.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	r.Description = description.String
	r.Schedule = schedule.String
	r.CreatedBy = createdBy.String
	r.UpdatedBy = updatedBy.String
	if effectiveFrom.Valid {
		r.EffectiveFrom = &effectiveFrom.Time
	}
	if effectiveTo.Valid {
		r.EffectiveTo = &effectiveTo.Time
	}

	return &r, nil
}

func requireRowAffected(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return nil
}
