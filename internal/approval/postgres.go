package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	pkgerrors "iris/pkg/errors"
)

type postgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) Create(ctx context.Context, a *Approval) error {
	historyJSON, err := json.Marshal(a.ApprovalHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal approval history: %w", err)
	}

	query := `
		INSERT INTO approvals (id, rule_id, rule_name, applicant, apply_time, status,
			approval_level, current_approver, approval_history, comment, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.RuleID, a.RuleName, a.Applicant, a.ApplyTime, a.Status,
		a.ApprovalLevel, a.CurrentApprover, historyJSON, a.Comment, a.Priority,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("id", a.ID)
		}
		return fmt.Errorf("failed to create approval: %w", err)
	}

	return nil
}

func (s *postgresStore) Get(ctx context.Context, id string) (*Approval, error) {
	query := `
		SELECT id, rule_id, rule_name, applicant, apply_time, status,
			approval_level, current_approver, approval_history, comment, priority
		FROM approvals
		WHERE id = $1
	`

	a, err := scanApproval(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return a, nil
}

func (s *postgresStore) List(ctx context.Context, filter ListFilter) ([]Approval, int, error) {
	where := "true"
	args := []interface{}{}
	argn := 0

	if filter.Status != "" {
		argn++
		where += fmt.Sprintf(" AND status = $%d", argn)
		args = append(args, filter.Status)
	}
	if filter.RuleID != "" {
		argn++
		where += fmt.Sprintf(" AND rule_id = $%d", argn)
		args = append(args, filter.RuleID)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM approvals WHERE " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count approvals: %w", err)
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`
		SELECT id, rule_id, rule_name, applicant, apply_time, status,
			approval_level, current_approver, approval_history, comment, priority
		FROM approvals
		WHERE %s
		ORDER BY apply_time DESC
		LIMIT $%d OFFSET $%d
	`, where, argn+1, argn+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	items := []Approval{}
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan approval: %w", err)
		}
		items = append(items, *a)
	}

	return items, total, nil
}

func (s *postgresStore) Update(ctx context.Context, a *Approval) error {
	historyJSON, err := json.Marshal(a.ApprovalHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal approval history: %w", err)
	}

	query := `
		UPDATE approvals
		SET status = $1, approval_level = $2, current_approver = $3, approval_history = $4
		WHERE id = $5
	`

	res, err := s.db.ExecContext(ctx, query,
		a.Status, a.ApprovalLevel, a.CurrentApprover, historyJSON, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update approval: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithDetail("id", a.ID)
	}
	return nil
}

func (s *postgresStore) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM approvals WHERE status = $1`, StatusPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending approvals: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApproval(row rowScanner) (*Approval, error) {
	var a Approval
	var historyJSON []byte
	var currentApprover, comment sql.NullString

	err := row.Scan(
		&a.ID, &a.RuleID, &a.RuleName, &a.Applicant, &a.ApplyTime, &a.Status,
		&a.ApprovalLevel, &currentApprover, &historyJSON, &comment, &a.Priority,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(historyJSON, &a.ApprovalHistory); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approval history: %w", err)
	}

	if currentApprover.Valid {
		a.CurrentApprover = &currentApprover.String
	}
	a.Comment = comment.String

	return &a, nil
}
