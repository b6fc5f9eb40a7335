package rule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	pkgerrors "iris/pkg/errors"
)

type postgresHistoryStore struct {
	db *sql.DB
}

func NewPostgresHistoryStore(db *sql.DB) HistoryStore {
	return &postgresHistoryStore{db: db}
}

func (s *postgresHistoryStore) AppendVersion(ctx context.Context, v *RuleVersion) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.ChangedAt.IsZero() {
		v.ChangedAt = time.Now()
	}
	v.IsActive = true

	snapshotJSON, err := json.Marshal(v.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE rule_versions SET is_active = false WHERE rule_id = $1 AND is_active`,
		v.RuleID,
	); err != nil {
		return fmt.Errorf("failed to deactivate previous versions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rule_versions (id, rule_id, version, change_log, changed_by, changed_at,
			change_type, previous_version, is_active, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, $9)
	`,
		v.ID, v.RuleID, v.Version, v.ChangeLog, v.ChangedBy, v.ChangedAt,
		v.ChangeType, v.PreviousVersion, snapshotJSON,
	); err != nil {
		return fmt.Errorf("failed to append rule version: %w", err)
	}

	return tx.Commit()
}

func (s *postgresHistoryStore) ListVersions(ctx context.Context, ruleID string) ([]RuleVersion, error) {
	query := `
		SELECT id, rule_id, version, change_log, changed_by, changed_at, change_type, previous_version, is_active, snapshot
		FROM rule_versions
		WHERE rule_id = $1
		ORDER BY version DESC
	`

	rows, err := s.db.QueryContext(ctx, query, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var versions []RuleVersion
	for rows.Next() {
		v, err := scanRuleVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}

	return versions, nil
}

func (s *postgresHistoryStore) GetVersion(ctx context.Context, ruleID string, version int) (*RuleVersion, error) {
	query := `
		SELECT id, rule_id, version, change_log, changed_by, changed_at, change_type, previous_version, is_active, snapshot
		FROM rule_versions
		WHERE rule_id = $1 AND version = $2
	`

	v, err := scanRuleVersion(s.db.QueryRowContext(ctx, query, ruleID, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("rule_id", ruleID).WithDetail("version", version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return v, nil
}

func scanRuleVersion(row rowScanner) (*RuleVersion, error) {
	var v RuleVersion
	var changeLog, changedBy sql.NullString
	var previousVersion sql.NullInt64
	var snapshotJSON []byte

	err := row.Scan(
		&v.ID, &v.RuleID, &v.Version, &changeLog, &changedBy, &v.ChangedAt,
		&v.ChangeType, &previousVersion, &v.IsActive, &snapshotJSON,
	)
	if err != nil {
		return nil, err
	}

	v.ChangeLog = changeLog.String
	v.ChangedBy = changedBy.String
	if previousVersion.Valid {
		prev := int(previousVersion.Int64)
		v.PreviousVersion = &prev
	}

	if err := json.Unmarshal(snapshotJSON, &v.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &v, nil
}
