package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"billwatch/internal/domain"
)

type BillStore struct {
	db *sqlx.DB
}

func NewBillStore(db *sqlx.DB) *BillStore {
	return &BillStore{db: db}
}

// GetByIdentityKey returns the stored record for the key, or nil when the
// bill has never been seen.
func (s *BillStore) GetByIdentityKey(ctx context.Context, key string) (*domain.BillRecord, error) {
	query := `
		SELECT id, identity_key, code, session_label, subject, title, chamber,
		       authors, last_action_date, last_action_name, full_text,
		       date_published, created_at, updated_at
		FROM bills
		WHERE identity_key = $1`

	var rec domain.BillRecord
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &rec, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bill %s: %w", key, err)
	}

	return &rec, nil
}

// Insert stores a first-seen bill. With checkUnique the existence check
// is redone immediately before the insert, inside the same transaction,
// guarding against the classifier's view having gone stale.
func (s *BillStore) Insert(ctx context.Context, record *domain.BillRecord, checkUnique bool) error {
	ex := GetExecutor(ctx, s.db)

	if checkUnique {
		var exists bool
		err := sqlx.GetContext(ctx, ex, &exists,
			"SELECT EXISTS (SELECT 1 FROM bills WHERE identity_key = $1)",
			record.IdentityKey,
		)
		if err != nil {
			return fmt.Errorf("check bill %s exists: %w", record.IdentityKey, err)
		}
		if exists {
			return nil
		}
	}

	query := `
		INSERT INTO bills (
			identity_key, code, session_label, subject, title, chamber,
			authors, last_action_date, last_action_name, full_text, date_published
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := ex.ExecContext(ctx, query,
		record.IdentityKey,
		record.Code,
		record.SessionLabel,
		record.Subject,
		record.Title,
		record.Chamber,
		record.Authors,
		record.LastActionDate,
		record.LastActionName,
		record.FullText,
		record.DatePublished,
	)
	if err != nil {
		return fmt.Errorf("insert bill %s: %w", record.IdentityKey, err)
	}

	return nil
}

// Update overwrites every mutable field of an existing bill in place.
func (s *BillStore) Update(ctx context.Context, record *domain.BillRecord) error {
	query := `
		UPDATE bills SET
			code = $2,
			session_label = $3,
			subject = $4,
			title = $5,
			chamber = $6,
			authors = $7,
			last_action_date = $8,
			last_action_name = $9,
			full_text = $10,
			date_published = $11,
			updated_at = NOW()
		WHERE identity_key = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		record.IdentityKey,
		record.Code,
		record.SessionLabel,
		record.Subject,
		record.Title,
		record.Chamber,
		record.Authors,
		record.LastActionDate,
		record.LastActionName,
		record.FullText,
		record.DatePublished,
	)
	if err != nil {
		return fmt.Errorf("update bill %s: %w", record.IdentityKey, err)
	}

	return nil
}
