// Package repository 会计分录数据访问层
package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// EntrySide 借贷方向
const (
	SideDebit  = "debit"
	SideCredit = "credit"
)

// JournalEntry 会计分录
type JournalEntry struct {
	JournalID     int64
	EntryDateMs   int64
	ReferenceType string
	ReferenceID   string
	AccountCode   string
	AccountName   string
	Side          string
	Amount        string // DECIMAL from DB
	Description   string
	CreateTimeMs  int64
}

// JournalRepository 分录仓储
type JournalRepository struct {
	db *sql.DB
}

// NewJournalRepository 创建仓储
func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// InsertBatch 在单个事务里写入整批分录。
// 任何一条失败整批回滚，不存在部分落库。
func (r *JournalRepository) InsertBatch(ctx context.Context, entries []*JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO retail_ledger.journal_entries
		(journal_id, entry_date_ms, reference_type, reference_id,
		 account_code, account_name, side, amount, description, create_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query,
			e.JournalID, e.EntryDateMs, e.ReferenceType, e.ReferenceID,
			e.AccountCode, e.AccountName, e.Side, e.Amount,
			nullString(e.Description), e.CreateTimeMs,
		); err != nil {
			return fmt.Errorf("insert journal entry %d: %w", e.JournalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal batch: %w", err)
	}
	return nil
}

// DeleteByReference 删除某个业务单据的全部分录。
// 幂等：单据不存在时返回 0，不报错。
func (r *JournalRepository) DeleteByReference(ctx context.Context, referenceType, referenceID string) (int64, error) {
	query := `
		DELETE FROM retail_ledger.journal_entries
		WHERE reference_type = $1 AND reference_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, referenceType, referenceID)
	if err != nil {
		return 0, fmt.Errorf("delete journal entries: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// GetByReference 查询某个业务单据的分录，按 journal_id 升序
func (r *JournalRepository) GetByReference(ctx context.Context, referenceType, referenceID string) ([]*JournalEntry, error) {
	query := `
		SELECT journal_id, entry_date_ms, reference_type, reference_id,
		       account_code, account_name, side, amount, description, create_time_ms
		FROM retail_ledger.journal_entries
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY journal_id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, referenceType, referenceID)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		var e JournalEntry
		var description sql.NullString
		if err := rows.Scan(
			&e.JournalID, &e.EntryDateMs, &e.ReferenceType, &e.ReferenceID,
			&e.AccountCode, &e.AccountName, &e.Side, &e.Amount, &description, &e.CreateTimeMs,
		); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Description = description.String
		entries = append(entries, &e)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
