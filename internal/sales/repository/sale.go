// Package repository 销售单数据访问层
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSaleNotFound        = errors.New("sale not found")
	ErrDuplicateSaleNumber = errors.New("duplicate sale number")
)

// PaymentStatus 支付状态
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

// LedgerStatus 记账状态
const (
	LedgerPosted   = "posted"
	LedgerDeferred = "deferred"
)

// Sale 销售单
type Sale struct {
	SaleID        int64
	SaleNumber    string
	ProductID     int64
	Quantity      int64
	UnitPrice     string // DECIMAL from DB
	TotalAmount   string // DECIMAL from DB
	PaymentStatus string
	LedgerStatus  string
	CreateTimeMs  int64
	UpdateTimeMs  int64
}

// SaleRepository 销售单仓储
type SaleRepository struct {
	db *sql.DB
}

// NewSaleRepository 创建仓储
func NewSaleRepository(db *sql.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

// CreateSale 写入销售单
func (r *SaleRepository) CreateSale(ctx context.Context, sale *Sale) error {
	query := `
		INSERT INTO retail_sales.sales
		(sale_id, sale_number, product_id, quantity, unit_price, total_amount,
		 payment_status, ledger_status, create_time_ms, update_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		sale.SaleID, sale.SaleNumber, sale.ProductID, sale.Quantity,
		sale.UnitPrice, sale.TotalAmount, sale.PaymentStatus, sale.LedgerStatus,
		sale.CreateTimeMs, sale.UpdateTimeMs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSaleNumber
		}
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// GetSale 获取销售单
func (r *SaleRepository) GetSale(ctx context.Context, saleID int64) (*Sale, error) {
	query := `
		SELECT sale_id, sale_number, product_id, quantity, unit_price, total_amount,
		       payment_status, ledger_status, create_time_ms, update_time_ms
		FROM retail_sales.sales
		WHERE sale_id = $1
	`
	return r.scanSale(r.db.QueryRowContext(ctx, query, saleID))
}

// GetSaleByNumber 通过单号获取销售单
func (r *SaleRepository) GetSaleByNumber(ctx context.Context, saleNumber string) (*Sale, error) {
	query := `
		SELECT sale_id, sale_number, product_id, quantity, unit_price, total_amount,
		       payment_status, ledger_status, create_time_ms, update_time_ms
		FROM retail_sales.sales
		WHERE sale_number = $1
	`
	return r.scanSale(r.db.QueryRowContext(ctx, query, saleNumber))
}

// UpdateLedgerStatus 更新记账状态
func (r *SaleRepository) UpdateLedgerStatus(ctx context.Context, saleNumber, ledgerStatus string, updateTimeMs int64) error {
	query := `
		UPDATE retail_sales.sales
		SET ledger_status = $2, update_time_ms = $3
		WHERE sale_number = $1
	`
	result, err := r.db.ExecContext(ctx, query, saleNumber, ledgerStatus, updateTimeMs)
	if err != nil {
		return fmt.Errorf("update ledger status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSaleNotFound
	}
	return nil
}

// ListDeferred 查询等待补记账的销售单
func (r *SaleRepository) ListDeferred(ctx context.Context, limit int) ([]*Sale, error) {
	query := `
		SELECT sale_id, sale_number, product_id, quantity, unit_price, total_amount,
		       payment_status, ledger_status, create_time_ms, update_time_ms
		FROM retail_sales.sales
		WHERE ledger_status = $1
		ORDER BY create_time_ms ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, LedgerDeferred, limit)
	if err != nil {
		return nil, fmt.Errorf("list deferred sales: %w", err)
	}
	defer rows.Close()

	var sales []*Sale
	for rows.Next() {
		var s Sale
		if err := rows.Scan(
			&s.SaleID, &s.SaleNumber, &s.ProductID, &s.Quantity, &s.UnitPrice, &s.TotalAmount,
			&s.PaymentStatus, &s.LedgerStatus, &s.CreateTimeMs, &s.UpdateTimeMs,
		); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, &s)
	}
	return sales, nil
}

func (r *SaleRepository) scanSale(row *sql.Row) (*Sale, error) {
	var s Sale
	err := row.Scan(
		&s.SaleID, &s.SaleNumber, &s.ProductID, &s.Quantity, &s.UnitPrice, &s.TotalAmount,
		&s.PaymentStatus, &s.LedgerStatus, &s.CreateTimeMs, &s.UpdateTimeMs,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sale: %w", err)
	}
	return &s, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
