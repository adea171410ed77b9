// Package repository 商品库存数据访问层
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrStockConflict   = errors.New("insufficient stock")
)

// ProductStatus 商品状态
const (
	StatusActive       = 1
	StatusInactive     = 2
	StatusDiscontinued = 3
)

// Product 商品
type Product struct {
	ProductID     int64
	SKU           string
	Name          string
	Description   string
	Category      string
	Price         string // DECIMAL from DB
	Cost          string // DECIMAL from DB
	StockQuantity int64
	MinStockLevel int64
	MaxStockLevel int64
	Status        int
	CreateTimeMs  int64
	UpdateTimeMs  int64
}

// ProductRepository 商品仓储
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository 创建仓储
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetProduct 获取商品
func (r *ProductRepository) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	query := `
		SELECT product_id, sku, name, description, category, price, cost,
		       stock_quantity, min_stock_level, max_stock_level, status,
		       create_time_ms, update_time_ms
		FROM retail_inventory.products
		WHERE product_id = $1
	`
	return r.scanProduct(r.db.QueryRowContext(ctx, query, productID))
}

// GetProductBySKU 通过 SKU 获取商品
func (r *ProductRepository) GetProductBySKU(ctx context.Context, sku string) (*Product, error) {
	query := `
		SELECT product_id, sku, name, description, category, price, cost,
		       stock_quantity, min_stock_level, max_stock_level, status,
		       create_time_ms, update_time_ms
		FROM retail_inventory.products
		WHERE sku = $1
	`
	return r.scanProduct(r.db.QueryRowContext(ctx, query, sku))
}

// Reserve 扣减库存。条件更新保证检查和扣减原子执行，
// 并发扣减不会把库存减到负数。
func (r *ProductRepository) Reserve(ctx context.Context, productID int64, quantity int64, updateTimeMs int64) (*Product, error) {
	query := `
		UPDATE retail_inventory.products
		SET stock_quantity = stock_quantity - $2, update_time_ms = $3
		WHERE product_id = $1 AND stock_quantity >= $2
		RETURNING product_id, sku, name, description, category, price, cost,
		          stock_quantity, min_stock_level, max_stock_level, status,
		          create_time_ms, update_time_ms
	`
	product, err := r.scanProduct(r.db.QueryRowContext(ctx, query, productID, quantity, updateTimeMs))
	if err == ErrProductNotFound {
		// 零行更新：区分商品不存在和库存不足
		if _, getErr := r.GetProduct(ctx, productID); getErr == ErrProductNotFound {
			return nil, ErrProductNotFound
		} else if getErr != nil {
			return nil, getErr
		}
		return nil, ErrStockConflict
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

// Release 归还库存。无条件增加，不做库存上限检查：
// 补偿动作必须总能成功。
func (r *ProductRepository) Release(ctx context.Context, productID int64, quantity int64, updateTimeMs int64) (*Product, error) {
	query := `
		UPDATE retail_inventory.products
		SET stock_quantity = stock_quantity + $2, update_time_ms = $3
		WHERE product_id = $1
		RETURNING product_id, sku, name, description, category, price, cost,
		          stock_quantity, min_stock_level, max_stock_level, status,
		          create_time_ms, update_time_ms
	`
	return r.scanProduct(r.db.QueryRowContext(ctx, query, productID, quantity, updateTimeMs))
}

// ListLowStock 查询库存低于安全水位的商品
func (r *ProductRepository) ListLowStock(ctx context.Context, limit int) ([]*Product, error) {
	query := `
		SELECT product_id, sku, name, description, category, price, cost,
		       stock_quantity, min_stock_level, max_stock_level, status,
		       create_time_ms, update_time_ms
		FROM retail_inventory.products
		WHERE status = $1 AND stock_quantity < min_stock_level
		ORDER BY stock_quantity ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, StatusActive, limit)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		var p Product
		var description sql.NullString
		if err := rows.Scan(
			&p.ProductID, &p.SKU, &p.Name, &description, &p.Category, &p.Price, &p.Cost,
			&p.StockQuantity, &p.MinStockLevel, &p.MaxStockLevel, &p.Status,
			&p.CreateTimeMs, &p.UpdateTimeMs,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Description = description.String
		products = append(products, &p)
	}
	return products, nil
}

func (r *ProductRepository) scanProduct(row *sql.Row) (*Product, error) {
	var p Product
	var description sql.NullString

	err := row.Scan(
		&p.ProductID, &p.SKU, &p.Name, &description, &p.Category, &p.Price, &p.Cost,
		&p.StockQuantity, &p.MinStockLevel, &p.MaxStockLevel, &p.Status,
		&p.CreateTimeMs, &p.UpdateTimeMs,
	)
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan product: %w", err)
	}

	p.Description = description.String
	return &p, nil
}
