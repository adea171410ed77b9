// Package service 库存业务逻辑
package service

import (
	"context"
	"time"

	commonerrors "github.com/retailcore/salesaga/pkg/errors"
	"github.com/retailcore/salesaga/pkg/logger"

	"github.com/retailcore/salesaga/internal/inventory/repository"
)

// ProductStore 商品存储接口
type ProductStore interface {
	GetProduct(ctx context.Context, productID int64) (*repository.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*repository.Product, error)
	Reserve(ctx context.Context, productID int64, quantity int64, updateTimeMs int64) (*repository.Product, error)
	Release(ctx context.Context, productID int64, quantity int64, updateTimeMs int64) (*repository.Product, error)
}

// StockService 库存服务
type StockService struct {
	store ProductStore
	log   *logger.Logger
}

// NewStockService 创建库存服务
func NewStockService(store ProductStore, log *logger.Logger) *StockService {
	return &StockService{store: store, log: log}
}

// Availability 库存可用性
type Availability struct {
	ProductID     int64 `json:"productId"`
	Available     bool  `json:"available"`
	StockQuantity int64 `json:"stockQuantity"`
	Requested     int64 `json:"requested"`
}

// GetProduct 查询商品
func (s *StockService) GetProduct(ctx context.Context, productID int64) (*repository.Product, error) {
	if productID <= 0 {
		return nil, commonerrors.ErrInvalidParam
	}
	product, err := s.store.GetProduct(ctx, productID)
	if err == repository.ErrProductNotFound {
		return nil, commonerrors.Newf(commonerrors.CodeProductNotFound, "product %d not found", productID)
	}
	if err != nil {
		return nil, commonerrors.Wrap(commonerrors.CodePersistenceFailure, "load product", err)
	}
	return product, nil
}

// GetProductBySKU 通过 SKU 查询商品
func (s *StockService) GetProductBySKU(ctx context.Context, sku string) (*repository.Product, error) {
	if sku == "" {
		return nil, commonerrors.ErrInvalidParam
	}
	product, err := s.store.GetProductBySKU(ctx, sku)
	if err == repository.ErrProductNotFound {
		return nil, commonerrors.Newf(commonerrors.CodeProductNotFound, "product %s not found", sku)
	}
	if err != nil {
		return nil, commonerrors.Wrap(commonerrors.CodePersistenceFailure, "load product", err)
	}
	return product, nil
}

// CheckAvailability 检查库存是否足够，只读不扣减。
// 并发场景下结果只是瞬时快照，真正的保证在 Reserve 的条件更新上。
func (s *StockService) CheckAvailability(ctx context.Context, productID, quantity int64) (*Availability, error) {
	if quantity <= 0 {
		return nil, commonerrors.Newf(commonerrors.CodeInvalidParam, "quantity must be positive, got %d", quantity)
	}
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &Availability{
		ProductID:     product.ProductID,
		Available:     product.StockQuantity >= quantity,
		StockQuantity: product.StockQuantity,
		Requested:     quantity,
	}, nil
}

// Reserve 预留库存：检查和扣减在一条语句里完成
func (s *StockService) Reserve(ctx context.Context, productID, quantity int64) (*repository.Product, error) {
	if quantity <= 0 {
		return nil, commonerrors.Newf(commonerrors.CodeInvalidParam, "quantity must be positive, got %d", quantity)
	}

	product, err := s.store.Reserve(ctx, productID, quantity, time.Now().UnixMilli())
	switch err {
	case nil:
	case repository.ErrProductNotFound:
		return nil, commonerrors.Newf(commonerrors.CodeProductNotFound, "product %d not found", productID)
	case repository.ErrStockConflict:
		s.log.Warnf("stock reservation rejected", map[string]interface{}{
			"productId": productID,
			"quantity":  quantity,
		})
		return nil, commonerrors.Newf(commonerrors.CodeInsufficientStock,
			"insufficient stock for product %d: requested %d", productID, quantity)
	default:
		return nil, commonerrors.Wrap(commonerrors.CodePersistenceFailure, "reserve stock", err)
	}

	s.log.Infof("stock reserved", map[string]interface{}{
		"productId": product.ProductID,
		"quantity":  quantity,
		"remaining": product.StockQuantity,
	})
	if product.StockQuantity < product.MinStockLevel {
		s.log.Warnf("stock below minimum level", map[string]interface{}{
			"productId": product.ProductID,
			"remaining": product.StockQuantity,
			"minLevel":  product.MinStockLevel,
		})
	}
	return product, nil
}

// Release 归还库存。补偿路径调用，除商品不存在外不会失败，
// 也不检查 max_stock_level。
func (s *StockService) Release(ctx context.Context, productID, quantity int64) (*repository.Product, error) {
	if quantity <= 0 {
		return nil, commonerrors.Newf(commonerrors.CodeInvalidParam, "quantity must be positive, got %d", quantity)
	}

	product, err := s.store.Release(ctx, productID, quantity, time.Now().UnixMilli())
	if err == repository.ErrProductNotFound {
		return nil, commonerrors.Newf(commonerrors.CodeProductNotFound, "product %d not found", productID)
	}
	if err != nil {
		return nil, commonerrors.Wrap(commonerrors.CodePersistenceFailure, "release stock", err)
	}

	s.log.Infof("stock released", map[string]interface{}{
		"productId": product.ProductID,
		"quantity":  quantity,
		"remaining": product.StockQuantity,
	})
	return product, nil
}
