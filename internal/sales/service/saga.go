// Package service 销售完成 saga 编排
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/retailcore/salesaga/pkg/decimal"
	commonerrors "github.com/retailcore/salesaga/pkg/errors"
	"github.com/retailcore/salesaga/pkg/logger"
	"github.com/retailcore/salesaga/pkg/saga"
	"github.com/retailcore/salesaga/pkg/snowflake"
	"go.opentelemetry.io/otel/trace"

	"github.com/retailcore/salesaga/internal/sales/client"
	"github.com/retailcore/salesaga/internal/sales/metrics"
	"github.com/retailcore/salesaga/internal/sales/repository"
)

// 会计科目与单据常量
const (
	ReferenceTypeSale = "SALE"

	accountsReceivableCode = "1100"
	accountsReceivableName = "Accounts Receivable"
	salesRevenueCode       = "4000"
	salesRevenueName       = "Sales Revenue"
	saleDescription        = "Sale of products"
)

// SimulatedFailurePrice is the reserved unit price that deterministically
// fails the saga after reservation. It exists to exercise the full
// compensation path end to end and is matched as a decimal value, never
// by substring.
const SimulatedFailurePrice = "0.99"

// saga 步骤名，错误里携带，测试和监控按名字断言
const (
	StepValidate     = "validate_sale"
	StepReserve      = "reserve_stock"
	StepBuild        = "build_sale"
	StepPostLedger   = "post_ledger"
	StepFinalize     = "finalize_sale"
	CompReleaseStock = "release_stock"
	CompDeleteLedger = "delete_ledger_entries"
)

// InventoryAuthority 远端库存服务
type InventoryAuthority interface {
	GetProduct(ctx context.Context, productID int64) (*client.ProductInfo, error)
	CheckAvailability(ctx context.Context, productID, quantity int64) (*client.AvailabilityInfo, error)
	Reserve(ctx context.Context, productID, quantity int64) (*client.ProductInfo, error)
	Release(ctx context.Context, productID, quantity int64) error
}

// LedgerAuthority 远端账务服务
type LedgerAuthority interface {
	RegisterJournal(ctx context.Context, referenceType, referenceID string, entries []client.JournalEntryInput) (*client.RegisterJournalResponse, error)
	DeleteJournal(ctx context.Context, referenceType, referenceID string) (*client.DeleteJournalResponse, error)
}

// SaleStore 本地销售单存储
type SaleStore interface {
	CreateSale(ctx context.Context, sale *repository.Sale) error
	GetSale(ctx context.Context, saleID int64) (*repository.Sale, error)
	GetSaleByNumber(ctx context.Context, saleNumber string) (*repository.Sale, error)
	UpdateLedgerStatus(ctx context.Context, saleNumber, ledgerStatus string, updateTimeMs int64) error
	ListDeferred(ctx context.Context, limit int) ([]*repository.Sale, error)
}

// DeferredQueue 延迟记账队列
type DeferredQueue interface {
	Enqueue(ctx context.Context, saleNumber string) error
}

// CompleteSaleRequest 完成销售请求
type CompleteSaleRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

// SaleService 销售服务
type SaleService struct {
	inventory InventoryAuthority
	ledger    LedgerAuthority
	store     SaleStore
	queue     DeferredQueue
	executor  *saga.Executor
	idGen     *snowflake.Generator
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewSaleService 创建销售服务。queue 可以为 nil，此时账务服务不可达
// 会让 saga 失败而不是降级。
func NewSaleService(
	inventory InventoryAuthority,
	ledger LedgerAuthority,
	store SaleStore,
	queue DeferredQueue,
	idGen *snowflake.Generator,
	m *metrics.Metrics,
	tracer trace.Tracer,
	log *logger.Logger,
) *SaleService {
	s := &SaleService{
		inventory: inventory,
		ledger:    ledger,
		store:     store,
		queue:     queue,
		idGen:     idGen,
		metrics:   m,
		log:       log,
	}
	s.executor = saga.NewExecutor(log, tracer, func(compensation string, err error) {
		m.IncCriticalInconsistency()
	})
	return s
}

// saleDraft 单次 saga 调用的中间状态，随调用结束丢弃
type saleDraft struct {
	saleID       int64
	saleNumber   string
	productID    int64
	quantity     int64
	unitPrice    *decimal.Decimal
	totalAmount  *decimal.Decimal
	ledgerStatus string
}

// CompleteSale 执行销售完成 saga：校验、预留库存、构建销售单、
// 登记分录、落库。任一步失败按注册的逆序补偿，原始错误带着
// 失败步骤名返回给调用方。
func (s *SaleService) CompleteSale(ctx context.Context, req *CompleteSaleRequest) (*repository.Sale, error) {
	start := time.Now()
	draft := &saleDraft{
		productID:    req.ProductID,
		quantity:     req.Quantity,
		ledgerStatus: repository.LedgerPosted,
	}
	var sale *repository.Sale

	steps := []saga.Step{
		{Name: StepValidate, Execute: func(ctx context.Context, run *saga.Run) error {
			return s.validate(ctx, draft)
		}},
		{Name: StepReserve, Execute: func(ctx context.Context, run *saga.Run) error {
			return s.reserveStock(ctx, run, draft)
		}},
		{Name: StepBuild, Execute: func(ctx context.Context, run *saga.Run) error {
			return s.buildSale(draft)
		}},
		{Name: StepPostLedger, Execute: func(ctx context.Context, run *saga.Run) error {
			return s.postLedger(ctx, run, draft)
		}},
		{Name: StepFinalize, Execute: func(ctx context.Context, run *saga.Run) error {
			var err error
			sale, err = s.finalize(ctx, draft)
			return err
		}},
	}

	run, err := s.executor.Run(ctx, "complete_sale", steps)
	s.metrics.ObserveSagaLatency(time.Since(start))
	if err != nil {
		s.metrics.IncSaleCompensated(run.FailedStep())
		return nil, commonerrors.AsError(err).WithStep(run.FailedStep())
	}

	s.metrics.IncSaleCompleted()
	s.log.Infof("sale completed", map[string]interface{}{
		"saleNumber":   sale.SaleNumber,
		"productId":    sale.ProductID,
		"quantity":     sale.Quantity,
		"totalAmount":  sale.TotalAmount,
		"ledgerStatus": sale.LedgerStatus,
	})
	return sale, nil
}

// validate 校验入参、确认商品存在且库存足够，并生成销售单号。
// 可用性是只读快照，真正的保证在 Reserve 的原子扣减上；
// 价格在预留时快照。
func (s *SaleService) validate(ctx context.Context, draft *saleDraft) error {
	if draft.productID <= 0 {
		return commonerrors.New(commonerrors.CodeInvalidParam, "product id is required")
	}
	if draft.quantity <= 0 {
		return commonerrors.Newf(commonerrors.CodeInvalidParam, "quantity must be positive, got %d", draft.quantity)
	}

	if _, err := s.inventory.GetProduct(ctx, draft.productID); err != nil {
		return err
	}

	avail, err := s.inventory.CheckAvailability(ctx, draft.productID, draft.quantity)
	if err != nil {
		return err
	}
	if !avail.Available {
		return commonerrors.Newf(commonerrors.CodeInsufficientStock,
			"insufficient stock for product %d: requested %d, available %d",
			draft.productID, draft.quantity, avail.StockQuantity)
	}

	id, err := s.idGen.Generate()
	if err != nil {
		return commonerrors.Wrap(commonerrors.CodeInternal, "generate sale id", err)
	}
	draft.saleID = id
	draft.saleNumber = fmt.Sprintf("SALE-%d", id)
	return nil
}

// reserveStock 原子扣减库存并快照成交单价。扣减成功后注册关键补偿：
// 归还失败会让库存永久短缺，必须升级而不能吞掉。
func (s *SaleService) reserveStock(ctx context.Context, run *saga.Run, draft *saleDraft) error {
	product, err := s.inventory.Reserve(ctx, draft.productID, draft.quantity)
	if err != nil {
		return err
	}

	unitPrice, err := decimal.New(product.Price)
	if err != nil {
		// 库存已扣，坏价格也要走补偿
		run.AddCompensation(s.releaseCompensation(draft))
		return commonerrors.Wrap(commonerrors.CodeInternal, "parse product price", err)
	}
	draft.unitPrice = unitPrice

	run.AddCompensation(s.releaseCompensation(draft))
	return nil
}

func (s *SaleService) releaseCompensation(draft *saleDraft) saga.Compensation {
	return saga.Compensation{
		Name:     CompReleaseStock,
		Critical: true,
		Run: func(ctx context.Context) error {
			return s.inventory.Release(ctx, draft.productID, draft.quantity)
		},
	}
}

// buildSale 计算总额，纯内存无副作用
func (s *SaleService) buildSale(draft *saleDraft) error {
	draft.totalAmount = draft.unitPrice.MulInt(draft.quantity)
	return nil
}

// postLedger 登记借贷平衡的两条分录。单价命中保留的测试哨兵值时
// 走显式失败分支；账务服务不可达时降级为延迟记账，由对账任务补登。
func (s *SaleService) postLedger(ctx context.Context, run *saga.Run, draft *saleDraft) error {
	if draft.unitPrice.Equal(decimal.MustNew(SimulatedFailurePrice)) {
		return commonerrors.Newf(commonerrors.CodeSimulatedFailure,
			"simulated failure triggered for sale %s", draft.saleNumber)
	}

	_, err := s.ledger.RegisterJournal(ctx, ReferenceTypeSale, draft.saleNumber, s.journalEntries(draft))
	if err != nil {
		if s.queue != nil && commonerrors.IsCode(err, commonerrors.CodeRemoteUnavailable) {
			draft.ledgerStatus = repository.LedgerDeferred
			s.log.WithError(err).Warnf("ledger authority unreachable, deferring journal posting", map[string]interface{}{
				"saleNumber": draft.saleNumber,
			})
			return nil
		}
		return err
	}

	run.AddCompensation(saga.Compensation{
		Name: CompDeleteLedger,
		Run: func(ctx context.Context) error {
			_, err := s.ledger.DeleteJournal(ctx, ReferenceTypeSale, draft.saleNumber)
			return err
		},
	})
	return nil
}

func (s *SaleService) journalEntries(draft *saleDraft) []client.JournalEntryInput {
	total := draft.totalAmount.String()
	return []client.JournalEntryInput{
		{
			AccountCode: accountsReceivableCode,
			AccountName: accountsReceivableName,
			Side:        "debit",
			Amount:      total,
			Description: saleDescription,
		},
		{
			AccountCode: salesRevenueCode,
			AccountName: salesRevenueName,
			Side:        "credit",
			Amount:      total,
			Description: saleDescription,
		},
	}
}

// finalize 落库销售单。延迟记账的销售单入队等待补登。
func (s *SaleService) finalize(ctx context.Context, draft *saleDraft) (*repository.Sale, error) {
	nowMs := time.Now().UnixMilli()
	sale := &repository.Sale{
		SaleID:        draft.saleID,
		SaleNumber:    draft.saleNumber,
		ProductID:     draft.productID,
		Quantity:      draft.quantity,
		UnitPrice:     draft.unitPrice.String(),
		TotalAmount:   draft.totalAmount.String(),
		PaymentStatus: repository.PaymentPending,
		LedgerStatus:  draft.ledgerStatus,
		CreateTimeMs:  nowMs,
		UpdateTimeMs:  nowMs,
	}
	if err := s.store.CreateSale(ctx, sale); err != nil {
		return nil, commonerrors.Wrap(commonerrors.CodePersistenceFailure, "persist sale", err)
	}

	if sale.LedgerStatus == repository.LedgerDeferred {
		s.metrics.IncLedgerDeferred()
		if err := s.queue.Enqueue(ctx, sale.SaleNumber); err != nil {
			// 销售单已落库且带 deferred 标记，对账任务兜底，入队失败只记日志
			s.log.WithError(err).Errorf("enqueue deferred ledger posting failed", map[string]interface{}{
				"saleNumber": sale.SaleNumber,
			})
		}
	}
	return sale, nil
}

// GetSale 通过单号查询销售单
func (s *SaleService) GetSale(ctx context.Context, saleNumber string) (*repository.Sale, error) {
	if saleNumber == "" {
		return nil, commonerrors.New(commonerrors.CodeInvalidParam, "sale number is required")
	}
	sale, err := s.store.GetSaleByNumber(ctx, saleNumber)
	if err == repository.ErrSaleNotFound {
		return nil, commonerrors.Newf(commonerrors.CodeSaleNotFound, "sale %s not found", saleNumber)
	}
	if err != nil {
		return nil, commonerrors.Wrap(commonerrors.CodePersistenceFailure, "load sale", err)
	}
	return sale, nil
}

// GetSaleByID 通过 ID 查询销售单
func (s *SaleService) GetSaleByID(ctx context.Context, saleID int64) (*repository.Sale, error) {
	if saleID <= 0 {
		return nil, commonerrors.New(commonerrors.CodeInvalidParam, "sale id is required")
	}
	sale, err := s.store.GetSale(ctx, saleID)
	if err == repository.ErrSaleNotFound {
		return nil, commonerrors.Newf(commonerrors.CodeSaleNotFound, "sale %d not found", saleID)
	}
	if err != nil {
		return nil, commonerrors.Wrap(commonerrors.CodePersistenceFailure, "load sale", err)
	}
	return sale, nil
}
