package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	commonerrors "github.com/retailcore/salesaga/pkg/errors"
	"github.com/retailcore/salesaga/pkg/logger"

	"github.com/retailcore/salesaga/internal/sales/client"
	"github.com/retailcore/salesaga/internal/sales/metrics"
	"github.com/retailcore/salesaga/internal/sales/repository"
)

// ReconcileStream 延迟记账队列
const (
	ReconcileStream   = "sales:ledger:reconcile"
	ReconcileGroup    = "ledger-reconciler"
	ReconcileConsumer = "reconcile-worker"
)

const reconcileBatchSize = 50

// ReconcileQueue 延迟记账生产者
type ReconcileQueue struct {
	rdb *redis.Client
}

// NewReconcileQueue 创建生产者
func NewReconcileQueue(rdb *redis.Client) *ReconcileQueue {
	return &ReconcileQueue{rdb: rdb}
}

// Enqueue 把销售单号写入待补登队列
func (q *ReconcileQueue) Enqueue(ctx context.Context, saleNumber string) error {
	err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: ReconcileStream,
		Values: map[string]interface{}{
			"saleNumber": saleNumber,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	return nil
}

// ReconcileWorker 补登延迟分录的定时任务。每次运行先消费队列，
// 再扫一遍数据库兜底入队失败的销售单。
type ReconcileWorker struct {
	store   SaleStore
	ledger  LedgerAuthority
	rdb     *redis.Client
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewReconcileWorker 创建补登任务
func NewReconcileWorker(store SaleStore, ledger LedgerAuthority, rdb *redis.Client, m *metrics.Metrics, log *logger.Logger) *ReconcileWorker {
	return &ReconcileWorker{store: store, ledger: ledger, rdb: rdb, metrics: m, log: log}
}

// Run 执行一轮补登，由 cron 触发
func (w *ReconcileWorker) Run(ctx context.Context) error {
	if err := w.ensureGroup(ctx); err != nil {
		return err
	}
	if err := w.drainStream(ctx); err != nil {
		w.log.WithError(err).Error("drain reconcile stream failed")
	}
	return w.sweepDeferred(ctx)
}

func (w *ReconcileWorker) ensureGroup(ctx context.Context) error {
	err := w.rdb.XGroupCreateMkStream(ctx, ReconcileStream, ReconcileGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// drainStream 消费队列里的销售单号。处理失败不 ack，留到下一轮重试。
func (w *ReconcileWorker) drainStream(ctx context.Context) error {
	for {
		results, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    ReconcileGroup,
			Consumer: ReconcileConsumer,
			Streams:  []string{ReconcileStream, ">"},
			Count:    reconcileBatchSize,
			Block:    -1,
		}).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xreadgroup: %w", err)
		}

		var drained int
		for _, result := range results {
			for _, m := range result.Messages {
				drained++
				saleNumber, _ := m.Values["saleNumber"].(string)
				if saleNumber == "" {
					// 坏消息直接 ack 丢弃
					w.rdb.XAck(ctx, ReconcileStream, ReconcileGroup, m.ID)
					continue
				}
				if err := w.reconcileSale(ctx, saleNumber); err != nil {
					w.log.WithError(err).Warnf("reconcile sale failed, will retry", map[string]interface{}{
						"saleNumber": saleNumber,
					})
					continue
				}
				w.rdb.XAck(ctx, ReconcileStream, ReconcileGroup, m.ID)
			}
		}
		if drained == 0 {
			return nil
		}
	}
}

// sweepDeferred 从数据库捞仍处于 deferred 的销售单补登
func (w *ReconcileWorker) sweepDeferred(ctx context.Context) error {
	sales, err := w.store.ListDeferred(ctx, reconcileBatchSize)
	if err != nil {
		return err
	}
	for _, sale := range sales {
		if err := w.postDeferred(ctx, sale); err != nil {
			w.log.WithError(err).Warnf("deferred ledger posting failed, will retry", map[string]interface{}{
				"saleNumber": sale.SaleNumber,
			})
		}
	}
	return nil
}

// reconcileSale 按单号补登。销售单不存在或已登账直接成功（幂等）。
func (w *ReconcileWorker) reconcileSale(ctx context.Context, saleNumber string) error {
	sale, err := w.store.GetSaleByNumber(ctx, saleNumber)
	if err == repository.ErrSaleNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if sale.LedgerStatus != repository.LedgerDeferred {
		return nil
	}
	return w.postDeferred(ctx, sale)
}

func (w *ReconcileWorker) postDeferred(ctx context.Context, sale *repository.Sale) error {
	entries := []client.JournalEntryInput{
		{
			AccountCode: accountsReceivableCode,
			AccountName: accountsReceivableName,
			Side:        "debit",
			Amount:      sale.TotalAmount,
			Description: saleDescription,
		},
		{
			AccountCode: salesRevenueCode,
			AccountName: salesRevenueName,
			Side:        "credit",
			Amount:      sale.TotalAmount,
			Description: saleDescription,
		},
	}

	if _, err := w.ledger.RegisterJournal(ctx, ReferenceTypeSale, sale.SaleNumber, entries); err != nil {
		if !commonerrors.IsCode(err, commonerrors.CodeRemoteUnavailable) {
			w.metrics.IncLedgerReconciled("rejected")
		}
		return err
	}

	if err := w.store.UpdateLedgerStatus(ctx, sale.SaleNumber, repository.LedgerPosted, nowMs()); err != nil {
		return err
	}
	w.metrics.IncLedgerReconciled("posted")
	w.log.Infof("deferred ledger entries posted", map[string]interface{}{
		"saleNumber": sale.SaleNumber,
	})
	return nil
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
