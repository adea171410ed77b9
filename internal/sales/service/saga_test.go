package service

import (
	"context"
	"io"
	"sync"
	"testing"

	commonerrors "github.com/retailcore/salesaga/pkg/errors"
	"github.com/retailcore/salesaga/pkg/logger"
	"github.com/retailcore/salesaga/pkg/snowflake"

	"github.com/retailcore/salesaga/internal/sales/client"
	"github.com/retailcore/salesaga/internal/sales/metrics"
	"github.com/retailcore/salesaga/internal/sales/repository"
)

func notFoundErr(productID int64) error {
	return commonerrors.Newf(commonerrors.CodeProductNotFound, "product %d not found", productID)
}

func insufficientErr(productID int64) error {
	return commonerrors.Newf(commonerrors.CodeInsufficientStock, "insufficient stock for product %d", productID)
}

type saleFixture struct {
	inventory *mockInventory
	ledger    *mockLedger
	store     *mockSaleStore
	queue     *mockQueue
	svc       *SaleService
}

func newSaleFixture(t *testing.T) *saleFixture {
	t.Helper()
	idGen, err := snowflake.New(1)
	if err != nil {
		t.Fatalf("snowflake new: %v", err)
	}

	f := &saleFixture{
		inventory: newMockInventory(),
		ledger:    newMockLedger(),
		store:     newMockSaleStore(),
		queue:     &mockQueue{},
	}
	f.svc = NewSaleService(f.inventory, f.ledger, f.store, f.queue,
		idGen, metrics.New(), nil, logger.New("sales-test", io.Discard))

	f.inventory.products[7] = &client.ProductInfo{
		ProductID:     7,
		SKU:           "WIDGET-7",
		Name:          "Widget",
		Price:         "10.00",
		StockQuantity: 5,
		Status:        1,
	}
	return f
}

func TestCompleteSale(t *testing.T) {
	f := newSaleFixture(t)

	sale, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: 3})
	if err != nil {
		t.Fatalf("complete sale: %v", err)
	}

	if sale.TotalAmount != "30.00" {
		t.Fatalf("expected total 30.00, got %s", sale.TotalAmount)
	}
	if sale.UnitPrice != "10.00" {
		t.Fatalf("expected unit price snapshot 10.00, got %s", sale.UnitPrice)
	}
	if sale.PaymentStatus != repository.PaymentPending {
		t.Fatalf("expected payment pending, got %s", sale.PaymentStatus)
	}
	if sale.LedgerStatus != repository.LedgerPosted {
		t.Fatalf("expected ledger posted, got %s", sale.LedgerStatus)
	}
	if got := f.inventory.stock(7); got != 2 {
		t.Fatalf("expected stock 2 after sale, got %d", got)
	}

	entries := f.ledger.entries(sale.SaleNumber)
	if len(entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(entries))
	}
	if entries[0].Side != "debit" || entries[0].AccountName != "Accounts Receivable" || entries[0].Amount != "30.00" {
		t.Fatalf("unexpected debit entry: %+v", entries[0])
	}
	if entries[1].Side != "credit" || entries[1].AccountName != "Sales Revenue" || entries[1].Amount != "30.00" {
		t.Fatalf("unexpected credit entry: %+v", entries[1])
	}

	stored, err := f.store.GetSaleByNumber(context.Background(), sale.SaleNumber)
	if err != nil {
		t.Fatalf("stored sale not found: %v", err)
	}
	if stored.TotalAmount != "30.00" {
		t.Fatalf("stored total mismatch: %s", stored.TotalAmount)
	}
}

func TestCompleteSaleInsufficientStock(t *testing.T) {
	f := newSaleFixture(t)
	f.inventory.products[7].StockQuantity = 2

	_, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: 5})
	if !commonerrors.IsCode(err, commonerrors.CodeInsufficientStock) {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %v", err)
	}
	// 可用性检查在预留之前就把缺货拦下
	if e := commonerrors.AsError(err); e.Step != StepValidate {
		t.Fatalf("expected failed step %s, got %s", StepValidate, e.Step)
	}
	if f.inventory.reserveCalls != 0 {
		t.Fatalf("no reserve expected, got %d calls", f.inventory.reserveCalls)
	}

	// 预留没发生，什么都不该动
	if got := f.inventory.stock(7); got != 2 {
		t.Fatalf("stock must be untouched, got %d", got)
	}
	if f.inventory.releaseCalls != 0 {
		t.Fatalf("no release expected, got %d calls", f.inventory.releaseCalls)
	}
	if f.store.count() != 0 {
		t.Fatal("no sale should be persisted")
	}
	if len(f.ledger.registered) != 0 {
		t.Fatal("no journal entries should be registered")
	}
}

func TestCompleteSaleReserveConflictAfterAvailability(t *testing.T) {
	f := newSaleFixture(t)
	// 可用性快照通过，但预留时库存已被并发消耗
	f.inventory.reserveErr = insufficientErr(7)

	_, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: 3})
	if !commonerrors.IsCode(err, commonerrors.CodeInsufficientStock) {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %v", err)
	}
	if e := commonerrors.AsError(err); e.Step != StepReserve {
		t.Fatalf("expected failed step %s, got %s", StepReserve, e.Step)
	}
	if f.inventory.releaseCalls != 0 {
		t.Fatalf("no release expected, got %d calls", f.inventory.releaseCalls)
	}
	if f.store.count() != 0 {
		t.Fatal("no sale should be persisted")
	}
}

func TestCompleteSaleInvalidQuantity(t *testing.T) {
	f := newSaleFixture(t)

	for _, qty := range []int64{0, -2} {
		_, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: qty})
		if !commonerrors.IsCode(err, commonerrors.CodeInvalidParam) {
			t.Fatalf("qty=%d: expected INVALID_PARAM, got %v", qty, err)
		}
	}
	if f.inventory.reserveCalls != 0 {
		t.Fatal("validation failure must not reach the inventory authority")
	}
}

func TestCompleteSaleUnknownProduct(t *testing.T) {
	f := newSaleFixture(t)

	_, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 404, Quantity: 1})
	if !commonerrors.IsCode(err, commonerrors.CodeProductNotFound) {
		t.Fatalf("expected PRODUCT_NOT_FOUND, got %v", err)
	}
	if e := commonerrors.AsError(err); e.Step != StepValidate {
		t.Fatalf("expected failed step %s, got %s", StepValidate, e.Step)
	}
}

func TestCompleteSaleSimulatedFailure(t *testing.T) {
	f := newSaleFixture(t)
	f.inventory.products[7].Price = SimulatedFailurePrice

	_, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: 1})
	if !commonerrors.IsCode(err, commonerrors.CodeSimulatedFailure) {
		t.Fatalf("expected SIMULATED_FAILURE, got %v", err)
	}
	if e := commonerrors.AsError(err); e.Step != StepPostLedger {
		t.Fatalf("expected failed step %s, got %s", StepPostLedger, e.Step)
	}

	// 补偿把库存还原
	if got := f.inventory.stock(7); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
	if f.inventory.releaseCalls != 1 {
		t.Fatalf("expected 1 release call, got %d", f.inventory.releaseCalls)
	}
	if f.store.count() != 0 {
		t.Fatal("no sale should be persisted")
	}
	if len(f.ledger.registered) != 0 {
		t.Fatal("no journal entries should survive")
	}
}

func TestCompleteSaleLedgerUnreachableDefers(t *testing.T) {
	f := newSaleFixture(t)
	f.ledger.registerErr = commonerrors.New(commonerrors.CodeRemoteUnavailable, "connection refused")

	sale, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: 2})
	if err != nil {
		t.Fatalf("degraded sale should still complete, got %v", err)
	}
	if sale.LedgerStatus != repository.LedgerDeferred {
		t.Fatalf("expected ledger deferred, got %s", sale.LedgerStatus)
	}
	if got := f.inventory.stock(7); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}
	if len(f.queue.enqueued) != 1 || f.queue.enqueued[0] != sale.SaleNumber {
		t.Fatalf("expected sale enqueued for reconciliation, got %v", f.queue.enqueued)
	}
}

func TestCompleteSaleLedgerRejectedCompensates(t *testing.T) {
	f := newSaleFixture(t)
	f.ledger.registerErr = commonerrors.New(commonerrors.CodeLedgerRejected, "batch rejected")

	_, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: 2})
	if !commonerrors.IsCode(err, commonerrors.CodeLedgerRejected) {
		t.Fatalf("expected LEDGER_REJECTED, got %v", err)
	}
	if got := f.inventory.stock(7); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
	if f.store.count() != 0 {
		t.Fatal("no sale should be persisted")
	}
}

func TestCompleteSalePersistenceFailureCompensates(t *testing.T) {
	f := newSaleFixture(t)
	f.store.createErr = context.DeadlineExceeded

	_, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: 2})
	if !commonerrors.IsCode(err, commonerrors.CodePersistenceFailure) {
		t.Fatalf("expected PERSISTENCE_FAILURE, got %v", err)
	}
	if e := commonerrors.AsError(err); e.Step != StepFinalize {
		t.Fatalf("expected failed step %s, got %s", StepFinalize, e.Step)
	}

	// 分录删掉、库存还原
	if len(f.ledger.deleted) != 1 {
		t.Fatalf("expected 1 journal delete, got %d", len(f.ledger.deleted))
	}
	if got := f.inventory.stock(7); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
}

func TestCompleteSaleCriticalReleaseFailureSurfacesOriginalError(t *testing.T) {
	f := newSaleFixture(t)
	f.inventory.products[7].Price = SimulatedFailurePrice
	f.inventory.releaseErr = commonerrors.New(commonerrors.CodeRemoteUnavailable, "connection refused")

	_, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: 1})
	// 补偿失败不吞掉触发补偿的原始错误
	if !commonerrors.IsCode(err, commonerrors.CodeSimulatedFailure) {
		t.Fatalf("expected original SIMULATED_FAILURE, got %v", err)
	}
}

func TestCompleteSaleLedgerDeleteFailureIsBestEffort(t *testing.T) {
	f := newSaleFixture(t)
	f.store.createErr = context.DeadlineExceeded
	f.ledger.deleteErr = commonerrors.New(commonerrors.CodeRemoteUnavailable, "connection refused")

	_, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: 2})
	if !commonerrors.IsCode(err, commonerrors.CodePersistenceFailure) {
		t.Fatalf("expected PERSISTENCE_FAILURE, got %v", err)
	}
	// 分录删除失败不阻断后续补偿，库存仍然要还原
	if got := f.inventory.stock(7); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
}

func TestCompleteSaleConcurrentUniqueNumbers(t *testing.T) {
	f := newSaleFixture(t)
	f.inventory.products[7].StockQuantity = 1000

	const n = 20
	var wg sync.WaitGroup
	numbers := make(chan string, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			sale, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: 1})
			if err != nil {
				t.Errorf("complete sale: %v", err)
				return
			}
			numbers <- sale.SaleNumber
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool)
	for num := range numbers {
		if seen[num] {
			t.Fatalf("duplicate sale number %s", num)
		}
		seen[num] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d unique sale numbers, got %d", n, len(seen))
	}
	if got := f.inventory.stock(7); got != 1000-n {
		t.Fatalf("expected stock %d, got %d", 1000-n, got)
	}
}

func TestGetSale(t *testing.T) {
	f := newSaleFixture(t)

	sale, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: 1})
	if err != nil {
		t.Fatalf("complete sale: %v", err)
	}

	got, err := f.svc.GetSale(context.Background(), sale.SaleNumber)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if got.SaleNumber != sale.SaleNumber {
		t.Fatalf("sale number mismatch: %s vs %s", got.SaleNumber, sale.SaleNumber)
	}

	if _, err := f.svc.GetSale(context.Background(), "SALE-missing"); !commonerrors.IsCode(err, commonerrors.CodeSaleNotFound) {
		t.Fatalf("expected SALE_NOT_FOUND, got %v", err)
	}
}

func TestGetSaleByID(t *testing.T) {
	f := newSaleFixture(t)

	sale, err := f.svc.CompleteSale(context.Background(), &CompleteSaleRequest{ProductID: 7, Quantity: 1})
	if err != nil {
		t.Fatalf("complete sale: %v", err)
	}

	got, err := f.svc.GetSaleByID(context.Background(), sale.SaleID)
	if err != nil {
		t.Fatalf("get sale by id: %v", err)
	}
	if got.SaleNumber != sale.SaleNumber {
		t.Fatalf("sale number mismatch: %s vs %s", got.SaleNumber, sale.SaleNumber)
	}

	if _, err := f.svc.GetSaleByID(context.Background(), 404); !commonerrors.IsCode(err, commonerrors.CodeSaleNotFound) {
		t.Fatalf("expected SALE_NOT_FOUND, got %v", err)
	}
	if _, err := f.svc.GetSaleByID(context.Background(), 0); !commonerrors.IsCode(err, commonerrors.CodeInvalidParam) {
		t.Fatalf("expected INVALID_PARAM, got %v", err)
	}
}
