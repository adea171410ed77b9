package service

import (
	"context"
	"sync"

	"github.com/retailcore/salesaga/internal/sales/client"
	"github.com/retailcore/salesaga/internal/sales/repository"
)

type mockInventory struct {
	mu           sync.Mutex
	products     map[int64]*client.ProductInfo
	getErr       error
	reserveErr   error
	releaseErr   error
	reserveCalls int
	releaseCalls int
}

func newMockInventory() *mockInventory {
	return &mockInventory{products: make(map[int64]*client.ProductInfo)}
}

func (m *mockInventory) GetProduct(ctx context.Context, productID int64) (*client.ProductInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.products[productID]
	if !ok {
		return nil, notFoundErr(productID)
	}
	cp := *p
	return &cp, nil
}

func (m *mockInventory) CheckAvailability(ctx context.Context, productID, quantity int64) (*client.AvailabilityInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, notFoundErr(productID)
	}
	return &client.AvailabilityInfo{
		ProductID:     productID,
		Available:     p.StockQuantity >= quantity,
		StockQuantity: p.StockQuantity,
		Requested:     quantity,
	}, nil
}

func (m *mockInventory) Reserve(ctx context.Context, productID, quantity int64) (*client.ProductInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserveCalls++
	if m.reserveErr != nil {
		return nil, m.reserveErr
	}
	p, ok := m.products[productID]
	if !ok {
		return nil, notFoundErr(productID)
	}
	if p.StockQuantity < quantity {
		return nil, insufficientErr(productID)
	}
	p.StockQuantity -= quantity
	cp := *p
	return &cp, nil
}

func (m *mockInventory) Release(ctx context.Context, productID, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCalls++
	if m.releaseErr != nil {
		return m.releaseErr
	}
	if p, ok := m.products[productID]; ok {
		p.StockQuantity += quantity
	}
	return nil
}

func (m *mockInventory) stock(productID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].StockQuantity
}

type mockLedger struct {
	mu          sync.Mutex
	registered  map[string][]client.JournalEntryInput
	registerErr error
	deleteErr   error
	deleted     []string
}

func newMockLedger() *mockLedger {
	return &mockLedger{registered: make(map[string][]client.JournalEntryInput)}
}

func (m *mockLedger) RegisterJournal(ctx context.Context, referenceType, referenceID string, entries []client.JournalEntryInput) (*client.RegisterJournalResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	m.registered[referenceID] = entries
	ids := make([]int64, len(entries))
	for i := range entries {
		ids[i] = int64(1000 + i)
	}
	return &client.RegisterJournalResponse{JournalIDs: ids}, nil
}

func (m *mockLedger) DeleteJournal(ctx context.Context, referenceType, referenceID string) (*client.DeleteJournalResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	deleted := int64(len(m.registered[referenceID]))
	delete(m.registered, referenceID)
	m.deleted = append(m.deleted, referenceID)
	return &client.DeleteJournalResponse{Deleted: deleted}, nil
}

func (m *mockLedger) entries(referenceID string) []client.JournalEntryInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered[referenceID]
}

type mockSaleStore struct {
	mu        sync.Mutex
	sales     map[string]*repository.Sale
	createErr error
	updates   []string
}

func newMockSaleStore() *mockSaleStore {
	return &mockSaleStore{sales: make(map[string]*repository.Sale)}
}

func (m *mockSaleStore) CreateSale(ctx context.Context, sale *repository.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.sales[sale.SaleNumber]; ok {
		return repository.ErrDuplicateSaleNumber
	}
	cp := *sale
	m.sales[sale.SaleNumber] = &cp
	return nil
}

func (m *mockSaleStore) GetSale(ctx context.Context, saleID int64) (*repository.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sale := range m.sales {
		if sale.SaleID == saleID {
			cp := *sale
			return &cp, nil
		}
	}
	return nil, repository.ErrSaleNotFound
}

func (m *mockSaleStore) GetSaleByNumber(ctx context.Context, saleNumber string) (*repository.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[saleNumber]
	if !ok {
		return nil, repository.ErrSaleNotFound
	}
	cp := *sale
	return &cp, nil
}

func (m *mockSaleStore) UpdateLedgerStatus(ctx context.Context, saleNumber, ledgerStatus string, updateTimeMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[saleNumber]
	if !ok {
		return repository.ErrSaleNotFound
	}
	sale.LedgerStatus = ledgerStatus
	sale.UpdateTimeMs = updateTimeMs
	m.updates = append(m.updates, saleNumber)
	return nil
}

func (m *mockSaleStore) ListDeferred(ctx context.Context, limit int) ([]*repository.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.Sale
	for _, sale := range m.sales {
		if sale.LedgerStatus == repository.LedgerDeferred {
			cp := *sale
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockSaleStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sales)
}

type mockQueue struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (m *mockQueue) Enqueue(ctx context.Context, saleNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, saleNumber)
	return nil
}
