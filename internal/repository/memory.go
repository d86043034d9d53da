package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-service/internal/entity"
	"storefront-service/internal/inventory"
)

// MemStore is an in-memory Store used by tests and local development.
// A single mutex around every transaction gives the same isolation the
// MySQL store gets from serializable transactions and row locks, and a
// full snapshot taken at transaction start makes rollback exact.
type MemStore struct {
	mu       sync.Mutex
	products map[int64]*entity.Product
	orders   map[int64]*entity.Order
	audits   []*entity.AuditLog

	nextProductID int64
	nextOrderID   int64
	nextAuditID   int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		products: make(map[int64]*entity.Product),
		orders:   make(map[int64]*entity.Order),
	}
}

// SeedProduct inserts a product directly, outside any transaction.
func (s *MemStore) SeedProduct(p *entity.Product) *entity.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextProductID++
	cp := *p
	cp.ID = s.nextProductID
	s.products[cp.ID] = &cp
	return &cp
}

// AuditLogs returns a copy of all audit entries written so far.
func (s *MemStore) AuditLogs() []*entity.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.AuditLog, len(s.audits))
	copy(out, s.audits)
	return out
}

func (s *MemStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	return fn(&memTx{s: s})
}

type memSnapshot struct {
	products      map[int64]*entity.Product
	orders        map[int64]*entity.Order
	audits        []*entity.AuditLog
	nextProductID int64
	nextOrderID   int64
	nextAuditID   int64
}

func (s *MemStore) snapshot() memSnapshot {
	snap := memSnapshot{
		products:      make(map[int64]*entity.Product, len(s.products)),
		orders:        make(map[int64]*entity.Order, len(s.orders)),
		audits:        append([]*entity.AuditLog(nil), s.audits...),
		nextProductID: s.nextProductID,
		nextOrderID:   s.nextOrderID,
		nextAuditID:   s.nextAuditID,
	}
	for id, p := range s.products {
		cp := *p
		snap.products[id] = &cp
	}
	for id, o := range s.orders {
		snap.orders[id] = copyOrder(o)
	}
	return snap
}

func (s *MemStore) restore(snap memSnapshot) {
	s.products = snap.products
	s.orders = snap.orders
	s.audits = snap.audits
	s.nextProductID = snap.nextProductID
	s.nextOrderID = snap.nextOrderID
	s.nextAuditID = snap.nextAuditID
}

func copyOrder(o *entity.Order) *entity.Order {
	cp := *o
	cp.Items = append([]entity.OrderItem(nil), o.Items...)
	cp.StatusHistory = append([]entity.StatusHistoryEntry(nil), o.StatusHistory...)
	return &cp
}

func (s *MemStore) GetOrderByID(ctx context.Context, id int64) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(o), nil
}

func (s *MemStore) ListOrdersByUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*entity.Order, int, error) {
	return s.list(func(o *entity.Order) bool {
		return o.UserID == userID && (status == "" || o.DeliveryStatus == status)
	}, limit, offset)
}

func (s *MemStore) ListOrders(ctx context.Context, limit, offset int) ([]*entity.Order, int, error) {
	return s.list(func(o *entity.Order) bool { return true }, limit, offset)
}

func (s *MemStore) list(match func(*entity.Order) bool, limit, offset int) ([]*entity.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*entity.Order
	for _, o := range s.orders {
		if match(o) {
			all = append(all, copyOrder(o))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *MemStore) OrderStats(ctx context.Context, from, to *time.Time) (*entity.OrderStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &entity.OrderStats{}
	byStatus := make(map[string]int)
	byPayment := make(map[string]int)
	for _, o := range s.orders {
		if from != nil && to != nil && (o.CreatedAt.Before(*from) || o.CreatedAt.After(*to)) {
			continue
		}
		stats.TotalOrders++
		stats.TotalRevenue += o.Pricing.Total
		byStatus[o.DeliveryStatus]++
		byPayment[o.PaymentStatus]++
	}
	if stats.TotalOrders > 0 {
		stats.AverageOrderValue = stats.TotalRevenue / float64(stats.TotalOrders)
	}
	stats.ByStatus = sortedCounts(byStatus)
	stats.ByPaymentStatus = sortedCounts(byPayment)
	return stats, nil
}

func sortedCounts(m map[string]int) []entity.StatusCount {
	var counts []entity.StatusCount
	for status, n := range m {
		counts = append(counts, entity.StatusCount{Status: status, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count == counts[j].Count {
			return counts[i].Status < counts[j].Status
		}
		return counts[i].Count > counts[j].Count
	})
	return counts
}

func (s *MemStore) GetProductByID(ctx context.Context, id int64) (*entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemStore) ListProducts(ctx context.Context, activeOnly bool) ([]*entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var products []*entity.Product
	for _, p := range s.products {
		if activeOnly && !p.IsActive {
			continue
		}
		cp := *p
		products = append(products, &cp)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *MemStore) PurgeAuditLogs(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*entity.AuditLog
	var purged int64
	for _, a := range s.audits {
		if a.CreatedAt.Before(olderThan) {
			purged++
			continue
		}
		kept = append(kept, a)
	}
	s.audits = kept
	return purged, nil
}

type memTx struct {
	s *MemStore
}

func (t *memTx) ProductForUpdate(ctx context.Context, id int64) (*entity.Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) ReserveStock(ctx context.Context, productID int64, qty int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if p.AvailableStock() < qty {
		return inventory.ErrInsufficientStock
	}
	p.Reserved += qty
	return nil
}

func (t *memTx) ReleaseStock(ctx context.Context, productID int64, qty int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if p.Reserved < qty {
		return inventory.ErrOverRelease
	}
	p.Reserved -= qty
	return nil
}

func (t *memTx) RestockProduct(ctx context.Context, productID int64, qty int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	now := time.Now()
	p.Quantity += qty
	p.LastRestocked = &now
	return nil
}

func (t *memTx) InsertProduct(ctx context.Context, p *entity.Product) error {
	for _, existing := range t.s.products {
		if existing.SKU == p.SKU {
			return fmt.Errorf("sku %s: %w", p.SKU, ErrDuplicate)
		}
	}
	t.s.nextProductID++
	p.ID = t.s.nextProductID
	cp := *p
	t.s.products[p.ID] = &cp
	return nil
}

func (t *memTx) UpdateProduct(ctx context.Context, p *entity.Product) error {
	existing, ok := t.s.products[p.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Name = p.Name
	existing.Description = p.Description
	existing.Category = p.Category
	existing.Price = p.Price
	existing.DiscountPrice = p.DiscountPrice
	existing.ReorderLevel = p.ReorderLevel
	existing.IsActive = p.IsActive
	existing.UpdatedAt = p.UpdatedAt
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *entity.Order) error {
	for _, existing := range t.s.orders {
		if existing.OrderNumber == o.OrderNumber {
			return fmt.Errorf("order number %s: %w", o.OrderNumber, ErrDuplicate)
		}
	}
	t.s.nextOrderID++
	o.ID = t.s.nextOrderID
	t.s.orders[o.ID] = copyOrder(o)
	return nil
}

func (t *memTx) OrderForUpdate(ctx context.Context, id int64) (*entity.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(o), nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, o *entity.Order) error {
	existing, ok := t.s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	existing.DeliveryStatus = o.DeliveryStatus
	existing.TrackingNumber = o.TrackingNumber
	existing.EstimatedDeliveryDate = o.EstimatedDeliveryDate
	existing.ActualDeliveryDate = o.ActualDeliveryDate
	existing.ReturnReason = o.ReturnReason
	existing.ReturnDate = o.ReturnDate
	existing.UpdatedAt = o.UpdatedAt
	return nil
}

func (t *memTx) AppendStatusHistory(ctx context.Context, orderID int64, h entity.StatusHistoryEntry) error {
	o, ok := t.s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.StatusHistory = append(o.StatusHistory, h)
	return nil
}

func (t *memTx) InsertAuditLog(ctx context.Context, a *entity.AuditLog) error {
	t.s.nextAuditID++
	a.ID = t.s.nextAuditID
	cp := *a
	t.s.audits = append(t.s.audits, &cp)
	return nil
}
