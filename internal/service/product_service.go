package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"storefront-service/internal/entity"
	"storefront-service/internal/inventory"
	"storefront-service/internal/repository"
)

const productCacheTTL = time.Minute

// ProductService handles the admin product catalog: CRUD, restocking,
// and cached storefront reads. Stock counters are never written here
// directly; restock goes through the ledger primitive.
type ProductService struct {
	store repository.Store
	rdb   *redis.Client
}

// NewProductService creates a new instance of ProductService. rdb may
// be nil, disabling the read cache.
func NewProductService(store repository.Store, rdb *redis.Client) *ProductService {
	return &ProductService{store: store, rdb: rdb}
}

type CreateProductInput struct {
	SKU           string   `json:"sku"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Price         float64  `json:"price"`
	DiscountPrice *float64 `json:"discount_price"`
	Quantity      int      `json:"quantity"`
	ReorderLevel  int      `json:"reorder_level"`
}

func (s *ProductService) CreateProduct(ctx context.Context, actorID int64, in CreateProductInput) (*entity.Product, error) {
	if err := validateProductFields(in.Name, in.Description, in.Price, in.DiscountPrice); err != nil {
		return nil, err
	}
	if in.SKU == "" {
		return nil, validationErr("sku is required")
	}
	if in.Quantity < 0 || in.ReorderLevel < 0 {
		return nil, validationErr("stock counts cannot be negative")
	}

	now := time.Now()
	p := &entity.Product{
		SKU:           in.SKU,
		Name:          in.Name,
		Description:   in.Description,
		Category:      in.Category,
		Price:         in.Price,
		DiscountPrice: in.DiscountPrice,
		Quantity:      in.Quantity,
		ReorderLevel:  in.ReorderLevel,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if err := tx.InsertProduct(ctx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateSKU
			}
			return err
		}
		return tx.InsertAuditLog(ctx, &entity.AuditLog{
			ActorID:     actorID,
			Action:      entity.AuditActionCreate,
			EntityType:  "Product",
			EntityID:    p.ID,
			EntityName:  p.Name,
			Description: fmt.Sprintf("Product %q created with SKU %s", p.Name, p.SKU),
			After: map[string]any{
				"sku":      p.SKU,
				"price":    p.Price,
				"quantity": p.Quantity,
			},
			Status:    entity.AuditStatusSuccess,
			Severity:  entity.AuditSeverityLow,
			CreatedAt: now,
		})
	})
	if err != nil {
		logger.Warn().Err(err).Str("sku", in.SKU).Msg("Product creation aborted")
		return nil, err
	}
	return p, nil
}

type UpdateProductInput struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Price         float64  `json:"price"`
	DiscountPrice *float64 `json:"discount_price"`
	ReorderLevel  int      `json:"reorder_level"`
	IsActive      bool     `json:"is_active"`
}

func (s *ProductService) UpdateProduct(ctx context.Context, actorID, productID int64, in UpdateProductInput) (*entity.Product, error) {
	if err := validateProductFields(in.Name, in.Description, in.Price, in.DiscountPrice); err != nil {
		return nil, err
	}
	if in.ReorderLevel < 0 {
		return nil, validationErr("reorder level cannot be negative")
	}

	var updated *entity.Product
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		p, err := tx.ProductForUpdate(ctx, productID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}

		before := map[string]any{
			"name":      p.Name,
			"price":     p.Price,
			"is_active": p.IsActive,
		}

		now := time.Now()
		p.Name = in.Name
		p.Description = in.Description
		p.Category = in.Category
		p.Price = in.Price
		p.DiscountPrice = in.DiscountPrice
		p.ReorderLevel = in.ReorderLevel
		p.IsActive = in.IsActive
		p.UpdatedAt = now

		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		if err := tx.InsertAuditLog(ctx, &entity.AuditLog{
			ActorID:     actorID,
			Action:      entity.AuditActionUpdate,
			EntityType:  "Product",
			EntityID:    p.ID,
			EntityName:  p.Name,
			Description: fmt.Sprintf("Product %q updated", p.Name),
			Before:      before,
			After: map[string]any{
				"name":      p.Name,
				"price":     p.Price,
				"is_active": p.IsActive,
			},
			Status:    entity.AuditStatusSuccess,
			Severity:  entity.AuditSeverityLow,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, productID)
	return updated, nil
}

// Restock increases on-hand stock and stamps last_restocked, with an
// audit entry in the same transaction.
func (s *ProductService) Restock(ctx context.Context, actorID, productID int64, qty int) (*entity.Product, error) {
	if qty < 1 {
		return nil, validationErr("restock quantity must be at least 1")
	}

	var restocked *entity.Product
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		p, err := tx.ProductForUpdate(ctx, productID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.RestockProduct(ctx, productID, qty); err != nil {
			if errors.Is(err, inventory.ErrProductNotFound) {
				return ErrProductNotFound
			}
			return err
		}

		now := time.Now()
		if err := tx.InsertAuditLog(ctx, &entity.AuditLog{
			ActorID:     actorID,
			Action:      entity.AuditActionUpdate,
			EntityType:  "Product",
			EntityID:    p.ID,
			EntityName:  p.Name,
			Description: fmt.Sprintf("Product %q restocked with %d unit(s)", p.Name, qty),
			Before:      map[string]any{"quantity": p.Quantity},
			After:       map[string]any{"quantity": p.Quantity + qty},
			Status:      entity.AuditStatusSuccess,
			Severity:    entity.AuditSeverityLow,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		p.Quantity += qty
		p.LastRestocked = &now
		restocked = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, productID)
	return restocked, nil
}

// GetProduct reads through the cache: serve the cached copy when
// present, otherwise load from the store and populate the cache.
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	key := fmt.Sprintf("product:%d", id)
	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			logger.Error().Err(err).Msgf("Error getting product %d from cache", id)
		}
		if cached != "" {
			var p entity.Product
			if err := json.Unmarshal([]byte(cached), &p); err == nil {
				return &p, nil
			}
			logger.Warn().Msgf("Discarding unreadable cache entry for product %d", id)
		}
	}

	p, err := s.store.GetProductByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		encoded, err := json.Marshal(p)
		if err == nil {
			if err := s.rdb.Set(ctx, key, encoded, productCacheTTL).Err(); err != nil {
				logger.Error().Err(err).Msgf("Error setting product %d in cache", id)
			}
		}
	}
	return p, nil
}

func (s *ProductService) ListProducts(ctx context.Context, activeOnly bool) ([]*entity.Product, error) {
	return s.store.ListProducts(ctx, activeOnly)
}

func (s *ProductService) invalidateCache(ctx context.Context, id int64) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, fmt.Sprintf("product:%d", id)).Err(); err != nil {
		logger.Error().Err(err).Msgf("Error invalidating cache for product %d", id)
	}
}

func validateProductFields(name, description string, price float64, discountPrice *float64) error {
	if len(name) < 3 {
		return validationErr("product name must be at least 3 characters")
	}
	if len(description) < 10 {
		return validationErr("description must be at least 10 characters")
	}
	if price < 0 {
		return validationErr("price cannot be negative")
	}
	if discountPrice != nil {
		if *discountPrice < 0 {
			return validationErr("discount price cannot be negative")
		}
		if *discountPrice > price {
			return validationErr("discount price cannot exceed price")
		}
	}
	return nil
}
