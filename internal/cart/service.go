// Package cart manages the user's working cart.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/repository"
)

// Service exposes cart operations.
type Service struct {
	repo    repository.CartRepository
	catalog catalog.Source
	db      repository.Querier
	logger  zerolog.Logger
}

// NewService creates a new cart service.
func NewService(repo repository.CartRepository, catalogSrc catalog.Source, db repository.Querier, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalogSrc,
		db:      db,
		logger:  logger.With().Str("service", "cart").Logger(),
	}
}

// Get returns the user's cart. A user who never added anything gets an
// empty cart, not an error.
func (s *Service) Get(ctx context.Context, userID int64) (*model.CartResponse, error) {
	cart, items, err := s.repo.GetByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return &model.CartResponse{Items: []model.CartItem{}}, nil
	}

	return toResponse(cart, items), nil
}

// AddItem adds a product line or replaces its quantity. The unit price is
// snapshotted from the catalogue at add time.
func (s *Service) AddItem(ctx context.Context, userID int64, req model.CartItemRequest) (*model.CartResponse, error) {
	if req.Quantity <= 0 {
		return nil, model.ErrInvalidQuantity
	}

	product, err := s.catalog.GetByID(ctx, s.db, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, model.ErrProductNotFound
	}

	cart, err := s.repo.GetOrCreate(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	item := &model.CartItem{
		ID:             uuid.New(),
		CartID:         cart.ID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		UnitPriceCents: product.PriceCents,
		AddedAt:        time.Now(),
	}
	if err := s.repo.UpsertItem(ctx, s.db, item); err != nil {
		return nil, fmt.Errorf("upsert cart item: %w", err)
	}

	s.logger.Debug().
		Int64("user_id", userID).
		Str("product_id", req.ProductID).
		Int("quantity", req.Quantity).
		Msg("cart item added")

	return s.Get(ctx, userID)
}

// RemoveItem deletes one line from the user's cart.
func (s *Service) RemoveItem(ctx context.Context, userID int64, productID string) (*model.CartResponse, error) {
	cart, _, err := s.repo.GetByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return &model.CartResponse{Items: []model.CartItem{}}, nil
	}

	if err := s.repo.RemoveItem(ctx, s.db, cart.ID, productID); err != nil {
		return nil, fmt.Errorf("remove cart item: %w", err)
	}

	return s.Get(ctx, userID)
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID int64) error {
	cart, _, err := s.repo.GetByUser(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if cart == nil {
		return nil
	}
	return s.repo.Clear(ctx, s.db, cart.ID)
}

func toResponse(cart *model.Cart, items []model.CartItem) *model.CartResponse {
	resp := &model.CartResponse{
		ID:    cart.ID,
		Items: items,
	}
	if resp.Items == nil {
		resp.Items = []model.CartItem{}
	}
	for _, item := range items {
		resp.SubtotalCents += int64(item.Quantity) * item.UnitPriceCents
	}
	return resp
}
