package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront/internal/model"
	"storefront/internal/repository"
)

type mockCartRepo struct {
	mock.Mock
}

func (m *mockCartRepo) GetByUser(ctx context.Context, q repository.Querier, userID int64) (*model.Cart, []model.CartItem, error) {
	args := m.Called(ctx, q, userID)
	var cart *model.Cart
	if c := args.Get(0); c != nil {
		cart = c.(*model.Cart)
	}
	var items []model.CartItem
	if i := args.Get(1); i != nil {
		items = i.([]model.CartItem)
	}
	return cart, items, args.Error(2)
}

func (m *mockCartRepo) GetOrCreate(ctx context.Context, q repository.Querier, userID int64) (*model.Cart, error) {
	args := m.Called(ctx, q, userID)
	return args.Get(0).(*model.Cart), args.Error(1)
}

func (m *mockCartRepo) UpsertItem(ctx context.Context, q repository.Querier, item *model.CartItem) error {
	args := m.Called(ctx, q, item)
	return args.Error(0)
}

func (m *mockCartRepo) RemoveItem(ctx context.Context, q repository.Querier, cartID uuid.UUID, productID string) error {
	args := m.Called(ctx, q, cartID, productID)
	return args.Error(0)
}

func (m *mockCartRepo) Clear(ctx context.Context, q repository.Querier, cartID uuid.UUID) error {
	args := m.Called(ctx, q, cartID)
	return args.Error(0)
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetByID(ctx context.Context, q repository.Querier, id string) (*model.Product, error) {
	args := m.Called(ctx, q, id)
	if p := args.Get(0); p != nil {
		return p.(*model.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCatalog) GetByIDs(ctx context.Context, q repository.Querier, ids []string) (map[string]model.Product, error) {
	args := m.Called(ctx, q, ids)
	return args.Get(0).(map[string]model.Product), args.Error(1)
}

func TestGetEmptyCartForNewUser(t *testing.T) {
	repo := &mockCartRepo{}
	repo.On("GetByUser", mock.Anything, mock.Anything, int64(1)).Return(nil, nil, nil)

	s := NewService(repo, &mockCatalog{}, nil, zerolog.Nop())
	resp, err := s.Get(context.Background(), 1)

	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	assert.Equal(t, int64(0), resp.SubtotalCents)
}

func TestGetComputesSubtotal(t *testing.T) {
	cartID := uuid.New()
	repo := &mockCartRepo{}
	repo.On("GetByUser", mock.Anything, mock.Anything, int64(1)).Return(
		&model.Cart{ID: cartID, UserID: 1},
		[]model.CartItem{
			{ProductID: "p1", Quantity: 2, UnitPriceCents: 1500},
			{ProductID: "p2", Quantity: 1, UnitPriceCents: 700},
		},
		nil,
	)

	s := NewService(repo, &mockCatalog{}, nil, zerolog.Nop())
	resp, err := s.Get(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, int64(3700), resp.SubtotalCents)
}

func TestAddItemRejectsInvalidQuantity(t *testing.T) {
	s := NewService(&mockCartRepo{}, &mockCatalog{}, nil, zerolog.Nop())

	_, err := s.AddItem(context.Background(), 1, model.CartItemRequest{ProductID: "p1", Quantity: 0})
	assert.ErrorIs(t, err, model.ErrInvalidQuantity)
}

func TestAddItemUnknownProduct(t *testing.T) {
	catalogSrc := &mockCatalog{}
	catalogSrc.On("GetByID", mock.Anything, mock.Anything, "ghost").Return(nil, nil)

	s := NewService(&mockCartRepo{}, catalogSrc, nil, zerolog.Nop())
	_, err := s.AddItem(context.Background(), 1, model.CartItemRequest{ProductID: "ghost", Quantity: 1})

	assert.ErrorIs(t, err, model.ErrProductNotFound)
}

func TestAddItemSnapshotsPrice(t *testing.T) {
	cartID := uuid.New()

	catalogSrc := &mockCatalog{}
	catalogSrc.On("GetByID", mock.Anything, mock.Anything, "p1").
		Return(&model.Product{ID: "p1", PriceCents: 4200}, nil)

	repo := &mockCartRepo{}
	repo.On("GetOrCreate", mock.Anything, mock.Anything, int64(1)).
		Return(&model.Cart{ID: cartID, UserID: 1}, nil)
	repo.On("UpsertItem", mock.Anything, mock.Anything, mock.MatchedBy(func(item *model.CartItem) bool {
		return item.CartID == cartID && item.UnitPriceCents == 4200 && item.Quantity == 3
	})).Return(nil)
	repo.On("GetByUser", mock.Anything, mock.Anything, int64(1)).Return(
		&model.Cart{ID: cartID, UserID: 1},
		[]model.CartItem{{ProductID: "p1", Quantity: 3, UnitPriceCents: 4200}},
		nil,
	)

	s := NewService(repo, catalogSrc, nil, zerolog.Nop())
	resp, err := s.AddItem(context.Background(), 1, model.CartItemRequest{ProductID: "p1", Quantity: 3})

	require.NoError(t, err)
	assert.Equal(t, int64(12600), resp.SubtotalCents)
	repo.AssertExpectations(t)
}

func TestRemoveItemFromMissingCart(t *testing.T) {
	repo := &mockCartRepo{}
	repo.On("GetByUser", mock.Anything, mock.Anything, int64(1)).Return(nil, nil, nil)

	s := NewService(repo, &mockCatalog{}, nil, zerolog.Nop())
	resp, err := s.RemoveItem(context.Background(), 1, "p1")

	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	repo.AssertNotCalled(t, "RemoveItem", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
