package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tea-storefront/internal/entity"
	"tea-storefront/internal/sharding"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var productRowColumns = []string{"id", "name", "category", "description", "price", "base_price_per_kg", "unit", "kg_step", "min_quantity", "max_quantity", "price_tiers", "in_stock"}

func TestGetProductsDecodesTiers(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProductRepository(db)

	rows := sqlmock.NewRows(productRowColumns).
		AddRow(1, "Da Hong Pao", "oolong", "", 0, 240, "kg", 0.1, 0.1, 5, `[{"minTotalWeight":1000,"pricePerKg":200},{"minTotalWeight":0,"pricePerKg":240}]`, true).
		AddRow(2, "Tea pet", "ware", "clay", 45, 0, "piece", 0, 0, 0, `[]`, false)
	mock.ExpectQuery("SELECT id, name, category, .* FROM products ORDER BY id").WillReturnRows(rows)

	products, err := repo.GetProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "1", products[0].ID)
	assert.Equal(t, entity.UnitKg, products[0].Unit)
	require.Len(t, products[0].PriceTiers, 2)
	assert.Equal(t, 0.0, products[0].PriceTiers[0].MinTotalWeight)
	assert.False(t, products[1].InStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProductRepository(db)

	mock.ExpectQuery("SELECT .* FROM products WHERE id = ?").WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows(productRowColumns))

	_, err := repo.GetProductByID(context.Background(), "7")
	assert.ErrorIs(t, err, entity.ErrProductNotFound)

	_, err = repo.GetProductByID(context.Background(), "local-1-aa")
	assert.ErrorIs(t, err, entity.ErrProductNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProduct(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProductRepository(db)

	mock.ExpectExec("INSERT INTO products").
		WithArgs("Sencha", "", "", 12.5, 0.0, "piece", 0.0, 0.0, 0.0, "[]", true).
		WillReturnResult(sqlmock.NewResult(42, 1))

	created, err := repo.CreateProduct(context.Background(), &entity.Product{Name: "Sencha", Price: 12.5, Unit: entity.UnitPiece, InStock: true})
	require.NoError(t, err)
	assert.Equal(t, "42", created.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProductNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewProductRepository(db)

	mock.ExpectExec("DELETE FROM products WHERE id = ?").WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteProduct(context.Background(), "3")
	assert.ErrorIs(t, err, entity.ErrProductNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartSaveLineUpserts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCartRepository([]*sql.DB{db}, sharding.NewShardRouter(1))

	mock.ExpectExec("INSERT INTO cart_lines .* ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID\\(id\\)").
		WithArgs("s1", "1", "kg", 1.5, 220.0, 330.0).
		WillReturnResult(sqlmock.NewResult(9, 2))

	line, err := repo.SaveLine(context.Background(), "s1", entity.CartLineItem{
		ProductID: "1", Quantity: 1.5, Unit: entity.UnitKg, UnitPriceAtTime: 220, TotalPriceAtTime: 330,
	})
	require.NoError(t, err)
	assert.Equal(t, "9", line.ServerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartSaveLinesRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCartRepository([]*sql.DB{db}, sharding.NewShardRouter(1))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO cart_lines .* ON DUPLICATE KEY UPDATE").
		WithArgs("s1", "1", "kg", 1.0, 0.0, 0.0).
		WillReturnResult(sqlmock.NewResult(3, 2))
	diskFull := errors.New("disk full")
	mock.ExpectExec("INSERT INTO cart_lines").WillReturnError(diskFull)
	mock.ExpectRollback()

	err := repo.SaveLines(context.Background(), "s1", []entity.CartLineItem{
		{ProductID: "1", Quantity: 1, Unit: entity.UnitKg},
		{ProductID: "2", Quantity: 2, Unit: entity.UnitPiece},
	})
	assert.ErrorIs(t, err, diskFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartGetAndDeleteLines(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCartRepository([]*sql.DB{db}, sharding.NewShardRouter(1))

	mock.ExpectQuery("SELECT id, product_id, quantity, unit, unit_price, total_price FROM cart_lines").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "quantity", "unit", "unit_price", "total_price"}).
			AddRow(4, "1", 0.5, "kg", 240, 120))
	mock.ExpectExec("DELETE FROM cart_lines WHERE id = \\? AND session_id = \\?").WithArgs(int64(4), "s1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM cart_lines WHERE id = \\? AND session_id = \\?").WithArgs(int64(4), "s1").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	lines, err := repo.GetLines(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "4", lines[0].ServerID)
	assert.Equal(t, entity.UnitKg, lines[0].Unit)

	require.NoError(t, repo.DeleteLine(ctx, "s1", "4"))
	assert.ErrorIs(t, repo.DeleteLine(ctx, "s1", "4"), entity.ErrCartLineNotFound)
	assert.ErrorIs(t, repo.DeleteLine(ctx, "s1", "abc"), entity.ErrCartLineNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderClearsCartInSameTransaction(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository([]*sql.DB{db}, sharding.NewShardRouter(1))
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("ref-1", "s1", 165.0, entity.OrderStatusCreated, "key-1", createdAt).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec("INSERT INTO order_lines").
		WithArgs(int64(11), "1", "Da Hong Pao", 0.5, "kg", 240.0, 120.0, int64(11), "2", "Tea pet", 1.0, "piece", 45.0, 45.0).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM cart_lines WHERE session_id = ?").WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	order, err := repo.CreateOrder(context.Background(), &entity.Order{
		OrderRef:      "ref-1",
		SessionID:     "s1",
		Total:         165,
		Status:        entity.OrderStatusCreated,
		IdempotentKey: "key-1",
		CreatedAt:     createdAt,
		Lines: []entity.OrderLine{
			{ProductID: "1", Name: "Da Hong Pao", Quantity: 0.5, Unit: entity.UnitKg, UnitPrice: 240, LineTotal: 120},
			{ProductID: "2", Name: "Tea pet", Quantity: 1, Unit: entity.UnitPiece, UnitPrice: 45, LineTotal: 45},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), order.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository([]*sql.DB{db}, sharding.NewShardRouter(1))
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("SELECT id, order_ref, session_id, total, status, idempotent_key, created_at FROM orders").
		WithArgs(int64(11), "s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_ref", "session_id", "total", "status", "idempotent_key", "created_at"}).
			AddRow(11, "ref-1", "s1", 120.0, "created", "key-1", createdAt))
	mock.ExpectQuery("SELECT product_id, name, quantity, unit, unit_price, line_total FROM order_lines").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "name", "quantity", "unit", "unit_price", "line_total"}).
			AddRow("1", "Da Hong Pao", 0.5, "kg", 240.0, 120.0))

	order, err := repo.GetOrderByID(context.Background(), "s1", 11)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", order.OrderRef)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, entity.UnitKg, order.Lines[0].Unit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository([]*sql.DB{db}, sharding.NewShardRouter(1))

	mock.ExpectExec("UPDATE orders SET status = ?").WithArgs("cancelled", int64(5), "s1").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateOrderStatus(context.Background(), "s1", 5, "cancelled")
	assert.ErrorIs(t, err, entity.ErrOrderNotFound)
}
