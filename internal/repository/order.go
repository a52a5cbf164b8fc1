package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tea-storefront/internal/entity"
	"tea-storefront/internal/sharding"
)

type OrderRepository struct {
	dbShards []*sql.DB
	router   *sharding.ShardRouter
}

func NewOrderRepository(dbShards []*sql.DB, router *sharding.ShardRouter) *OrderRepository {
	return &OrderRepository{dbShards, router}
}

func (r *OrderRepository) shard(sessionID string) *sql.DB {
	return r.dbShards[r.router.GetShard(sessionID)]
}

func (r *OrderRepository) GetOrderByID(ctx context.Context, sessionID string, id int64) (*entity.Order, error) {
	orderQuery := `SELECT id, order_ref, session_id, total, status, idempotent_key, created_at FROM orders WHERE id = ? AND session_id = ?`
	lineQuery := `SELECT product_id, name, quantity, unit, unit_price, line_total FROM order_lines WHERE order_id = ? ORDER BY id`

	db := r.shard(sessionID)

	order := &entity.Order{}
	err := db.QueryRowContext(ctx, orderQuery, id, sessionID).Scan(&order.ID, &order.OrderRef, &order.SessionID, &order.Total, &order.Status, &order.IdempotentKey, &order.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, entity.ErrOrderNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, lineQuery, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line entity.OrderLine
			unit string
		)
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Quantity, &unit, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		line.Unit = entity.Unit(unit)
		order.Lines = append(order.Lines, line)
	}
	return order, rows.Err()
}

// CreateOrder stores the order and its lines and empties the session's cart
// in the same transaction.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	if len(order.Lines) == 0 {
		return nil, entity.ErrEmptyCart
	}

	tx, err := r.shard(order.SessionID).BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	orderQuery := `INSERT INTO orders (order_ref, session_id, total, status, idempotent_key, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, orderQuery, order.OrderRef, order.SessionID, order.Total, order.Status, order.IdempotentKey, order.CreatedAt)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	orderID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	lineQuery := `
		INSERT INTO order_lines (order_id, product_id, name, quantity, unit, unit_price, line_total)
		VALUES `
	var values []interface{}
	for _, line := range order.Lines {
		lineQuery += "(?, ?, ?, ?, ?, ?, ?),"
		values = append(values, orderID, line.ProductID, line.Name, line.Quantity, string(line.Unit), line.UnitPrice, line.LineTotal)
	}
	lineQuery = lineQuery[:len(lineQuery)-1]

	_, err = tx.ExecContext(ctx, lineQuery, values...)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE session_id = ?`, order.SessionID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order.ID = orderID
	return order, nil
}

func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, sessionID string, id int64, status string) error {
	res, err := r.shard(sessionID).ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ? AND session_id = ?`, status, id, sessionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("order %d: %w", id, entity.ErrOrderNotFound)
	}
	return nil
}
